// Package server exposes the reachability evaluator over HTTP.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubereach/kubereach/internal/metrics"
	"github.com/kubereach/kubereach/internal/policy"
)

// SnapshotSource supplies the snapshot queries are evaluated against. A nil
// snapshot means no data has been loaded yet.
type SnapshotSource interface {
	Snapshot() *policy.Snapshot
}

// Ctrl holds the handler dependencies.
type Ctrl struct {
	source      SnapshotSource
	matrixPorts []policy.PortProtocol
}

// NewController creates the API controller. matrixPorts are the ports the
// matrix endpoint probes when the request does not name its own.
func NewController(source SnapshotSource, matrixPorts []policy.PortProtocol) *Ctrl {
	return &Ctrl{
		source:      source,
		matrixPorts: matrixPorts,
	}
}

// GetRouter builds the gin engine with all routes registered.
func GetRouter(c *Ctrl, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", c.GetHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/check", c.PostCheck())
		v1.GET("/matrix", c.GetMatrix())
		v1.GET("/pods", c.GetPods())
	}

	return router
}

// GetHealth reports whether a snapshot is loaded.
func (c *Ctrl) GetHealth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		snap := c.source.Snapshot()
		if snap == nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "no snapshot loaded",
			})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"namespaces":      snap.NamespaceCount(),
			"pods":            snap.PodCount(),
			"networkpolicies": snap.PolicyCount(),
		})
	}
}

type checkRequest struct {
	Source      policy.PodRef `json:"source" binding:"required"`
	Destination policy.PodRef `json:"destination" binding:"required"`
	Protocol    string        `json:"protocol"`
	Port        int32         `json:"port" binding:"required"`
}

// PostCheck evaluates a single connection.
func (c *Ctrl) PostCheck() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		snap := c.source.Snapshot()
		if snap == nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "no snapshot loaded",
			})
			return
		}

		var req checkRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		proto, err := policy.ParseProtocol(req.Protocol)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		if req.Port < 1 || req.Port > 65535 {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": "port must be between 1 and 65535",
			})
			return
		}

		start := time.Now()
		verdict := snap.Check(policy.Connection{
			Source:      req.Source,
			Destination: req.Destination,
			Protocol:    proto,
			Port:        req.Port,
		})
		metrics.RecordQuery(verdict.Allowed, time.Since(start).Seconds())

		ctx.JSON(http.StatusOK, verdict)
	}
}

// GetMatrix evaluates the full pod-to-pod matrix. The ports query parameter
// overrides the configured defaults, e.g. ?ports=80,6379/TCP.
func (c *Ctrl) GetMatrix() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		snap := c.source.Snapshot()
		if snap == nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "no snapshot loaded",
			})
			return
		}

		ports := c.matrixPorts
		if raw := ctx.Query("ports"); raw != "" {
			parsed, err := policy.ParsePorts(strings.Split(raw, ","))
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
				return
			}
			ports = parsed
		}

		ctx.JSON(http.StatusOK, policy.BuildMatrix(snap, ports))
	}
}

// GetPods lists the pods in the current snapshot.
func (c *Ctrl) GetPods() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		snap := c.source.Snapshot()
		if snap == nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "no snapshot loaded",
			})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{
			"pods": snap.Pods(),
		})
	}
}

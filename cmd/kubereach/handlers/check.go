package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereach/kubereach/internal/policy"
	"github.com/kubereach/kubereach/internal/report"
	"github.com/kubereach/kubereach/internal/wizard"
)

// ErrDenied reports a denied connection when --exit-code is set, so main
// exits non-zero and scripts can branch on the verdict.
var ErrDenied = errors.New("connection denied")

// CheckOptions holds the check command parameters.
type CheckOptions struct {
	Source      SourceOptions
	ConfigPath  string
	Output      string
	Interactive bool
	ExitCode    bool

	// Positional arguments, ignored in interactive mode.
	SourcePod      string
	DestinationPod string
	Port           string
}

// Check handles the check command.
//
// It builds a snapshot, assembles the connection from arguments or the
// interactive wizard and prints the verdict.
func Check(ctx context.Context, opts CheckOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(ctx, opts.Source, cfg)
	if err != nil {
		return err
	}

	var conn policy.Connection
	if opts.Interactive {
		conn, err = wizard.Run(ctx, snap)
		if err != nil {
			return fmt.Errorf("wizard aborted: %w", err)
		}
	} else {
		conn, err = parseConnection(opts.SourcePod, opts.DestinationPod, opts.Port)
		if err != nil {
			return err
		}
	}

	verdict := snap.Check(conn)

	format := opts.Output
	if format == "" {
		format = cfg.Report.Format
	}
	renderer := &report.Renderer{
		Format: format,
		Color:  format == "table" && report.IsTerminal(os.Stdout),
	}
	if err := renderer.RenderVerdict(os.Stdout, conn, verdict); err != nil {
		return err
	}

	if opts.ExitCode && !verdict.Allowed {
		return ErrDenied
	}
	return nil
}

// parseConnection assembles a connection from "namespace/pod" endpoint
// arguments and a "port/protocol" argument.
func parseConnection(src, dst, port string) (policy.Connection, error) {
	srcRef, err := parsePodRef(src)
	if err != nil {
		return policy.Connection{}, fmt.Errorf("invalid source: %w", err)
	}
	dstRef, err := parsePodRef(dst)
	if err != nil {
		return policy.Connection{}, fmt.Errorf("invalid destination: %w", err)
	}
	pp, err := policy.ParsePortProtocol(port)
	if err != nil {
		return policy.Connection{}, err
	}

	return policy.Connection{
		Source:      srcRef,
		Destination: dstRef,
		Protocol:    pp.Protocol,
		Port:        pp.Port,
	}, nil
}

// parsePodRef parses "namespace/name" pod references. A bare name resolves
// to the default namespace.
func parsePodRef(s string) (policy.PodRef, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return policy.PodRef{}, fmt.Errorf("empty pod reference")
		}
		return policy.PodRef{Namespace: metav1.NamespaceDefault, Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return policy.PodRef{}, fmt.Errorf("malformed pod reference %q", s)
		}
		return policy.PodRef{Namespace: parts[0], Name: parts[1]}, nil
	default:
		return policy.PodRef{}, fmt.Errorf("malformed pod reference %q", s)
	}
}

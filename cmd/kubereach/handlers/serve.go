package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/kubereach/kubereach/internal/cluster"
	"github.com/kubereach/kubereach/internal/manifest"
	"github.com/kubereach/kubereach/internal/policy"
	"github.com/kubereach/kubereach/internal/server"
	"github.com/kubereach/kubereach/internal/watcher"
)

// ServeOptions holds the serve command parameters.
type ServeOptions struct {
	Source     SourceOptions
	ConfigPath string
	Listen     string
}

// staticSource serves a fixed snapshot, used when manifests are the source.
type staticSource struct {
	snap *policy.Snapshot
}

func (s *staticSource) Snapshot() *policy.Snapshot { return s.snap }

// Serve handles the serve command.
//
// With manifest files the snapshot is fixed for the lifetime of the server.
// Against a cluster a watcher keeps the snapshot current. The server runs
// until the context is cancelled.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	listen := opts.Listen
	if listen == "" {
		listen = cfg.Server.Listen
	}

	ports, err := policy.ParsePorts(cfg.Matrix.Ports)
	if err != nil {
		return err
	}

	var source server.SnapshotSource
	var run func(context.Context) error

	if len(opts.Source.Manifests) > 0 {
		snap, err := manifest.Load(opts.Source.Manifests...)
		if err != nil {
			return err
		}
		source = &staticSource{snap: snap}
	} else {
		kubeconfig := opts.Source.Kubeconfig
		if kubeconfig == "" {
			kubeconfig = cfg.Kubeconfig
		}
		namespace := opts.Source.Namespace
		if namespace == "" {
			namespace = cfg.Namespace
		}

		client, err := cluster.NewClient(kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to connect to cluster: %w", err)
		}
		w := watcher.New(client.Clientset(), namespace, watcher.DefaultDebounce)
		source = w
		run = w.Run
	}

	ctrl := server.NewController(source, ports)
	router := server.GetRouter(ctrl, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	if run != nil {
		go func() { errCh <- run(ctx) }()
	}
	go func() {
		klog.InfoS("serving", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

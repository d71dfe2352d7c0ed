// Package handlers implements the command execution logic for the
// kubereach CLI.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/kubereach/kubereach/internal/cluster"
	"github.com/kubereach/kubereach/internal/config"
	"github.com/kubereach/kubereach/internal/manifest"
	"github.com/kubereach/kubereach/internal/policy"
)

// defaultConfigFile is auto-detected in the working directory when no
// explicit --config is given.
const defaultConfigFile = "kubereach.yaml"

// SourceOptions selects where the snapshot comes from. Manifest files take
// precedence over the cluster.
type SourceOptions struct {
	Manifests  []string
	Kubeconfig string
	Namespace  string
}

// loadConfig loads the configuration file, falling back to defaults when no
// file is given and none is auto-detected.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}
	return config.LoadFile(path)
}

// loadSnapshot builds a snapshot from manifest files or from the cluster.
func loadSnapshot(ctx context.Context, opts SourceOptions, cfg *config.Config) (*policy.Snapshot, error) {
	if len(opts.Manifests) > 0 {
		return manifest.Load(opts.Manifests...)
	}

	kubeconfig := opts.Kubeconfig
	if kubeconfig == "" {
		kubeconfig = cfg.Kubeconfig
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = cfg.Namespace
	}

	client, err := cluster.NewClient(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	return client.CaptureSnapshot(ctx, namespace)
}

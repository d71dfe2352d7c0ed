package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubereach/kubereach/cmd/kubereach/handlers"
)

// Serve returns the command for running the HTTP API server.
//
// Optional flags:
//
//	--manifests, -m: Serve a fixed snapshot built from manifest files
//	--kubeconfig:    Path to the kubeconfig file
//	--namespace, -n: Restrict the snapshot to one namespace
//	--listen, -l:    Listen address (default: from configuration)
//	--config, -c:    Path to configuration file (default: auto-detect kubereach.yaml)
func Serve() *cobra.Command {
	var opts handlers.ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluator over HTTP",
		Long: `Run an HTTP server exposing the reachability evaluator.

Against a cluster the snapshot follows namespace, pod and policy changes.
With manifest files the snapshot is fixed.

Endpoints:
  GET  /healthz        snapshot status
  POST /api/v1/check   evaluate one connection
  GET  /api/v1/matrix  evaluate the full matrix
  GET  /api/v1/pods    list pods in the snapshot
  GET  /metrics        Prometheus metrics

Examples:
  # Serve the current cluster on the configured address
  kubereach serve

  # Serve manifest files on a custom port
  kubereach serve -m manifests/ -l :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Source.Manifests, "manifests", "m", nil, "Manifest files or directories")
	cmd.Flags().StringVar(&opts.Source.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	cmd.Flags().StringVarP(&opts.Source.Namespace, "namespace", "n", "", "Restrict the snapshot to one namespace")
	cmd.Flags().StringVarP(&opts.Listen, "listen", "l", "", "Listen address, e.g. :8080")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: kubereach.yaml)")

	return cmd
}

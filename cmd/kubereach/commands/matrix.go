package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubereach/kubereach/cmd/kubereach/handlers"
)

// Matrix returns the command for evaluating the full reachability matrix.
//
// Optional flags:
//
//	--manifests, -m: Manifest files or directories instead of a live cluster
//	--kubeconfig:    Path to the kubeconfig file
//	--namespace, -n: Restrict the snapshot to one namespace
//	--ports, -p:     Ports to probe (default: from configuration)
//	--config, -c:    Path to configuration file (default: auto-detect kubereach.yaml)
//	--output, -o:    Output format (table, json, yaml, csv)
//	--upload:        Upload the rendered report to the configured S3 bucket
func Matrix() *cobra.Command {
	var opts handlers.MatrixOptions

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Evaluate reachability between all pod pairs",
		Long: `Evaluate every source/destination pod pair in the snapshot for a set
of ports and print the resulting matrix.

Examples:
  # Matrix for the configured ports against the current cluster
  kubereach matrix

  # Matrix for specific ports against manifest files
  kubereach matrix -m manifests/ -p 80/TCP -p 6379/TCP

  # Store the report in S3
  kubereach matrix -o json --upload`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Matrix(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Source.Manifests, "manifests", "m", nil, "Manifest files or directories")
	cmd.Flags().StringVar(&opts.Source.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	cmd.Flags().StringVarP(&opts.Source.Namespace, "namespace", "n", "", "Restrict the snapshot to one namespace")
	cmd.Flags().StringSliceVarP(&opts.Ports, "ports", "p", nil, "Ports to probe, e.g. 80/TCP")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: kubereach.yaml)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format: table, json, yaml, csv")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "Upload the report to the configured S3 bucket")

	return cmd
}

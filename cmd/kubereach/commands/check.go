package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubereach/kubereach/cmd/kubereach/handlers"
)

// Check returns the command for evaluating a single connection.
//
// The command takes SOURCE DESTINATION PORT arguments, or --interactive to
// pick the endpoints from the snapshot's pods.
//
// Optional flags:
//
//	--manifests, -m: Manifest files or directories instead of a live cluster
//	--kubeconfig:    Path to the kubeconfig file
//	--namespace, -n: Restrict the snapshot to one namespace
//	--config, -c:    Path to configuration file (default: auto-detect kubereach.yaml)
//	--output, -o:    Output format (table, json, yaml, csv)
//	--interactive, -i: Build the query interactively
//	--exit-code:     Exit with status 1 when the connection is denied
func Check() *cobra.Command {
	var opts handlers.CheckOptions

	cmd := &cobra.Command{
		Use:   "check [source] [destination] [port]",
		Short: "Check whether one pod can reach another",
		Long: `Evaluate whether a connection between two pods is allowed by the
NetworkPolicy objects in the snapshot.

Pods are named namespace/pod; a bare pod name means the default namespace.
The port takes an optional protocol suffix, e.g. 6379/TCP.

Examples:
  # Check against the current cluster
  kubereach check stars/frontend stars/backend 6379/TCP

  # Check against manifest files
  kubereach check -m manifests/ stars/frontend stars/backend 80

  # Pick the endpoints interactively
  kubereach check -i

  # Branch on the verdict in scripts
  kubereach check --exit-code stars/frontend stars/backend 80`,
		Args: cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Interactive && len(args) != 3 {
				return cmd.Usage()
			}
			if len(args) == 3 {
				opts.SourcePod = args[0]
				opts.DestinationPod = args[1]
				opts.Port = args[2]
			}
			return handlers.Check(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Source.Manifests, "manifests", "m", nil, "Manifest files or directories")
	cmd.Flags().StringVar(&opts.Source.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	cmd.Flags().StringVarP(&opts.Source.Namespace, "namespace", "n", "", "Restrict the snapshot to one namespace")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: kubereach.yaml)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format: table, json, yaml, csv")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "Build the query interactively")
	cmd.Flags().BoolVar(&opts.ExitCode, "exit-code", false, "Exit with status 1 when the connection is denied")

	return cmd
}

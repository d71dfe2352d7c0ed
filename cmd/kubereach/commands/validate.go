package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubereach/kubereach/cmd/kubereach/handlers"
)

// Validate returns the command for validating a policy snapshot.
//
// The command builds a snapshot and reports the first configuration error
// found, naming the offending object.
func Validate() *cobra.Command {
	var opts handlers.SourceOptions
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate namespaces, pods and network policies",
		Long: `Build a snapshot from the given source and report whether it is valid.

Validation rejects duplicate objects, pods and policies in undeclared
namespaces, malformed selectors and CIDRs, named ports, port ranges and
unsupported protocols.

Examples:
  # Validate manifest files
  kubereach validate -m manifests/

  # Validate the current cluster state
  kubereach validate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), opts, configPath)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Manifests, "manifests", "m", nil, "Manifest files or directories")
	cmd.Flags().StringVar(&opts.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	cmd.Flags().StringVarP(&opts.Namespace, "namespace", "n", "", "Restrict the snapshot to one namespace")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: kubereach.yaml)")

	return cmd
}

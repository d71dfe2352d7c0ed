// Package main is the entry point for the kubereach CLI.
//
// kubereach answers the question "can this pod talk to that pod?" by
// evaluating Kubernetes NetworkPolicy objects against the pods and
// namespaces of a cluster or a set of manifest files. It never touches the
// network: verdicts come from the declared policies alone.
//
// Commands: check, matrix, validate, serve.
//
// For detailed usage information, run:
//
//	kubereach --help
package main

import (
	"fmt"
	"os"

	"github.com/kubereach/kubereach/cmd/kubereach/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package wizard interactively builds a reachability query from the pods in
// a snapshot.
package wizard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	corev1 "k8s.io/api/core/v1"

	"github.com/kubereach/kubereach/internal/policy"
)

// Run prompts for source pod, destination pod, protocol and port and returns
// the assembled connection.
func Run(ctx context.Context, snap *policy.Snapshot) (policy.Connection, error) {
	pods := snap.Pods()
	if len(pods) < 2 {
		return policy.Connection{}, fmt.Errorf("snapshot has %d pods, need at least 2", len(pods))
	}

	var conn policy.Connection
	if err := runPodGroup(ctx, pods, &conn); err != nil {
		return policy.Connection{}, err
	}
	if err := runPortGroup(ctx, &conn); err != nil {
		return policy.Connection{}, err
	}
	return conn, nil
}

// runPodGroup prompts for the source and destination pods.
func runPodGroup(ctx context.Context, pods []policy.PodRef, conn *policy.Connection) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[policy.PodRef]().
				Title("Source Pod").
				Description("The pod the connection originates from").
				Options(podsToOptions(pods)...).
				Value(&conn.Source),
			huh.NewSelect[policy.PodRef]().
				Title("Destination Pod").
				Description("The pod the connection targets").
				Options(podsToOptions(pods)...).
				Value(&conn.Destination),
		).Title("Connection Endpoints"),
	).RunWithContext(ctx)
}

// runPortGroup prompts for protocol and port.
func runPortGroup(ctx context.Context, conn *policy.Connection) error {
	conn.Protocol = corev1.ProtocolTCP // default
	var portInput string

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[corev1.Protocol]().
				Title("Protocol").
				Options(
					huh.NewOption("TCP", corev1.ProtocolTCP),
					huh.NewOption("UDP", corev1.ProtocolUDP),
					huh.NewOption("SCTP", corev1.ProtocolSCTP),
				).
				Value(&conn.Protocol),
			huh.NewInput().
				Title("Port").
				Description("Destination port, 1-65535").
				Placeholder("80").
				Value(&portInput).
				Validate(validatePort),
		).Title("Connection Target"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	port, _ := strconv.ParseInt(portInput, 10, 32)
	conn.Port = int32(port)
	return nil
}

func podsToOptions(pods []policy.PodRef) []huh.Option[policy.PodRef] {
	opts := make([]huh.Option[policy.PodRef], 0, len(pods))
	for _, pod := range pods {
		opts = append(opts, huh.NewOption(pod.String(), pod))
	}
	return opts
}

func validatePort(s string) error {
	port, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

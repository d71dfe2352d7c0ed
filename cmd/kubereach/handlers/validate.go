package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubereach/kubereach/internal/policy"
)

// Validate handles the validate command.
//
// It builds a snapshot from the given source and reports either the object
// counts or the first configuration error found. Validation failures name
// the offending object.
func Validate(ctx context.Context, opts SourceOptions, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(ctx, opts, cfg)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("validation failed: %w", verr)
		}
		return err
	}

	fmt.Printf("Configuration valid\n")
	fmt.Printf("  namespaces:      %d\n", snap.NamespaceCount())
	fmt.Printf("  pods:            %d\n", snap.PodCount())
	fmt.Printf("  networkpolicies: %d\n", snap.PolicyCount())
	return nil
}

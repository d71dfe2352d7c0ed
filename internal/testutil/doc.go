// Package testutil provides fixture builders shared across test packages.
//
// The builders construct standard Kubernetes API objects (namespaces, pods,
// NetworkPolicies) with a fluent interface so tests read as scenario
// descriptions rather than struct literals.
package testutil

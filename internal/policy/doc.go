// Package policy implements NetworkPolicy reachability evaluation.
//
// The package builds an immutable Snapshot from standard Kubernetes API
// objects (namespaces, pods, NetworkPolicies) and answers pod-to-pod
// reachability queries against it. All label selectors are validated and
// compiled when the snapshot is constructed; evaluation itself is a pure
// predicate that never fails.
//
// Semantics follow the Kubernetes NetworkPolicy model: pods not selected by
// any policy for a traffic direction are open for that direction, and
// policies selecting the same pods compose additively (a connection is
// allowed if at least one rule allows it).
package policy

package policy

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// Connection is a single pod-to-pod reachability query.
type Connection struct {
	Source      PodRef          `json:"source"`
	Destination PodRef          `json:"destination"`
	Protocol    corev1.Protocol `json:"protocol"`
	Port        int32           `json:"port"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s -> %s %d/%s", c.Source, c.Destination, c.Port, c.Protocol)
}

// DirectionVerdict is the outcome of evaluating one traffic direction.
type DirectionVerdict struct {
	// Protected reports whether any policy selects the subject pod for
	// this direction. An unprotected pod is open (platform default-allow).
	Protected bool `json:"protected"`
	// Allowed reports whether this direction permits the connection.
	Allowed bool `json:"allowed"`
	// AllowedBy lists the policies (namespace/name) whose rules allowed
	// the connection. Empty when the pod is unprotected or denied.
	AllowedBy []string `json:"allowedBy,omitempty"`
}

// Verdict is the full outcome of a reachability query.
type Verdict struct {
	Allowed bool `json:"allowed"`
	// Ingress is the verdict of the destination pod's ingress policies.
	Ingress DirectionVerdict `json:"ingress"`
	// Egress is the verdict of the source pod's egress policies.
	Egress DirectionVerdict `json:"egress"`
	// Reason is set when the query could not be evaluated against real
	// pods (unknown source or destination); such queries deny.
	Reason string `json:"reason,omitempty"`
}

// IsAllowed reports whether a connection from src to dst on the given
// protocol and port is permitted. Evaluation never fails: queries naming
// unknown pods return false.
func (s *Snapshot) IsAllowed(src, dst PodRef, protocol corev1.Protocol, port int32) bool {
	return s.Check(Connection{Source: src, Destination: dst, Protocol: protocol, Port: port}).Allowed
}

// Check evaluates a connection and returns the full verdict. A connection
// is allowed when the source's egress policies and the destination's
// ingress policies both permit it.
func (s *Snapshot) Check(conn Connection) Verdict {
	if conn.Protocol == "" {
		conn.Protocol = corev1.ProtocolTCP
	}

	src, ok := s.pods[conn.Source]
	if !ok {
		return Verdict{Reason: fmt.Sprintf("unknown source pod %s", conn.Source)}
	}
	dst, ok := s.pods[conn.Destination]
	if !ok {
		return Verdict{Reason: fmt.Sprintf("unknown destination pod %s", conn.Destination)}
	}

	egress := s.evaluateDirection(directionEgress, src, dst, conn.Protocol, conn.Port)
	ingress := s.evaluateDirection(directionIngress, dst, src, conn.Protocol, conn.Port)

	return Verdict{
		Allowed: egress.Allowed && ingress.Allowed,
		Ingress: ingress,
		Egress:  egress,
	}
}

type direction int

const (
	directionIngress direction = iota
	directionEgress
)

// evaluateDirection evaluates all policies governing subject for one
// direction. The subject is the destination pod for ingress and the source
// pod for egress; peer is the pod on the other end. Policies compose by
// union: the direction allows the connection when at least one matching
// rule allows it, and no rule can take an allowed connection away.
func (s *Snapshot) evaluateDirection(dir direction, subject, peer *podEntry, protocol corev1.Protocol, port int32) DirectionVerdict {
	verdict := DirectionVerdict{}

	for _, pol := range s.policies[subject.ref.Namespace] {
		var rules []compiledRule
		switch dir {
		case directionIngress:
			if !pol.hasIngress {
				continue
			}
			rules = pol.ingress
		case directionEgress:
			if !pol.hasEgress {
				continue
			}
			rules = pol.egress
		}

		if !pol.podSelector.Matches(subject.labels) {
			continue
		}
		// The policy selects the subject: the pod is isolated for this
		// direction even if no rule ends up allowing anything.
		verdict.Protected = true

		for _, rule := range rules {
			if !rule.matchesPort(protocol, port) {
				continue
			}
			if rule.matchesPeer(pol.namespace, peer) {
				verdict.Allowed = true
				verdict.AllowedBy = append(verdict.AllowedBy, pol.key())
				break
			}
		}
	}

	if !verdict.Protected {
		verdict.Allowed = true
	}
	return verdict
}

// matchesPort reports whether the rule admits the protocol/port pair.
// A rule without port entries admits all ports and protocols.
func (r *compiledRule) matchesPort(protocol corev1.Protocol, port int32) bool {
	if len(r.ports) == 0 {
		return true
	}
	for _, p := range r.ports {
		if p.protocol != protocol {
			continue
		}
		if p.allPorts || p.port == port {
			return true
		}
	}
	return false
}

// matchesPeer reports whether any peer entry of the rule selects the given
// pod. A rule without peer entries selects every peer.
func (r *compiledRule) matchesPeer(policyNamespace string, peer *podEntry) bool {
	if r.allPeers {
		return true
	}
	for _, p := range r.peers {
		if p.matches(policyNamespace, peer) {
			return true
		}
	}
	return false
}

// matches applies the NetworkPolicyPeer semantics: a namespaceSelector
// alone selects all pods in matching namespaces, a podSelector alone
// selects pods in the policy's own namespace, and both together require
// both to match.
func (p *compiledPeer) matches(policyNamespace string, peer *podEntry) bool {
	if p.ipBlock {
		return false
	}
	if p.namespaceSelector != nil {
		if !p.namespaceSelector.Matches(peer.namespace.labels) {
			return false
		}
		if p.podSelector != nil && !p.podSelector.Matches(peer.labels) {
			return false
		}
		return true
	}
	return peer.ref.Namespace == policyNamespace && p.podSelector.Matches(peer.labels)
}

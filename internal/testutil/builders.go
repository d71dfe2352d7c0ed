package testutil

import (
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Namespace builds a namespace with the given labels.
func Namespace(name string, labels map[string]string) corev1.Namespace {
	return corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
	}
}

// Pod builds a pod in the given namespace with the given labels.
func Pod(namespace, name string, labels map[string]string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
	}
}

// PolicyBuilder provides a fluent interface for constructing NetworkPolicy
// fixtures. Each method mutates and returns the builder for chaining.
type PolicyBuilder struct {
	policy networkingv1.NetworkPolicy
}

// NewPolicy creates a builder for a policy in the given namespace.
func NewPolicy(namespace, name string) *PolicyBuilder {
	return &PolicyBuilder{
		policy: networkingv1.NetworkPolicy{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
		},
	}
}

// WithPodSelector sets the policy's podSelector match labels. Not calling
// it leaves the selector empty, which selects all pods in the namespace.
func (b *PolicyBuilder) WithPodSelector(matchLabels map[string]string) *PolicyBuilder {
	b.policy.Spec.PodSelector = metav1.LabelSelector{MatchLabels: matchLabels}
	return b
}

// WithPolicyTypes sets the policy types explicitly.
func (b *PolicyBuilder) WithPolicyTypes(types ...networkingv1.PolicyType) *PolicyBuilder {
	b.policy.Spec.PolicyTypes = types
	return b
}

// DenyAllIngress marks the policy as an ingress policy with no rules,
// isolating every selected pod.
func (b *PolicyBuilder) DenyAllIngress() *PolicyBuilder {
	return b.WithPolicyTypes(networkingv1.PolicyTypeIngress)
}

// WithIngressRule appends an ingress rule.
func (b *PolicyBuilder) WithIngressRule(rule networkingv1.NetworkPolicyIngressRule) *PolicyBuilder {
	b.policy.Spec.Ingress = append(b.policy.Spec.Ingress, rule)
	if len(b.policy.Spec.PolicyTypes) == 0 {
		b.policy.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeIngress}
	}
	return b
}

// WithEgressRule appends an egress rule and ensures Egress is in the
// policy types.
func (b *PolicyBuilder) WithEgressRule(rule networkingv1.NetworkPolicyEgressRule) *PolicyBuilder {
	b.policy.Spec.Egress = append(b.policy.Spec.Egress, rule)
	hasEgress := false
	for _, pt := range b.policy.Spec.PolicyTypes {
		if pt == networkingv1.PolicyTypeEgress {
			hasEgress = true
		}
	}
	if !hasEgress {
		b.policy.Spec.PolicyTypes = append(b.policy.Spec.PolicyTypes, networkingv1.PolicyTypeEgress)
	}
	return b
}

// Build returns the constructed policy.
func (b *PolicyBuilder) Build() networkingv1.NetworkPolicy {
	return b.policy
}

// IngressFromPods builds an ingress rule admitting same-namespace pods
// matching the selector, optionally restricted to ports.
func IngressFromPods(matchLabels map[string]string, ports ...networkingv1.NetworkPolicyPort) networkingv1.NetworkPolicyIngressRule {
	return networkingv1.NetworkPolicyIngressRule{
		From: []networkingv1.NetworkPolicyPeer{
			{PodSelector: &metav1.LabelSelector{MatchLabels: matchLabels}},
		},
		Ports: ports,
	}
}

// IngressFromNamespaces builds an ingress rule admitting all pods in
// namespaces matching the selector.
func IngressFromNamespaces(matchLabels map[string]string, ports ...networkingv1.NetworkPolicyPort) networkingv1.NetworkPolicyIngressRule {
	return networkingv1.NetworkPolicyIngressRule{
		From: []networkingv1.NetworkPolicyPeer{
			{NamespaceSelector: &metav1.LabelSelector{MatchLabels: matchLabels}},
		},
		Ports: ports,
	}
}

// TCPPort builds a TCP port entry.
func TCPPort(port int32) networkingv1.NetworkPolicyPort {
	proto := corev1.ProtocolTCP
	p := intstr.FromInt32(port)
	return networkingv1.NetworkPolicyPort{Protocol: &proto, Port: &p}
}

// UDPPort builds a UDP port entry.
func UDPPort(port int32) networkingv1.NetworkPolicyPort {
	proto := corev1.ProtocolUDP
	p := intstr.FromInt32(port)
	return networkingv1.NetworkPolicyPort{Protocol: &proto, Port: &p}
}

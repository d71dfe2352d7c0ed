package policy

import (
	"fmt"
	"net"
	"sort"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// NamespaceNameLabel is the well-known label the API server sets on every
// namespace. Snapshots add it when absent so namespaceSelector matching on
// offline fixtures behaves like a real cluster.
const NamespaceNameLabel = "kubernetes.io/metadata.name"

// PodRef identifies a pod by namespace and name.
type PodRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (r PodRef) String() string {
	return r.Namespace + "/" + r.Name
}

// ValidationError reports an object that failed snapshot construction.
// Construction aborts on the first invalid object; there is no partial
// snapshot.
type ValidationError struct {
	Kind      string
	Namespace string
	Name      string
	Reason    string
	Err       error
}

func (e *ValidationError) Error() string {
	ref := e.Name
	if e.Namespace != "" {
		ref = e.Namespace + "/" + e.Name
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %s: %v", e.Kind, ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, ref, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of namespaces, pods and network policies.
// It is safe for concurrent use; refreshing cluster state means building a
// new snapshot and swapping it in atomically.
type Snapshot struct {
	namespaces map[string]*namespaceEntry
	pods       map[PodRef]*podEntry
	policies   map[string][]*compiledPolicy

	namespaceCount int
	podCount       int
	policyCount    int
}

type namespaceEntry struct {
	name   string
	labels labels.Set
}

type podEntry struct {
	ref       PodRef
	labels    labels.Set
	namespace *namespaceEntry
}

// compiledPolicy is a NetworkPolicy with all selectors pre-compiled.
type compiledPolicy struct {
	namespace string
	name      string

	podSelector labels.Selector
	hasIngress  bool
	hasEgress   bool
	ingress     []compiledRule
	egress      []compiledRule
}

func (p *compiledPolicy) key() string { return p.namespace + "/" + p.name }

// compiledRule is one ingress or egress rule. An empty peer list with
// allPeers set matches every peer; allPeers unset only happens for rules
// that do carry peer entries.
type compiledRule struct {
	ports    []compiledPort
	peers    []compiledPeer
	allPeers bool
}

type compiledPort struct {
	protocol corev1.Protocol
	port     int32
	allPorts bool
}

type compiledPeer struct {
	podSelector       labels.Selector
	namespaceSelector labels.Selector
	// ipBlock peers are validated but never match pod-to-pod traffic:
	// the model carries no pod IP assignments.
	ipBlock bool
}

// NewSnapshot validates the given objects and builds a snapshot.
// Every selector, port and peer is checked here so that evaluation can
// never fail (fail-fast construction, fail-closed evaluation).
func NewSnapshot(namespaces []corev1.Namespace, pods []corev1.Pod, policies []networkingv1.NetworkPolicy) (*Snapshot, error) {
	s := &Snapshot{
		namespaces: make(map[string]*namespaceEntry, len(namespaces)),
		pods:       make(map[PodRef]*podEntry, len(pods)),
		policies:   make(map[string][]*compiledPolicy),
	}

	for i := range namespaces {
		ns := &namespaces[i]
		if ns.Name == "" {
			return nil, &ValidationError{Kind: "Namespace", Name: ns.Name, Reason: "namespace has no name"}
		}
		if _, exists := s.namespaces[ns.Name]; exists {
			return nil, &ValidationError{Kind: "Namespace", Name: ns.Name, Reason: "duplicate namespace"}
		}
		lbls := labels.Set{}
		for k, v := range ns.Labels {
			lbls[k] = v
		}
		if _, ok := lbls[NamespaceNameLabel]; !ok {
			lbls[NamespaceNameLabel] = ns.Name
		}
		s.namespaces[ns.Name] = &namespaceEntry{name: ns.Name, labels: lbls}
	}
	s.namespaceCount = len(s.namespaces)

	for i := range pods {
		pod := &pods[i]
		entry, err := s.compilePod(pod)
		if err != nil {
			return nil, err
		}
		if _, exists := s.pods[entry.ref]; exists {
			return nil, &ValidationError{Kind: "Pod", Namespace: pod.Namespace, Name: pod.Name, Reason: "duplicate pod"}
		}
		s.pods[entry.ref] = entry
	}
	s.podCount = len(s.pods)

	for i := range policies {
		netpol := &policies[i]
		compiled, err := s.compilePolicy(netpol)
		if err != nil {
			return nil, err
		}
		s.policies[compiled.namespace] = append(s.policies[compiled.namespace], compiled)
		s.policyCount++
	}

	return s, nil
}

func (s *Snapshot) compilePod(pod *corev1.Pod) (*podEntry, error) {
	if pod.Name == "" {
		return nil, &ValidationError{Kind: "Pod", Namespace: pod.Namespace, Name: pod.Name, Reason: "pod has no name"}
	}
	ns, ok := s.namespaces[pod.Namespace]
	if !ok {
		return nil, &ValidationError{Kind: "Pod", Namespace: pod.Namespace, Name: pod.Name,
			Reason: fmt.Sprintf("references unknown namespace %q", pod.Namespace)}
	}
	lbls := labels.Set{}
	for k, v := range pod.Labels {
		lbls[k] = v
	}
	return &podEntry{
		ref:       PodRef{Namespace: pod.Namespace, Name: pod.Name},
		labels:    lbls,
		namespace: ns,
	}, nil
}

func (s *Snapshot) compilePolicy(netpol *networkingv1.NetworkPolicy) (*compiledPolicy, error) {
	fail := func(reason string, err error) error {
		return &ValidationError{Kind: "NetworkPolicy", Namespace: netpol.Namespace, Name: netpol.Name, Reason: reason, Err: err}
	}

	if netpol.Name == "" {
		return nil, fail("policy has no name", nil)
	}
	if _, ok := s.namespaces[netpol.Namespace]; !ok {
		return nil, fail(fmt.Sprintf("references unknown namespace %q", netpol.Namespace), nil)
	}

	podSelector, err := metav1.LabelSelectorAsSelector(&netpol.Spec.PodSelector)
	if err != nil {
		return nil, fail("malformed podSelector", err)
	}

	compiled := &compiledPolicy{
		namespace:   netpol.Namespace,
		name:        netpol.Name,
		podSelector: podSelector,
	}

	// PolicyTypes defaulting mirrors the API server: an absent list means
	// Ingress, plus Egress when egress rules are present.
	if len(netpol.Spec.PolicyTypes) == 0 {
		compiled.hasIngress = true
		compiled.hasEgress = len(netpol.Spec.Egress) > 0
	} else {
		for _, pt := range netpol.Spec.PolicyTypes {
			switch pt {
			case networkingv1.PolicyTypeIngress:
				compiled.hasIngress = true
			case networkingv1.PolicyTypeEgress:
				compiled.hasEgress = true
			default:
				return nil, fail(fmt.Sprintf("unsupported policy type %q", pt), nil)
			}
		}
	}

	for i := range netpol.Spec.Ingress {
		rule, err := compileRule(netpol.Spec.Ingress[i].Ports, netpol.Spec.Ingress[i].From)
		if err != nil {
			return nil, fail(fmt.Sprintf("ingress rule %d", i), err)
		}
		compiled.ingress = append(compiled.ingress, rule)
	}
	for i := range netpol.Spec.Egress {
		rule, err := compileRule(netpol.Spec.Egress[i].Ports, netpol.Spec.Egress[i].To)
		if err != nil {
			return nil, fail(fmt.Sprintf("egress rule %d", i), err)
		}
		compiled.egress = append(compiled.egress, rule)
	}

	return compiled, nil
}

func compileRule(ports []networkingv1.NetworkPolicyPort, peers []networkingv1.NetworkPolicyPeer) (compiledRule, error) {
	rule := compiledRule{allPeers: len(peers) == 0}

	for i, port := range ports {
		compiled, err := compilePort(port)
		if err != nil {
			return rule, fmt.Errorf("port %d: %w", i, err)
		}
		rule.ports = append(rule.ports, compiled)
	}

	for i, peer := range peers {
		compiled, err := compilePeer(peer)
		if err != nil {
			return rule, fmt.Errorf("peer %d: %w", i, err)
		}
		rule.peers = append(rule.peers, compiled)
	}

	return rule, nil
}

func compilePort(port networkingv1.NetworkPolicyPort) (compiledPort, error) {
	compiled := compiledPort{protocol: corev1.ProtocolTCP}
	if port.Protocol != nil {
		switch *port.Protocol {
		case corev1.ProtocolTCP, corev1.ProtocolUDP, corev1.ProtocolSCTP:
			compiled.protocol = *port.Protocol
		default:
			return compiled, fmt.Errorf("unsupported protocol %q", *port.Protocol)
		}
	}
	if port.EndPort != nil {
		return compiled, fmt.Errorf("port ranges are not supported")
	}
	if port.Port == nil {
		compiled.allPorts = true
		return compiled, nil
	}
	if port.Port.Type == intstr.String {
		return compiled, fmt.Errorf("named port %q is not supported", port.Port.StrVal)
	}
	compiled.port = port.Port.IntVal
	return compiled, nil
}

func compilePeer(peer networkingv1.NetworkPolicyPeer) (compiledPeer, error) {
	compiled := compiledPeer{}

	if peer.IPBlock != nil {
		if peer.PodSelector != nil || peer.NamespaceSelector != nil {
			return compiled, fmt.Errorf("ipBlock cannot be combined with selectors")
		}
		if _, _, err := net.ParseCIDR(peer.IPBlock.CIDR); err != nil {
			return compiled, fmt.Errorf("malformed ipBlock cidr %q: %w", peer.IPBlock.CIDR, err)
		}
		for _, except := range peer.IPBlock.Except {
			if _, _, err := net.ParseCIDR(except); err != nil {
				return compiled, fmt.Errorf("malformed ipBlock except %q: %w", except, err)
			}
		}
		compiled.ipBlock = true
		return compiled, nil
	}

	if peer.PodSelector == nil && peer.NamespaceSelector == nil {
		return compiled, fmt.Errorf("peer has no selector")
	}
	if peer.PodSelector != nil {
		sel, err := metav1.LabelSelectorAsSelector(peer.PodSelector)
		if err != nil {
			return compiled, fmt.Errorf("malformed podSelector: %w", err)
		}
		compiled.podSelector = sel
	}
	if peer.NamespaceSelector != nil {
		sel, err := metav1.LabelSelectorAsSelector(peer.NamespaceSelector)
		if err != nil {
			return compiled, fmt.Errorf("malformed namespaceSelector: %w", err)
		}
		compiled.namespaceSelector = sel
	}
	return compiled, nil
}

// Pods returns all pod references, sorted by namespace then name.
func (s *Snapshot) Pods() []PodRef {
	refs := make([]PodRef, 0, len(s.pods))
	for ref := range s.pods {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Namespace != refs[j].Namespace {
			return refs[i].Namespace < refs[j].Namespace
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Namespaces returns all namespace names, sorted.
func (s *Snapshot) Namespaces() []string {
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPod reports whether the snapshot contains the given pod.
func (s *Snapshot) HasPod(ref PodRef) bool {
	_, ok := s.pods[ref]
	return ok
}

// PodCount returns the number of pods in the snapshot.
func (s *Snapshot) PodCount() int { return s.podCount }

// NamespaceCount returns the number of namespaces in the snapshot.
func (s *Snapshot) NamespaceCount() int { return s.namespaceCount }

// PolicyCount returns the number of network policies in the snapshot.
func (s *Snapshot) PolicyCount() int { return s.policyCount }

package policy

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereach/kubereach/internal/testutil"
)

func mustSnapshot(t *testing.T, namespaces []corev1.Namespace, pods []corev1.Pod, policies []networkingv1.NetworkPolicy) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(namespaces, pods, policies)
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	return snap
}

var (
	starsBackend  = PodRef{Namespace: "stars", Name: "backend"}
	starsFrontend = PodRef{Namespace: "stars", Name: "frontend"}
	clientPod     = PodRef{Namespace: "client", Name: "client-1"}
	uiPod         = PodRef{Namespace: "management-ui", Name: "ui-1"}
)

// starsFixture mirrors the classic stars demo topology: a stars namespace
// with frontend and backend pods, a client namespace, and a management-ui
// namespace labeled role=management-ui.
func starsFixture() ([]corev1.Namespace, []corev1.Pod) {
	namespaces := []corev1.Namespace{
		testutil.Namespace("stars", map[string]string{"role": "stars"}),
		testutil.Namespace("client", map[string]string{"role": "client"}),
		testutil.Namespace("management-ui", map[string]string{"role": "management-ui"}),
	}
	pods := []corev1.Pod{
		testutil.Pod("stars", "backend", map[string]string{"role": "backend"}),
		testutil.Pod("stars", "frontend", map[string]string{"role": "frontend"}),
		testutil.Pod("client", "client-1", map[string]string{"role": "client"}),
		testutil.Pod("management-ui", "ui-1", map[string]string{"role": "ui"}),
	}
	return namespaces, pods
}

func TestCheck_DefaultAllow(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()
	snap := mustSnapshot(t, namespaces, pods, nil)

	// No policies anywhere: every connection is allowed from any source
	// on any port.
	tests := []struct {
		name     string
		src, dst PodRef
		protocol corev1.Protocol
		port     int32
	}{
		{"same namespace", starsFrontend, starsBackend, corev1.ProtocolTCP, 6379},
		{"cross namespace", clientPod, starsBackend, corev1.ProtocolTCP, 80},
		{"udp", uiPod, clientPod, corev1.ProtocolUDP, 53},
		{"high port", clientPod, uiPod, corev1.ProtocolTCP, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !snap.IsAllowed(tt.src, tt.dst, tt.protocol, tt.port) {
				t.Errorf("expected %s -> %s %d/%s to be allowed", tt.src, tt.dst, tt.port, tt.protocol)
			}
			verdict := snap.Check(Connection{Source: tt.src, Destination: tt.dst, Protocol: tt.protocol, Port: tt.port})
			if verdict.Ingress.Protected || verdict.Egress.Protected {
				t.Error("pods without policies must not be reported as protected")
			}
		})
	}
}

func TestCheck_DefaultDeny(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()
	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		// Empty podSelector, Ingress type, no rules: isolates every pod
		// in the namespace without opening anything.
		testutil.NewPolicy("stars", "default-deny").DenyAllIngress().Build(),
	})

	for _, src := range []PodRef{starsFrontend, clientPod, uiPod} {
		if snap.IsAllowed(src, starsBackend, corev1.ProtocolTCP, 6379) {
			t.Errorf("expected %s -> %s to be denied", src, starsBackend)
		}
	}

	verdict := snap.Check(Connection{Source: clientPod, Destination: starsBackend, Protocol: corev1.ProtocolTCP, Port: 80})
	if !verdict.Ingress.Protected {
		t.Error("destination must be reported as protected")
	}
	if verdict.Egress.Protected {
		t.Error("source has no egress policies and must not be protected")
	}

	// Traffic originating from the isolated pods is unaffected: the
	// policy only constrains ingress.
	if !snap.IsAllowed(starsBackend, clientPod, corev1.ProtocolTCP, 80) {
		t.Error("ingress-only policy must not restrict outbound traffic")
	}
}

func TestCheck_StarsScenario(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	denyAll := testutil.NewPolicy("stars", "default-deny").DenyAllIngress().Build()
	allowFrontend := testutil.NewPolicy("stars", "allow-frontend-to-backend").
		WithPodSelector(map[string]string{"role": "backend"}).
		WithIngressRule(testutil.IngressFromPods(
			map[string]string{"role": "frontend"},
			testutil.TCPPort(6379),
		)).
		Build()

	before := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{denyAll})
	if before.IsAllowed(starsFrontend, starsBackend, corev1.ProtocolTCP, 6379) {
		t.Fatal("backend must deny all ingress before the allow rule exists")
	}

	after := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{denyAll, allowFrontend})

	tests := []struct {
		name     string
		src      PodRef
		protocol corev1.Protocol
		port     int32
		want     bool
	}{
		{"frontend on allowed port", starsFrontend, corev1.ProtocolTCP, 6379, true},
		{"frontend on other port", starsFrontend, corev1.ProtocolTCP, 80, false},
		{"frontend wrong protocol", starsFrontend, corev1.ProtocolUDP, 6379, false},
		{"client not allowed", clientPod, corev1.ProtocolTCP, 6379, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := after.IsAllowed(tt.src, starsBackend, tt.protocol, tt.port)
			if got != tt.want {
				t.Errorf("IsAllowed(%s -> %s %d/%s) = %v, want %v",
					tt.src, starsBackend, tt.port, tt.protocol, got, tt.want)
			}
		})
	}

	verdict := after.Check(Connection{Source: starsFrontend, Destination: starsBackend, Protocol: corev1.ProtocolTCP, Port: 6379})
	if len(verdict.Ingress.AllowedBy) != 1 || verdict.Ingress.AllowedBy[0] != "stars/allow-frontend-to-backend" {
		t.Errorf("unexpected AllowedBy: %v", verdict.Ingress.AllowedBy)
	}
}

func TestCheck_NamespaceSelectorScenario(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("client", "default-deny").DenyAllIngress().Build(),
		testutil.NewPolicy("client", "allow-ui").
			WithIngressRule(testutil.IngressFromNamespaces(map[string]string{"role": "management-ui"})).
			Build(),
	})

	// A namespaceSelector without a podSelector admits every pod in the
	// matching namespaces, on any port.
	for _, port := range []int32{80, 443, 9000} {
		if !snap.IsAllowed(uiPod, clientPod, corev1.ProtocolTCP, port) {
			t.Errorf("ui pod must reach client pods on port %d", port)
		}
	}

	// Pods in namespaces that do not match stay denied.
	if snap.IsAllowed(starsFrontend, clientPod, corev1.ProtocolTCP, 80) {
		t.Error("pod outside the selected namespaces must be denied")
	}
}

func TestCheck_UnionMonotonicity(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	base := []networkingv1.NetworkPolicy{
		testutil.NewPolicy("stars", "default-deny").DenyAllIngress().Build(),
		testutil.NewPolicy("stars", "allow-frontend").
			WithPodSelector(map[string]string{"role": "backend"}).
			WithIngressRule(testutil.IngressFromPods(map[string]string{"role": "frontend"}, testutil.TCPPort(6379))).
			Build(),
	}
	extra := testutil.NewPolicy("stars", "allow-client-ns").
		WithPodSelector(map[string]string{"role": "backend"}).
		WithIngressRule(testutil.IngressFromNamespaces(map[string]string{"role": "client"})).
		Build()

	before := mustSnapshot(t, namespaces, pods, base)
	after := mustSnapshot(t, namespaces, pods, append(append([]networkingv1.NetworkPolicy{}, base...), extra))

	ports := []PortProtocol{{Protocol: corev1.ProtocolTCP, Port: 6379}, {Protocol: corev1.ProtocolTCP, Port: 80}}
	beforeMatrix := BuildMatrix(before, ports)
	afterMatrix := BuildMatrix(after, ports)

	// Adding a policy may only grow the allowed set: every triple allowed
	// before must still be allowed after.
	afterAllowed := make(map[MatrixEntry]bool)
	for _, e := range afterMatrix.Entries {
		if e.Allowed {
			e.Allowed = false
			afterAllowed[e] = true
		}
	}
	for _, e := range beforeMatrix.Entries {
		if !e.Allowed {
			continue
		}
		e.Allowed = false
		if !afterAllowed[e] {
			t.Errorf("adding a policy removed allowed connection %s -> %s %s", e.Source, e.Destination, e.Port)
		}
	}

	// And the new policy did open something.
	if !after.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("new namespace rule should allow client pods")
	}
	if before.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("client pods must be denied before the extra rule")
	}
}

func TestCheck_SelectorSubsetDirectionality(t *testing.T) {
	t.Parallel()
	// The selector requires role+tier; a pod carrying a superset of those
	// labels matches, a pod carrying a subset does not.
	namespaces := []corev1.Namespace{testutil.Namespace("apps", nil)}
	pods := []corev1.Pod{
		testutil.Pod("apps", "full", map[string]string{"role": "web", "tier": "prod", "extra": "yes"}),
		testutil.Pod("apps", "partial", map[string]string{"role": "web"}),
		testutil.Pod("apps", "target", map[string]string{"app": "db"}),
	}
	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("apps", "deny").DenyAllIngress().Build(),
		testutil.NewPolicy("apps", "allow-web-prod").
			WithPodSelector(map[string]string{"app": "db"}).
			WithIngressRule(testutil.IngressFromPods(map[string]string{"role": "web", "tier": "prod"})).
			Build(),
	})

	target := PodRef{Namespace: "apps", Name: "target"}
	if !snap.IsAllowed(PodRef{Namespace: "apps", Name: "full"}, target, corev1.ProtocolTCP, 5432) {
		t.Error("pod with superset labels must match the selector")
	}
	if snap.IsAllowed(PodRef{Namespace: "apps", Name: "partial"}, target, corev1.ProtocolTCP, 5432) {
		t.Error("pod with subset labels must not match the selector")
	}
}

func TestCheck_CombinedNamespaceAndPodSelector(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()
	extraPods := append(append([]corev1.Pod{}, pods...),
		testutil.Pod("management-ui", "sidecar", map[string]string{"role": "sidecar"}),
	)

	// Peer with both selectors: pods matching role=ui restricted to
	// namespaces matching role=management-ui.
	snap := mustSnapshot(t, namespaces, extraPods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("client", "deny").DenyAllIngress().Build(),
		testutil.NewPolicy("client", "allow-ui-pods").
			WithIngressRule(networkingv1.NetworkPolicyIngressRule{
				From: []networkingv1.NetworkPolicyPeer{{
					NamespaceSelector: &metav1.LabelSelector{MatchLabels: map[string]string{"role": "management-ui"}},
					PodSelector:       &metav1.LabelSelector{MatchLabels: map[string]string{"role": "ui"}},
				}},
			}).
			Build(),
	})

	if !snap.IsAllowed(uiPod, clientPod, corev1.ProtocolTCP, 80) {
		t.Error("ui pod in management-ui namespace must be allowed")
	}
	if snap.IsAllowed(PodRef{Namespace: "management-ui", Name: "sidecar"}, clientPod, corev1.ProtocolTCP, 80) {
		t.Error("sidecar pod does not match the pod selector and must be denied")
	}
}

func TestCheck_EmptyFromAllowsAllSources(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("stars", "allow-port-only").
			WithPodSelector(map[string]string{"role": "backend"}).
			WithIngressRule(networkingv1.NetworkPolicyIngressRule{
				Ports: []networkingv1.NetworkPolicyPort{testutil.TCPPort(6379)},
			}).
			Build(),
	})

	// A rule with ports but no from entries admits any source on those
	// ports, and nothing else.
	if !snap.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 6379) {
		t.Error("any source must be allowed on the listed port")
	}
	if snap.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("other ports must be denied")
	}
}

func TestCheck_EgressAndIngressBothRequired(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		// Frontend may only talk to backend on 6379.
		testutil.NewPolicy("stars", "restrict-frontend-egress").
			WithPodSelector(map[string]string{"role": "frontend"}).
			WithEgressRule(networkingv1.NetworkPolicyEgressRule{
				To: []networkingv1.NetworkPolicyPeer{
					{PodSelector: &metav1.LabelSelector{MatchLabels: map[string]string{"role": "backend"}}},
				},
				Ports: []networkingv1.NetworkPolicyPort{testutil.TCPPort(6379)},
			}).
			Build(),
	})

	if !snap.IsAllowed(starsFrontend, starsBackend, corev1.ProtocolTCP, 6379) {
		t.Error("egress rule must allow frontend -> backend on 6379")
	}
	if snap.IsAllowed(starsFrontend, clientPod, corev1.ProtocolTCP, 6379) {
		t.Error("egress-restricted pod must not reach other destinations")
	}
	if snap.IsAllowed(starsFrontend, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("egress-restricted pod must not use other ports")
	}
	// Other pods' egress is untouched.
	if !snap.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("pods without egress policies keep default-allow egress")
	}
}

func TestCheck_IPBlockPeerNeverMatchesPods(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()

	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("stars", "deny").DenyAllIngress().Build(),
		testutil.NewPolicy("stars", "allow-cidr").
			WithIngressRule(networkingv1.NetworkPolicyIngressRule{
				From: []networkingv1.NetworkPolicyPeer{
					{IPBlock: &networkingv1.IPBlock{CIDR: "10.0.0.0/8"}},
				},
			}).
			Build(),
	})

	// The model has no pod IPs; ipBlock rules cannot admit pod traffic.
	if snap.IsAllowed(clientPod, starsBackend, corev1.ProtocolTCP, 80) {
		t.Error("ipBlock peers must not match pod-to-pod traffic")
	}
}

func TestCheck_UnknownPodsFailClosed(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()
	snap := mustSnapshot(t, namespaces, pods, nil)

	ghost := PodRef{Namespace: "stars", Name: "ghost"}

	verdict := snap.Check(Connection{Source: ghost, Destination: starsBackend, Protocol: corev1.ProtocolTCP, Port: 80})
	if verdict.Allowed {
		t.Error("unknown source pod must deny")
	}
	if verdict.Reason == "" {
		t.Error("unknown pod verdicts must carry a reason")
	}

	if snap.IsAllowed(starsBackend, ghost, corev1.ProtocolTCP, 80) {
		t.Error("unknown destination pod must deny")
	}
}

func TestCheck_ProtocolDefaultsToTCP(t *testing.T) {
	t.Parallel()
	namespaces, pods := starsFixture()
	snap := mustSnapshot(t, namespaces, pods, []networkingv1.NetworkPolicy{
		testutil.NewPolicy("stars", "deny").DenyAllIngress().Build(),
		testutil.NewPolicy("stars", "allow-6379").
			WithIngressRule(networkingv1.NetworkPolicyIngressRule{
				Ports: []networkingv1.NetworkPolicyPort{testutil.TCPPort(6379)},
			}).
			Build(),
	})

	verdict := snap.Check(Connection{Source: clientPod, Destination: starsBackend, Port: 6379})
	if !verdict.Allowed {
		t.Error("empty protocol must default to TCP")
	}
}

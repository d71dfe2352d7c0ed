package e2e

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"

	"github.com/kubereach/kubereach/internal/manifest"
	"github.com/kubereach/kubereach/internal/policy"
)

var (
	frontend = policy.PodRef{Namespace: "stars", Name: "frontend"}
	backend  = policy.PodRef{Namespace: "stars", Name: "backend"}
	client   = policy.PodRef{Namespace: "client", Name: "client"}
	ui       = policy.PodRef{Namespace: "management-ui", Name: "management-ui"}
)

var _ = Describe("Stars scenario", func() {
	var snap *policy.Snapshot

	BeforeEach(func() {
		var err error
		snap, err = manifest.Load(filepath.Join("testdata", "stars.yaml"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("loads the full scenario", func() {
		Expect(snap.NamespaceCount()).To(Equal(3))
		Expect(snap.PodCount()).To(Equal(4))
		Expect(snap.PolicyCount()).To(Equal(6))
	})

	Describe("management UI access", func() {
		It("reaches every star and the client", func() {
			for _, dst := range []policy.PodRef{frontend, backend, client} {
				Expect(snap.IsAllowed(ui, dst, corev1.ProtocolTCP, 80)).To(BeTrue(),
					"ui should reach %s", dst)
			}
		})

		It("is itself unprotected and reachable", func() {
			Expect(snap.IsAllowed(client, ui, corev1.ProtocolTCP, 80)).To(BeTrue())
		})
	})

	Describe("frontend to backend", func() {
		It("allows the redis port", func() {
			verdict := snap.Check(policy.Connection{
				Source:      frontend,
				Destination: backend,
				Protocol:    corev1.ProtocolTCP,
				Port:        6379,
			})
			Expect(verdict.Allowed).To(BeTrue())
			Expect(verdict.Ingress.AllowedBy).To(ContainElement("stars/backend-policy"))
		})

		It("denies other ports", func() {
			Expect(snap.IsAllowed(frontend, backend, corev1.ProtocolTCP, 80)).To(BeFalse())
		})

		It("denies other protocols on the redis port", func() {
			Expect(snap.IsAllowed(frontend, backend, corev1.ProtocolUDP, 6379)).To(BeFalse())
		})
	})

	Describe("client access", func() {
		It("reaches the frontend on port 80", func() {
			Expect(snap.IsAllowed(client, frontend, corev1.ProtocolTCP, 80)).To(BeTrue())
		})

		It("cannot reach the backend", func() {
			Expect(snap.IsAllowed(client, backend, corev1.ProtocolTCP, 6379)).To(BeFalse())
			Expect(snap.IsAllowed(client, backend, corev1.ProtocolTCP, 80)).To(BeFalse())
		})
	})

	Describe("isolation", func() {
		It("denies backend to frontend", func() {
			Expect(snap.IsAllowed(backend, frontend, corev1.ProtocolTCP, 6379)).To(BeFalse())
		})

		It("denies stars pods reaching the client except via the UI namespace rule", func() {
			Expect(snap.IsAllowed(frontend, client, corev1.ProtocolTCP, 80)).To(BeFalse())
		})
	})

	Describe("matrix", func() {
		It("matches the per-connection verdicts", func() {
			ports := []policy.PortProtocol{{Protocol: corev1.ProtocolTCP, Port: 80}}
			matrix := policy.BuildMatrix(snap, ports)
			Expect(matrix.Entries).To(HaveLen(12))

			for _, e := range matrix.Entries {
				Expect(e.Allowed).To(Equal(
					snap.IsAllowed(e.Source, e.Destination, corev1.ProtocolTCP, 80)),
					"matrix entry %s -> %s", e.Source, e.Destination)
			}
		})
	})
})

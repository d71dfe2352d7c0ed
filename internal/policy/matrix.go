package policy

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// PortProtocol is a single port/protocol pair a matrix is evaluated for.
type PortProtocol struct {
	Protocol corev1.Protocol `json:"protocol"`
	Port     int32           `json:"port"`
}

func (p PortProtocol) String() string {
	return fmt.Sprintf("%d/%s", p.Port, p.Protocol)
}

// ParsePortProtocol parses "6379/TCP" style strings. The protocol part is
// optional and defaults to TCP.
func ParsePortProtocol(s string) (PortProtocol, error) {
	pp := PortProtocol{Protocol: corev1.ProtocolTCP}

	portPart := s
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		portPart = s[:idx]
		switch proto := strings.ToUpper(s[idx+1:]); proto {
		case "TCP":
			pp.Protocol = corev1.ProtocolTCP
		case "UDP":
			pp.Protocol = corev1.ProtocolUDP
		case "SCTP":
			pp.Protocol = corev1.ProtocolSCTP
		default:
			return pp, fmt.Errorf("unsupported protocol %q in %q", proto, s)
		}
	}

	port, err := strconv.ParseInt(portPart, 10, 32)
	if err != nil {
		return pp, fmt.Errorf("invalid port in %q: %w", s, err)
	}
	if port < 1 || port > 65535 {
		return pp, fmt.Errorf("port %d out of range in %q", port, s)
	}
	pp.Port = int32(port)
	return pp, nil
}

// ParseProtocol parses a protocol name. Empty input defaults to TCP.
func ParseProtocol(s string) (corev1.Protocol, error) {
	switch strings.ToUpper(s) {
	case "", "TCP":
		return corev1.ProtocolTCP, nil
	case "UDP":
		return corev1.ProtocolUDP, nil
	case "SCTP":
		return corev1.ProtocolSCTP, nil
	default:
		return "", fmt.Errorf("unsupported protocol %q", s)
	}
}

// ParsePorts parses a list of "port/protocol" strings.
func ParsePorts(specs []string) ([]PortProtocol, error) {
	ports := make([]PortProtocol, 0, len(specs))
	for _, spec := range specs {
		pp, err := ParsePortProtocol(spec)
		if err != nil {
			return nil, err
		}
		ports = append(ports, pp)
	}
	return ports, nil
}

// MatrixEntry is one cell of a reachability matrix.
type MatrixEntry struct {
	Source      PodRef       `json:"source"`
	Destination PodRef       `json:"destination"`
	Port        PortProtocol `json:"port"`
	Allowed     bool         `json:"allowed"`
}

// Matrix is the full reachability table for a snapshot: one verdict per
// (source pod, destination pod, port) triple, in deterministic order.
type Matrix struct {
	Pods    []PodRef       `json:"pods"`
	Ports   []PortProtocol `json:"ports"`
	Entries []MatrixEntry  `json:"entries"`
}

// BuildMatrix evaluates every pod pair in the snapshot for each given port.
// Self-traffic (source == destination) is skipped.
func BuildMatrix(s *Snapshot, ports []PortProtocol) *Matrix {
	pods := s.Pods()
	m := &Matrix{
		Pods:  pods,
		Ports: ports,
	}

	for _, port := range ports {
		for _, src := range pods {
			for _, dst := range pods {
				if src == dst {
					continue
				}
				m.Entries = append(m.Entries, MatrixEntry{
					Source:      src,
					Destination: dst,
					Port:        port,
					Allowed:     s.IsAllowed(src, dst, port.Protocol, port.Port),
				})
			}
		}
	}

	return m
}

// AllowedCount returns the number of allowed entries in the matrix.
func (m *Matrix) AllowedCount() int {
	n := 0
	for _, e := range m.Entries {
		if e.Allowed {
			n++
		}
	}
	return n
}

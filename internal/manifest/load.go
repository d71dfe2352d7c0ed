// Package manifest loads snapshots from Kubernetes manifest files.
//
// It accepts the YAML or JSON documents a cluster operator already has:
// Namespace, Pod and NetworkPolicy objects, their List forms, and
// multi-document YAML streams. Namespaces referenced by pods or policies
// but not declared are synthesized so fixtures only need to spell out
// namespaces that carry labels.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/kubereach/kubereach/internal/policy"
)

// Load reads the given manifest files or directories and builds a
// validated snapshot. Directories are walked recursively for .yaml, .yml
// and .json files.
func Load(paths ...string) (*policy.Snapshot, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifest paths given")
	}

	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifest files found under %s", strings.Join(paths, ", "))
	}

	var set objectSet
	for _, file := range files {
		if err := set.addFile(file); err != nil {
			return nil, err
		}
	}

	return set.snapshot()
}

// expandPaths resolves files and directories into a sorted file list.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch filepath.Ext(p) {
			case ".yaml", ".yml", ".json":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

type objectSet struct {
	namespaces []corev1.Namespace
	pods       []corev1.Pod
	policies   []networkingv1.NetworkPolicy
}

func (s *objectSet) addFile(path string) error {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	for doc := 0; ; doc++ {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode %s document %d: %w", path, doc, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		if err := s.addDocument(raw); err != nil {
			return fmt.Errorf("%s document %d: %w", path, doc, err)
		}
	}
}

func (s *objectSet) addDocument(raw json.RawMessage) error {
	var probe metav1.TypeMeta
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("failed to probe object kind: %w", err)
	}

	switch probe.Kind {
	case "Namespace":
		var ns corev1.Namespace
		if err := json.Unmarshal(raw, &ns); err != nil {
			return fmt.Errorf("failed to decode Namespace: %w", err)
		}
		s.namespaces = append(s.namespaces, ns)
	case "Pod":
		var pod corev1.Pod
		if err := json.Unmarshal(raw, &pod); err != nil {
			return fmt.Errorf("failed to decode Pod: %w", err)
		}
		s.pods = append(s.pods, pod)
	case "NetworkPolicy":
		var netpol networkingv1.NetworkPolicy
		if err := json.Unmarshal(raw, &netpol); err != nil {
			return fmt.Errorf("failed to decode NetworkPolicy: %w", err)
		}
		s.policies = append(s.policies, netpol)
	case "NamespaceList":
		var list corev1.NamespaceList
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("failed to decode NamespaceList: %w", err)
		}
		s.namespaces = append(s.namespaces, list.Items...)
	case "PodList":
		var list corev1.PodList
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("failed to decode PodList: %w", err)
		}
		s.pods = append(s.pods, list.Items...)
	case "NetworkPolicyList":
		var list networkingv1.NetworkPolicyList
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("failed to decode NetworkPolicyList: %w", err)
		}
		s.policies = append(s.policies, list.Items...)
	case "List":
		var list struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("failed to decode List: %w", err)
		}
		for i, item := range list.Items {
			if err := s.addDocument(item); err != nil {
				return fmt.Errorf("list item %d: %w", i, err)
			}
		}
	case "":
		return fmt.Errorf("object has no kind")
	default:
		return fmt.Errorf("unsupported kind %q (expected Namespace, Pod or NetworkPolicy)", probe.Kind)
	}
	return nil
}

// snapshot defaults namespaces, synthesizes undeclared ones and builds the
// validated snapshot.
func (s *objectSet) snapshot() (*policy.Snapshot, error) {
	declared := make(map[string]bool, len(s.namespaces))
	for _, ns := range s.namespaces {
		declared[ns.Name] = true
	}

	referenced := make(map[string]bool)
	for i := range s.pods {
		if s.pods[i].Namespace == "" {
			s.pods[i].Namespace = metav1.NamespaceDefault
		}
		referenced[s.pods[i].Namespace] = true
	}
	for i := range s.policies {
		if s.policies[i].Namespace == "" {
			s.policies[i].Namespace = metav1.NamespaceDefault
		}
		referenced[s.policies[i].Namespace] = true
	}

	var names []string
	for name := range referenced {
		if !declared[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.namespaces = append(s.namespaces, corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name:   name,
				Labels: map[string]string{policy.NamespaceNameLabel: name},
			},
		})
	}

	return policy.NewSnapshot(s.namespaces, s.pods, s.policies)
}

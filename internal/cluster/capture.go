package cluster

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"github.com/kubereach/kubereach/internal/policy"
	"github.com/kubereach/kubereach/internal/util/retry"
)

// CaptureSnapshot lists namespaces, pods and network policies and compiles
// them into an immutable snapshot. When namespace is non-empty only that
// namespace's pods and policies are captured. Transient API errors are
// retried with exponential backoff; snapshot validation errors are not.
func (c *Client) CaptureSnapshot(ctx context.Context, namespace string) (*policy.Snapshot, error) {
	var snap *policy.Snapshot

	err := retry.WithExponentialBackoff(ctx, func() error {
		namespaces, err := c.listNamespaces(ctx, namespace)
		if err != nil {
			return err
		}

		pods, err := c.listPods(ctx, namespace)
		if err != nil {
			return err
		}

		policies, err := c.listPolicies(ctx, namespace)
		if err != nil {
			return err
		}

		snap, err = policy.NewSnapshot(namespaces, pods, policies)
		if err != nil {
			var verr *policy.ValidationError
			if errors.As(err, &verr) {
				return retry.Fatal(err)
			}
			return err
		}

		klog.V(2).InfoS("captured snapshot",
			"namespaces", snap.NamespaceCount(),
			"pods", snap.PodCount(),
			"policies", snap.PolicyCount())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}

	return snap, nil
}

func (c *Client) listNamespaces(ctx context.Context, namespace string) ([]corev1.Namespace, error) {
	if namespace != "" {
		ns, err := c.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get namespace %s: %w", namespace, err)
		}
		return []corev1.Namespace{*ns}, nil
	}

	list, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return list.Items, nil
}

func (c *Client) listPods(ctx context.Context, namespace string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return list.Items, nil
}

func (c *Client) listPolicies(ctx context.Context, namespace string) ([]networkingv1.NetworkPolicy, error) {
	list, err := c.clientset.NetworkingV1().NetworkPolicies(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list network policies: %w", err)
	}
	return list.Items, nil
}

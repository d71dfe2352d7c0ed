// Package watcher keeps a policy snapshot in sync with a live cluster.
//
// The watcher listens to namespace, pod and network policy events through
// shared informers and rebuilds the snapshot after a quiet period. Readers
// always see a complete snapshot; the swap is atomic.
package watcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"

	"github.com/kubereach/kubereach/internal/metrics"
	"github.com/kubereach/kubereach/internal/policy"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Watcher maintains the current snapshot from informer state.
type Watcher struct {
	factory   informers.SharedInformerFactory
	debounce  time.Duration
	current   atomic.Pointer[policy.Snapshot]
	dirty     chan struct{}
	nsInf     cache.SharedIndexInformer
	podInf    cache.SharedIndexInformer
	netpolInf cache.SharedIndexInformer
}

// New creates a watcher over the given clientset. When namespace is
// non-empty only that namespace's pods and policies are watched.
func New(clientset kubernetes.Interface, namespace string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var opts []informers.SharedInformerOption
	if namespace != "" {
		opts = append(opts, informers.WithNamespace(namespace))
	}
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, 0, opts...)

	w := &Watcher{
		factory:   factory,
		debounce:  debounce,
		dirty:     make(chan struct{}, 1),
		nsInf:     factory.Core().V1().Namespaces().Informer(),
		podInf:    factory.Core().V1().Pods().Informer(),
		netpolInf: factory.Networking().V1().NetworkPolicies().Informer(),
	}

	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    func(any) { w.markDirty() },
		UpdateFunc: func(any, any) { w.markDirty() },
		DeleteFunc: func(any) { w.markDirty() },
	}
	// Registration cannot fail for a fresh informer.
	_, _ = w.nsInf.AddEventHandler(handler)
	_, _ = w.podInf.AddEventHandler(handler)
	_, _ = w.netpolInf.AddEventHandler(handler)

	return w
}

// Snapshot returns the current snapshot, or nil before the first rebuild.
func (w *Watcher) Snapshot() *policy.Snapshot {
	return w.current.Load()
}

// Run starts the informers, waits for the caches to sync, builds the first
// snapshot and then rebuilds on changes until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.factory.Start(ctx.Done())
	defer w.factory.Shutdown()

	if !cache.WaitForCacheSync(ctx.Done(), w.nsInf.HasSynced, w.podInf.HasSynced, w.netpolInf.HasSynced) {
		return fmt.Errorf("failed to sync informer caches")
	}

	if err := w.rebuild(); err != nil {
		return fmt.Errorf("initial snapshot build failed: %w", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.dirty:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			if err := w.rebuild(); err != nil {
				klog.ErrorS(err, "snapshot rebuild failed, keeping previous snapshot")
			}
		}
	}
}

func (w *Watcher) markDirty() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *Watcher) rebuild() error {
	namespaces, err := listNamespaces(w.nsInf)
	if err == nil {
		var snap *policy.Snapshot
		pods := listPods(w.podInf)
		policies := listPolicies(w.netpolInf)

		snap, err = policy.NewSnapshot(namespaces, pods, policies)
		if err == nil {
			w.current.Store(snap)
			metrics.RecordSnapshot(snap)
			klog.V(2).InfoS("snapshot rebuilt",
				"namespaces", snap.NamespaceCount(),
				"pods", snap.PodCount(),
				"policies", snap.PolicyCount())
		}
	}
	metrics.RecordRebuild(err)
	return err
}

func listNamespaces(inf cache.SharedIndexInformer) ([]corev1.Namespace, error) {
	var out []corev1.Namespace
	for _, obj := range inf.GetStore().List() {
		ns, ok := obj.(*corev1.Namespace)
		if !ok {
			return nil, fmt.Errorf("unexpected object in namespace store: %T", obj)
		}
		out = append(out, *ns)
	}
	return out, nil
}

func listPods(inf cache.SharedIndexInformer) []corev1.Pod {
	var out []corev1.Pod
	for _, obj := range inf.GetStore().List() {
		if pod, ok := obj.(*corev1.Pod); ok {
			out = append(out, *pod)
		}
	}
	return out
}

func listPolicies(inf cache.SharedIndexInformer) []networkingv1.NetworkPolicy {
	var out []networkingv1.NetworkPolicy
	for _, obj := range inf.GetStore().List() {
		if np, ok := obj.(*networkingv1.NetworkPolicy); ok {
			out = append(out, *np)
		}
	}
	return out
}

// Package discovery drives ring membership automatically from a Kubernetes
// EndpointSlice, as an alternative to manually issuing add_node/remove_node
// through the CLI or admin API.
package discovery

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/sirupsen/logrus"

	ringcluster "ringdht/cluster"
	"ringdht/config"
)

// Watcher keeps a *cluster.Ring's membership in sync with the ready
// addresses of one Kubernetes EndpointSlice.
type Watcher struct {
	client    kubernetes.Interface
	ring      *ringcluster.Ring
	namespace string
	service   string
	cachePort int
	log       logrus.FieldLogger

	// known maps a discovered pod address to the node name registered on
	// the ring, so a later deletion can find the right name to remove.
	known map[string]string
}

// NewWatcher builds a Watcher from in-cluster credentials.
func NewWatcher(ring *ringcluster.Ring, cfg config.DiscoveryConfig) (*Watcher, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("loading in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}

	return newWatcher(client, ring, cfg), nil
}

func newWatcher(client kubernetes.Interface, ring *ringcluster.Ring, cfg config.DiscoveryConfig) *Watcher {
	return &Watcher{
		client:    client,
		ring:      ring,
		namespace: cfg.Namespace,
		service:   cfg.ServiceName,
		cachePort: cfg.CachePort,
		log:       logrus.StandardLogger(),
		known:     make(map[string]string),
	}
}

// Run lists the current EndpointSlice, joins its ready addresses, then polls
// for further changes every 10 seconds until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.reconcile(ctx); err != nil {
		w.log.WithError(err).Warn("initial discovery reconcile failed")
	}

	return wait.PollUntilContextCancel(ctx, 10*time.Second, true, func(ctx context.Context) (bool, error) {
		if err := w.reconcile(ctx); err != nil {
			w.log.WithError(err).Warn("discovery reconcile failed")
		}
		return false, nil
	})
}

// reconcile lists the EndpointSlice's current ready addresses and diffs
// them against what the ring already knows about, joining newly ready pods
// and removing ones that disappeared.
func (w *Watcher) reconcile(ctx context.Context) error {
	slices, err := w.client.DiscoveryV1().EndpointSlices(w.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "kubernetes.io/service-name=" + w.service,
	})
	if err != nil {
		return fmt.Errorf("listing endpointslices for %s/%s: %w", w.namespace, w.service, err)
	}

	seen := make(map[string]struct{})
	for _, slice := range slices.Items {
		for _, ep := range slice.Endpoints {
			if ep.Conditions.Ready != nil && !*ep.Conditions.Ready {
				continue
			}
			for _, addr := range ep.Addresses {
				seen[addr] = struct{}{}
				if _, ok := w.known[addr]; ok {
					continue
				}
				name := fmt.Sprintf("%s-%s", w.service, addr)
				if err := w.ring.AddNode(ctx, name, addr, w.cachePort); err != nil {
					w.log.WithError(err).WithField("address", addr).Warn("failed to join discovered pod")
					continue
				}
				w.known[addr] = name
				w.log.WithFields(logrus.Fields{"address": addr, "node": name}).Info("discovery: node joined")
			}
		}
	}

	for addr, name := range w.known {
		if _, ok := seen[addr]; ok {
			continue
		}
		if err := w.ring.RemoveNode(ctx, name); err != nil {
			w.log.WithError(err).WithField("node", name).Warn("failed to remove departed pod")
			continue
		}
		delete(w.known, addr)
		w.log.WithFields(logrus.Fields{"address": addr, "node": name}).Info("discovery: node left")
	}

	return nil
}

package discovery

import (
	"context"
	"math/rand"
	"testing"

	discoveryv1 "k8s.io/api/discovery/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"ringdht/cache"
	"ringdht/cluster"
	"ringdht/config"
)

func boolPtr(b bool) *bool { return &b }

func newTestRing(t *testing.T) *cluster.Ring {
	t.Helper()
	r, err := cluster.NewRing(100,
		cluster.WithRand(rand.New(rand.NewSource(1))),
		cluster.WithDialer(func(host string, port int) (cache.Client, error) {
			return cache.NewMemoryClient(), nil
		}),
	)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	return r
}

func TestWatcher_ReconcileJoinsReadyPods(t *testing.T) {
	slice := &discoveryv1.EndpointSlice{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "cache-abc",
			Namespace: "default",
			Labels:    map[string]string{"kubernetes.io/service-name": "cache"},
		},
		Endpoints: []discoveryv1.Endpoint{
			{Addresses: []string{"10.0.0.1"}, Conditions: discoveryv1.EndpointConditions{Ready: boolPtr(true)}},
			{Addresses: []string{"10.0.0.2"}, Conditions: discoveryv1.EndpointConditions{Ready: boolPtr(false)}},
		},
	}

	client := fake.NewSimpleClientset(slice)
	ring := newTestRing(t)
	w := newWatcher(client, ring, config.DiscoveryConfig{
		Namespace:   "default",
		ServiceName: "cache",
		CachePort:   11211,
	})

	if err := w.reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	nodes := ring.Describe()
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node joined (only the ready endpoint), got %d", len(nodes))
	}
	if nodes[0].Address != "10.0.0.1:11211" {
		t.Fatalf("joined node address = %q, want 10.0.0.1:11211", nodes[0].Address)
	}
}

func TestWatcher_ReconcileRemovesDepartedPods(t *testing.T) {
	client := fake.NewSimpleClientset(&discoveryv1.EndpointSlice{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "cache-abc",
			Namespace: "default",
			Labels:    map[string]string{"kubernetes.io/service-name": "cache"},
		},
		Endpoints: []discoveryv1.Endpoint{
			{Addresses: []string{"10.0.0.1"}, Conditions: discoveryv1.EndpointConditions{Ready: boolPtr(true)}},
		},
	})
	ring := newTestRing(t)
	w := newWatcher(client, ring, config.DiscoveryConfig{Namespace: "default", ServiceName: "cache", CachePort: 11211})

	if err := w.reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(ring.Describe()) != 1 {
		t.Fatalf("expected 1 node after first reconcile")
	}

	if err := client.DiscoveryV1().EndpointSlices("default").Delete(context.Background(), "cache-abc", metav1.DeleteOptions{}); err != nil {
		t.Fatalf("deleting endpointslice: %v", err)
	}

	if err := w.reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile after delete: %v", err)
	}
	if len(ring.Describe()) != 0 {
		t.Fatalf("expected node removed after pod departed, got %d", len(ring.Describe()))
	}
}

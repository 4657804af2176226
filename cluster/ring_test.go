package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"ringdht/cache"
)

// newTestRing builds a ring backed entirely by in-memory cache clients with
// a seeded PRNG, so position sampling is deterministic across runs.
func newTestRing(t *testing.T, n int, seed int64) *Ring {
	t.Helper()
	r, err := NewRing(n,
		WithRand(rand.New(rand.NewSource(seed))),
		WithDialer(func(host string, port int) (cache.Client, error) {
			return cache.NewMemoryClient(), nil
		}),
	)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	return r
}

// checkInvariants asserts the universal invariants of spec §8 hold for
// every key known to the ring.
func checkInvariants(t *testing.T, ctx context.Context, r *Ring) {
	t.Helper()

	m := len(r.cluster)
	if m == 0 {
		return
	}

	owners := map[string][]int{}
	for i, n := range r.cluster {
		for k := range n.Keys {
			owners[k] = append(owners[k], i)
		}
	}

	for k, idxs := range owners {
		if m == 1 {
			if len(idxs) != 1 {
				t.Fatalf("key %q: expected 1 owner with M=1, got %v", k, idxs)
			}
			continue
		}

		if len(idxs) != 2 {
			t.Fatalf("key %q: expected 2 owners, got %v", k, idxs)
		}
		i0, i1 := idxs[0], idxs[1]

		adjacent := i1-i0 == 1 || i0-i1 == 1 || (i0 == 0 && i1 == m-1) || (i1 == 0 && i0 == m-1)
		if !adjacent {
			t.Fatalf("key %q: owners %d,%d are not adjacent (M=%d)", k, i0, i1, m)
		}

		p := r.hashPos(k)
		s := r.successorIndex(p) % m
		if s != i0 && s != i1 {
			t.Fatalf("key %q: predicted primary index %d not among owners %d,%d", k, s, i0, i1)
		}
		secondary := (s + 1) % m
		if secondary != i0 && secondary != i1 {
			t.Fatalf("key %q: predicted secondary index %d not among owners %d,%d", k, secondary, i0, i1)
		}

		v0, err0 := r.cluster[i0].Client.Get(ctx, k)
		v1, err1 := r.cluster[i1].Client.Get(ctx, k)
		if err0 != nil || err1 != nil {
			t.Fatalf("key %q: unexpected read error: %v / %v", k, err0, err1)
		}
		if v0 != v1 {
			t.Fatalf("key %q: replica values differ: %q vs %q", k, v0, v1)
		}
	}

	names := map[string]bool{}
	ports := map[int]bool{}
	positions := map[int]bool{}
	for _, n := range r.cluster {
		if names[n.Name] {
			t.Fatalf("duplicate node name %q", n.Name)
		}
		names[n.Name] = true
		if ports[n.Port] {
			t.Fatalf("duplicate port %d", n.Port)
		}
		ports[n.Port] = true
		if positions[n.Position] {
			t.Fatalf("duplicate position %d", n.Position)
		}
		positions[n.Position] = true
	}
	if got := r.PortsInUse(); got != m {
		t.Fatalf("PortsInUse() = %d, want %d", got, m)
	}
}

func putRange(t *testing.T, ctx context.Context, r *Ring, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, _, err := r.Put(ctx, key, fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}
}

func TestScenario_SingleNode(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 1)

	if err := r.AddNode(ctx, "m1", "localhost", 11211); err != nil {
		t.Fatalf("AddNode(m1): %v", err)
	}
	putRange(t, ctx, r, 0, 10)
	checkInvariants(t, ctx, r)

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		if !r.cluster[0].hasKey(key) {
			t.Fatalf("expected %s on the sole node", key)
		}
	}
}

func TestScenario_SecondNodeMirrors(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 2)

	mustAdd(t, ctx, r, "m1", 11211)
	putRange(t, ctx, r, 0, 10)
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m2", 11212)
	checkInvariants(t, ctx, r)

	for _, n := range r.cluster {
		if len(n.Keys) != 10 {
			t.Fatalf("node %s: expected full mirror of 10 keys, got %d", n.Name, len(n.Keys))
		}
	}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		v0, _ := r.cluster[0].Client.Get(ctx, key)
		v1, _ := r.cluster[1].Client.Get(ctx, key)
		if v0 != v1 || v0 == "" {
			t.Fatalf("key %s not mirrored equally: %q vs %q", key, v0, v1)
		}
	}
}

func TestScenario_GrowToFourNodes(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 3)

	mustAdd(t, ctx, r, "m1", 11211)
	putRange(t, ctx, r, 0, 10)
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m2", 11212)
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m3", 11213)
	putRange(t, ctx, r, 10, 20)
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m4", 11214)
	putRange(t, ctx, r, 20, 30)
	checkInvariants(t, ctx, r)
}

func TestScenario_RemoveNodeAbsorbsKeys(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 4)

	mustAdd(t, ctx, r, "m1", 11211)
	mustAdd(t, ctx, r, "m2", 11212)
	mustAdd(t, ctx, r, "m3", 11213)
	mustAdd(t, ctx, r, "m4", 11214)
	putRange(t, ctx, r, 0, 40)
	checkInvariants(t, ctx, r)

	wantKeys := map[string]string{}
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("k%d", i)
		v, found, err := r.Get(ctx, key)
		if err != nil || !found {
			t.Fatalf("Get(%s) before removal: found=%v err=%v", key, found, err)
		}
		wantKeys[key] = v
	}

	if err := r.RemoveNode(ctx, "m1"); err != nil {
		t.Fatalf("RemoveNode(m1): %v", err)
	}
	checkInvariants(t, ctx, r)

	for key, want := range wantKeys {
		got, found, err := r.Get(ctx, key)
		if err != nil || !found {
			t.Fatalf("Get(%s) after removal: found=%v err=%v", key, found, err)
		}
		if got != want {
			t.Fatalf("Get(%s) after removal = %q, want %q", key, got, want)
		}
	}
}

func TestScenario_Churn(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 5)

	mustAdd(t, ctx, r, "m1", 11211)
	mustAdd(t, ctx, r, "m2", 11212)
	mustAdd(t, ctx, r, "m3", 11213)
	mustAdd(t, ctx, r, "m4", 11214)
	putRange(t, ctx, r, 0, 40)
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m5", 11215)
	putRange(t, ctx, r, 40, 50)
	checkInvariants(t, ctx, r)

	if err := r.RemoveNode(ctx, "m2"); err != nil {
		t.Fatalf("RemoveNode(m2): %v", err)
	}
	checkInvariants(t, ctx, r)

	if err := r.RemoveNode(ctx, "m3"); err != nil {
		t.Fatalf("RemoveNode(m3): %v", err)
	}
	checkInvariants(t, ctx, r)

	mustAdd(t, ctx, r, "m1again", 11216)
	putRange(t, ctx, r, 50, 100)
	checkInvariants(t, ctx, r)
}

func TestGet_FailsOverToSecondaryOnTransportError(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 6)

	mustAdd(t, ctx, r, "m1", 11211)
	mustAdd(t, ctx, r, "m2", 11212)
	if _, _, err := r.Put(ctx, "widget", "value-1"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	p := r.hashPos("widget")
	s := r.successorIndex(p) % len(r.cluster)
	primary := r.cluster[s]

	primary.Client.(*cache.MemoryClient).FailGet(true)

	v, found, err := r.Get(ctx, "widget")
	if err != nil {
		t.Fatalf("Get after primary failure: %v", err)
	}
	if !found || v != "value-1" {
		t.Fatalf("Get after primary failure = %q, %v, want value-1, true", v, found)
	}
}

func TestPut_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 7)
	mustAdd(t, ctx, r, "m1", 11211)
	mustAdd(t, ctx, r, "m2", 11212)
	mustAdd(t, ctx, r, "m3", 11213)

	p1, s1, err := r.Put(ctx, "dup", "v1")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	p2, s2, err := r.Put(ctx, "dup", "v1")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if p1 != p2 || s1 != s2 {
		t.Fatalf("repeated put changed owners: (%s,%s) -> (%s,%s)", p1, s1, p2, s2)
	}
	checkInvariants(t, ctx, r)

	if _, _, err := r.Put(ctx, "dup", "v2"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	v, found, err := r.Get(ctx, "dup")
	if err != nil || !found || v != "v2" {
		t.Fatalf("Get after overwrite = %q, %v, %v, want v2, true, nil", v, found, err)
	}
}

func TestAddNode_RejectsDuplicateNameAndPort(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 8)
	mustAdd(t, ctx, r, "m1", 11211)

	if err := r.AddNode(ctx, "m1", "localhost", 11212); err == nil {
		t.Fatalf("expected DuplicateName error")
	}
	if err := r.AddNode(ctx, "m2", "localhost", 11211); err == nil {
		t.Fatalf("expected PortInUse error")
	}
	checkInvariants(t, ctx, r)
}

func TestRemoveNode_RejectsUnknownName(t *testing.T) {
	ctx := context.Background()
	r := newTestRing(t, 100, 9)
	mustAdd(t, ctx, r, "m1", 11211)

	if err := r.RemoveNode(ctx, "ghost"); err == nil {
		t.Fatalf("expected UnknownName error")
	}
}

func TestNewRing_RejectsNonPositiveSize(t *testing.T) {
	if _, err := NewRing(0); err == nil {
		t.Fatalf("expected ConfigurationError for N=0")
	}
	if _, err := NewRing(-5); err == nil {
		t.Fatalf("expected ConfigurationError for N=-5")
	}
}

func mustAdd(t *testing.T, ctx context.Context, r *Ring, name string, port int) {
	t.Helper()
	if err := r.AddNode(ctx, name, "localhost", port); err != nil {
		t.Fatalf("AddNode(%s): %v", name, err)
	}
}

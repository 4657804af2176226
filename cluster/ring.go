// Package cluster implements the ring-membership and rebalancing engine:
// the pseudo-random placement of backing cache servers on a modular ring,
// consistent-hash routing of keys to their two replica-holding servers, and
// the incremental key migrations that keep that invariant true across
// joins and leaves. This is the system's core (spec §2).
package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ringdht/cache"
	"ringdht/hash"
)

// Dialer opens the cache-client handle for a newly-joined node. Production
// callers dial the real backing cache over HTTP; tests inject an in-memory
// stand-in.
type Dialer func(host string, port int) (cache.Client, error)

func defaultDialer(host string, port int) (cache.Client, error) {
	return cache.NewHTTPClient(fmt.Sprintf("%s:%d", host, port), 0), nil
}

// Ring is the ordered collection of (position, node) entries plus the
// placement and rebalancing logic defined in spec §4. Every exported
// method, mutations included, holds an internal mutex for its whole run, so
// calls from several goroutines (e.g. HTTP handlers and the discovery
// watcher) are serialized rather than interleaved.
type Ring struct {
	mu sync.Mutex

	size   int
	hasher hash.Hasher
	rng    *rand.Rand
	dial   Dialer
	log    logrus.FieldLogger
	rec    Recorder

	maxPositionAttempts int

	cluster    []*Node // sorted ascending by Position
	portsInUse map[int]struct{}
}

// Option configures a Ring at construction.
type Option func(*Ring)

// WithHasher overrides the default Murmur3-based hash primitive. Useful for
// deterministic tests.
func WithHasher(h hash.Hasher) Option {
	return func(r *Ring) { r.hasher = h }
}

// WithRand overrides the default process-wide PRNG used for position
// sampling, per spec §9's injectable-PRNG guidance.
func WithRand(rng *rand.Rand) Option {
	return func(r *Ring) { r.rng = rng }
}

// WithDialer overrides how a node's cache-client handle is opened.
func WithDialer(d Dialer) Option {
	return func(r *Ring) { r.dial = d }
}

// WithLogger overrides the ring's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Ring) { r.log = l }
}

// WithRecorder overrides the ring's metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Ring) { r.rec = rec }
}

// NewRing constructs a ring over the position space [0, n). n must be a
// positive integer (spec §3/§7: ConfigurationError otherwise).
func NewRing(n int, opts ...Option) (*Ring, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: ring size must be positive, got %d", ErrConfiguration, n)
	}

	r := &Ring{
		size:                n,
		hasher:              hash.Murmur32{},
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
		dial:                defaultDialer,
		log:                 logrus.StandardLogger(),
		rec:                 NoopRecorder{},
		maxPositionAttempts: 8 * n,
		portsInUse:          make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Size returns the configured ring-position space N.
func (r *Ring) Size() int {
	return r.size
}

// hashPos reduces key to the ring's position space.
func (r *Ring) hashPos(key string) int {
	return hash.Position(r.hasher, key, r.size)
}

// successorIndex returns the smallest index s in [0, M) with
// position[s] >= p, or M (meaning "wraps to index 0") if no such index
// exists. Callers that want a lookup index (not an insertion point) must
// take the result mod len(cluster). Must be called with r.mu held.
func (r *Ring) successorIndex(p int) int {
	return sort.Search(len(r.cluster), func(i int) bool {
		return r.cluster[i].Position >= p
	})
}

// nodeCountLocked returns M under the caller's lock.
func (r *Ring) nodeCountLocked() int {
	return len(r.cluster)
}

// neighbors returns the predecessor, successor, and successor-of-successor
// of the node at idx, wrapping modulo M. Must be called with r.mu held and
// M == len(r.cluster) >= 1.
func (r *Ring) neighbors(idx int) (pred, succ, succSucc *Node) {
	m := len(r.cluster)
	pred = r.cluster[(idx-1+m)%m]
	succ = r.cluster[(idx+1)%m]
	succSucc = r.cluster[(idx+2)%m]
	return
}

// findIndexByName returns the index of the node named name, or -1.
func (r *Ring) findIndexByName(name string) int {
	for i, n := range r.cluster {
		if n.Name == name {
			return i
		}
	}
	return -1
}

// AddNode joins a new backing cache server to the ring and performs
// whatever rebalancing the post-join size demands (spec §4.2/§4.3).
func (r *Ring) AddNode(ctx context.Context, name, host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.portsInUse[port]; dup {
		return fmt.Errorf("%w: port %d", ErrPortInUse, port)
	}
	if r.findIndexByName(name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	loc, err := r.samplePosition()
	if err != nil {
		return err
	}

	client, err := r.dial(host, port)
	if err != nil {
		return fmt.Errorf("%w: dialing %s:%d: %v", cache.ErrTransport, host, port, err)
	}

	node := newNode(name, host, port, loc, client)
	r.portsInUse[port] = struct{}{}

	insertAt := r.successorIndex(loc)
	if insertAt == len(r.cluster) {
		r.cluster = append(r.cluster, node)
	} else {
		r.cluster = append(r.cluster, nil)
		copy(r.cluster[insertAt+1:], r.cluster[insertAt:])
		r.cluster[insertAt] = node
	}

	if err := r.rebalanceJoin(ctx, insertAt); err != nil {
		r.log.WithError(err).WithField("node", name).Error("rebalance on join failed")
		return err
	}

	r.rec.ObserveMembership(len(r.cluster))
	r.log.WithFields(logrus.Fields{
		"node":     name,
		"address":  node.Address(),
		"position": loc,
		"nodes":    len(r.cluster),
	}).Info("node joined")
	return nil
}

// samplePosition draws a ring position uniformly at random, rejecting
// collisions with existing node positions. Bounded at maxPositionAttempts
// to satisfy spec §9's RingFull open question instead of looping forever
// as M approaches N. Must be called with r.mu held.
func (r *Ring) samplePosition() (int, error) {
	occupied := make(map[int]struct{}, len(r.cluster))
	for _, n := range r.cluster {
		occupied[n.Position] = struct{}{}
	}

	for attempt := 0; attempt < r.maxPositionAttempts; attempt++ {
		loc := r.rng.Intn(r.size)
		if _, taken := occupied[loc]; !taken {
			return loc, nil
		}
	}
	return 0, fmt.Errorf("%w: no free position found in %d attempts (N=%d, M=%d)",
		ErrRingFull, r.maxPositionAttempts, r.size, len(r.cluster))
}

// RemoveNode leaves the ring, performing pre-removal rebalancing (spec
// §4.3 Leave) before closing the node's cache client and releasing its
// port.
func (r *Ring) RemoveNode(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.findIndexByName(name)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	if err := r.rebalanceLeave(ctx, idx); err != nil {
		r.log.WithError(err).WithField("node", name).Error("rebalance on leave failed")
		return err
	}

	node := r.cluster[idx]
	_ = node.Client.Close()
	delete(r.portsInUse, node.Port)
	r.cluster = append(r.cluster[:idx], r.cluster[idx+1:]...)

	r.rec.ObserveMembership(len(r.cluster))
	r.log.WithFields(logrus.Fields{
		"node":  name,
		"nodes": len(r.cluster),
	}).Info("node left")
	return nil
}

// Put stores value under key on its primary and secondary replica (spec
// §4.4). Requires M >= 1.
func (r *Ring) Put(ctx context.Context, key, value string) (primary, secondary string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := len(r.cluster)
	if m == 0 {
		return "", "", ErrEmptyRing
	}

	p := r.hashPos(key)
	s := r.successorIndex(p) % m
	primaryNode := r.cluster[s]
	secondaryNode := r.cluster[(s+1)%m]

	if err := primaryNode.Client.Set(ctx, key, value); err != nil {
		r.rec.ObserveTransportError("put")
		return "", "", fmt.Errorf("%w: set on primary %s: %v", cache.ErrTransport, primaryNode.Name, err)
	}
	if secondaryNode != primaryNode {
		if err := secondaryNode.Client.Set(ctx, key, value); err != nil {
			r.rec.ObserveTransportError("put")
			return "", "", fmt.Errorf("%w: set on secondary %s: %v", cache.ErrTransport, secondaryNode.Name, err)
		}
	}

	primaryNode.addKey(key)
	secondaryNode.addKey(key)
	return primaryNode.Name, secondaryNode.Name, nil
}

// Get reads key from its primary, failing over to the secondary on any
// transport-level failure (spec §4.4). A miss is not an error: found is
// false and err is nil.
func (r *Ring) Get(ctx context.Context, key string) (value string, found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := len(r.cluster)
	if m == 0 {
		return "", false, ErrEmptyRing
	}

	p := r.hashPos(key)
	s := r.successorIndex(p) % m
	primaryNode := r.cluster[s]
	secondaryNode := r.cluster[(s+1)%m]

	value, err = primaryNode.Client.Get(ctx, key)
	if err == nil {
		return value, true, nil
	}
	if err == cache.ErrNotFound {
		return "", false, nil
	}

	// Transport-level failure on the primary: retry on the secondary.
	r.rec.ObserveTransportError("get")
	if secondaryNode == primaryNode {
		// M=1: there is no alternate replica to fail over to.
		return "", false, fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, key, primaryNode.Name, err)
	}
	value, err = secondaryNode.Client.Get(ctx, key)
	if err == nil {
		return value, true, nil
	}
	if err == cache.ErrNotFound {
		return "", false, nil
	}
	r.rec.ObserveTransportError("get")
	return "", false, fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, key, secondaryNode.Name, err)
}

// NodeInfo is a read-only snapshot of one node's membership state, for
// Describe and for the HTTP admin API.
type NodeInfo struct {
	Name     string
	Address  string
	Position int
	KeyCount int
}

// Describe returns a snapshot of every live node, ordered by ring position.
func (r *Ring) Describe() []NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NodeInfo, len(r.cluster))
	for i, n := range r.cluster {
		out[i] = NodeInfo{
			Name:     n.Name,
			Address:  n.Address(),
			Position: n.Position,
			KeyCount: len(n.Keys),
		}
	}
	return out
}

// PortsInUse returns the number of distinct ports currently allocated —
// equal to the live node count (spec §8 invariant 6).
func (r *Ring) PortsInUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portsInUse)
}

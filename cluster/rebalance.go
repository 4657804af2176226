package cluster

import (
	"context"
	"fmt"
	"time"

	"ringdht/cache"
)

// inHalfOpenArc reports whether pos lies in the clockwise half-open arc
// (a, b]: the positions reached walking clockwise from just past a until b
// inclusive, wrapping when a >= b (spec §4.3).
func inHalfOpenArc(pos, a, b int) bool {
	if a < b {
		return pos > a && pos <= b
	}
	return pos <= b || pos > a
}

// filterArc returns the subset of keys whose hash position lies in the
// half-open arc (a, b].
func (r *Ring) filterArc(keys map[string]struct{}, a, b int) []string {
	var out []string
	for k := range keys {
		if inHalfOpenArc(r.hashPos(k), a, b) {
			out = append(out, k)
		}
	}
	return out
}

// copyKeys replicates each of keys from src to dst with no deletion — the
// M=2 full-mirroring case, where the second node joining must hold a
// complete copy of the first node's data (spec §4.3).
func (r *Ring) copyKeys(ctx context.Context, keys []string, src, dst *Node) error {
	for _, k := range keys {
		v, err := src.Client.Get(ctx, k)
		if err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, k, src.Name, err)
		}
		if err := dst.Client.Set(ctx, k, v); err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: set %q on %s: %v", cache.ErrTransport, k, dst.Name, err)
		}
	}
	return nil
}

// moveKeys migrates each of keys to writeTo: delete the entry from
// deleteFrom's client, read it from readFrom's client, and write it to
// writeTo's client. A transport failure mid-batch aborts immediately with no
// rollback of keys already moved (spec §5/§9 — fatal, no built-in rollback).
func (r *Ring) moveKeys(ctx context.Context, keys []string, readFrom, deleteFrom, writeTo *Node) error {
	for _, k := range keys {
		if err := deleteFrom.Client.Delete(ctx, k); err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: delete %q from %s: %v", cache.ErrTransport, k, deleteFrom.Name, err)
		}
		v, err := readFrom.Client.Get(ctx, k)
		if err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, k, readFrom.Name, err)
		}
		if err := writeTo.Client.Set(ctx, k, v); err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: set %q on %s: %v", cache.ErrTransport, k, writeTo.Name, err)
		}
	}
	return nil
}

// rebalanceJoin performs the migrations required after inserting a new node
// at idx, based on the post-insertion cluster size (spec §4.3 Join cases).
// Must be called with r.mu held.
func (r *Ring) rebalanceJoin(ctx context.Context, idx int) error {
	m := len(r.cluster)
	n := r.cluster[idx]

	switch {
	case m == 1:
		// First node: no data motion, the invariant holds trivially.
		return nil

	case m == 2:
		p, _, _ := r.neighbors(idx)
		start := time.Now()
		keys := p.keySlice()
		if err := r.copyKeys(ctx, keys, p, n); err != nil {
			return err
		}
		for _, k := range keys {
			n.addKey(k)
		}
		r.rec.ObserveMigration("join-mirror", len(keys), time.Since(start))
		return nil

	case m == 3:
		p, succ, _ := r.neighbors(idx)
		start := time.Now()

		// Migration A: keys on succ whose hash lies in (succ.Position, p.Position]
		// move from succ to n as secondary replicas. Source set is p.Keys,
		// since under the pre-split M=2 state p and succ mirrored each other.
		migrateA := r.filterArc(p.Keys, succ.Position, p.Position)
		if err := r.moveKeys(ctx, migrateA, p, succ, n); err != nil {
			return err
		}
		for _, k := range migrateA {
			succ.removeKey(k)
			n.addKey(k)
		}

		// Migration B: keys whose hash lies in (p.Position, n.Position] become
		// primary-hosted on n. Source set is succ.Keys (post migration A).
		migrateB := r.filterArc(succ.Keys, p.Position, n.Position)
		if err := r.moveKeys(ctx, migrateB, succ, p, n); err != nil {
			return err
		}
		for _, k := range migrateB {
			p.removeKey(k)
			n.addKey(k)
		}

		r.rec.ObserveMigration("join-triangle", len(migrateA)+len(migrateB), time.Since(start))
		return nil

	default: // m >= 4
		p, succ, succSucc := r.neighbors(idx)
		start := time.Now()

		// Migration A: keys in p.Keys ∩ succ.Keys had primary p pre-insert;
		// n becomes their secondary.
		var keysPSucc []string
		for k := range p.Keys {
			if succ.hasKey(k) {
				keysPSucc = append(keysPSucc, k)
			}
		}
		if err := r.moveKeys(ctx, keysPSucc, p, succ, n); err != nil {
			return err
		}
		for _, k := range keysPSucc {
			succ.removeKey(k)
			n.addKey(k)
		}

		// Migration B: keys in succ.Keys whose hash lies in (p.Position, n.Position]
		// become primary-hosted on n; succ remains a replica (no reduction there).
		migrateB := r.filterArc(succ.Keys, p.Position, n.Position)
		if err := r.moveKeys(ctx, migrateB, succ, succSucc, n); err != nil {
			return err
		}
		for _, k := range migrateB {
			succSucc.removeKey(k)
			n.addKey(k)
		}

		r.rec.ObserveMigration("join-general", len(keysPSucc)+len(migrateB), time.Since(start))
		return nil
	}
}

// rebalanceLeave performs the migrations required before removing the node
// at idx, based on the pre-removal cluster size (spec §4.3 Leave cases).
// Must be called with r.mu held.
func (r *Ring) rebalanceLeave(ctx context.Context, idx int) error {
	m := len(r.cluster)
	if m <= 2 {
		// No safe data motion is possible or necessary: with M=2 both
		// replicas collapse to one; with M=1 the DHT empties.
		return nil
	}

	n := r.cluster[idx]
	p, succ, succSucc := r.neighbors(idx)
	start := time.Now()

	// Both key sets are taken before either migration runs: migration C
	// adds keys to succ.Keys that must not be picked up by migration D.
	var keysPn []string
	for k := range p.Keys {
		if n.hasKey(k) {
			keysPn = append(keysPn, k)
		}
	}
	var keysNn []string
	for k := range succ.Keys {
		if n.hasKey(k) {
			keysNn = append(keysNn, k)
		}
	}

	// Migration C: keys whose primary was p, secondary n, are read from p
	// and written to succ, which becomes the new secondary.
	for _, k := range keysPn {
		v, err := p.Client.Get(ctx, k)
		if err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, k, p.Name, err)
		}
		if err := succ.Client.Set(ctx, k, v); err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: set %q on %s: %v", cache.ErrTransport, k, succ.Name, err)
		}
		succ.addKey(k)
	}

	// Migration D: keys whose primary was n, secondary succ, are read from
	// succ and written to succSucc, which is promoted to new secondary
	// (succ is promoted to new primary).
	for _, k := range keysNn {
		v, err := succ.Client.Get(ctx, k)
		if err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: get %q from %s: %v", cache.ErrTransport, k, succ.Name, err)
		}
		if err := succSucc.Client.Set(ctx, k, v); err != nil {
			r.rec.ObserveTransportError("rebalance")
			return fmt.Errorf("%w: set %q on %s: %v", cache.ErrTransport, k, succSucc.Name, err)
		}
		succSucc.addKey(k)
	}

	r.rec.ObserveMigration("leave", len(keysPn)+len(keysNn), time.Since(start))
	return nil
}

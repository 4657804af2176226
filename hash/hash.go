// Package hash provides the ring's position function: a deterministic,
// well-distributed reduction from an arbitrary string key to a 32-bit
// value. The ring engine only ever reduces the result modulo its size; it
// never interprets the hash bits any other way.
package hash

import "github.com/spaolacci/murmur3"

// Hasher is the pluggable hash primitive. Swapping implementations (e.g. for
// a deterministic test double) never changes ring placement logic, only the
// positions it produces.
type Hasher interface {
	Sum32(key string) uint32
}

// Murmur32 hashes keys with 32-bit MurmurHash3, matching the algorithm the
// original reference implementation used via pymemcache's murmur3_32.
type Murmur32 struct{}

// Sum32 hashes the string form of key.
func (Murmur32) Sum32(key string) uint32 {
	return murmur3.Sum32([]byte(key))
}

// Position reduces h's hash of key into the ring's position space [0, n).
// n must be positive; callers validate ring size at construction time.
func Position(h Hasher, key string, n int) int {
	return int(h.Sum32(key) % uint32(n))
}

// Package cache defines the opaque backing-cache contract the ring engine
// issues copy/delete operations against. Treated as a remote map: the
// engine knows nothing about the wire protocol behind it.
package cache

import (
	"context"
	"errors"
)

// ErrTransport wraps any failure reaching or talking to a backing cache
// server. GET recovers from it by failing over to the secondary (spec §4.4);
// everywhere else it is fatal to the in-progress operation (spec §7).
var ErrTransport = errors.New("cache transport error")

// ErrNotFound is returned by Get when the key is absent on that node. It is
// not itself an ErrTransport — a miss is not a transport failure.
var ErrNotFound = errors.New("key not found on cache node")

// Client is the per-node handle to a backing cache server: get/set/delete
// plus a one-time close. Values are opaque byte-equivalent strings; the
// engine never interprets them.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

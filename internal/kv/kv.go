// Package kv abstracts the shared low-latency key-value store backing the
// response cache and the task tracker. Both live in the same store under
// disjoint key prefixes but with very different TTL domains, so the interface
// forces the TTL to be explicit on every write.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal contract the cache and tracker need: atomic per-key
// get and set-with-TTL. Concurrent readers and writers need no extra locking
// on top of this.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

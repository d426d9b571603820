// Package respcache is the short-TTL cache for verbatim upstream page
// responses. It exists only to collapse bursts of identical calls during one
// pagination sweep; the entity store is the long-lived tier.
package respcache

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"resume-aggregator/internal/kv"

	"go.uber.org/zap"
)

const (
	keyPrefix  = "respcache:"
	DefaultTTL = 5 * time.Second
)

// Signature canonicalizes an (endpoint, parameters) pair. Parameters are
// sorted by key so the signature does not depend on insertion order;
// repeated values keep their relative order. Keys and values are escaped so
// a value containing a separator cannot collide two distinct parameter sets.
func Signature(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteString("?")
	first := true
	for _, k := range keys {
		for _, v := range params[k] {
			if !first {
				b.WriteString("&")
			}
			first = false
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Cache wraps the shared key-value store under the response-cache prefix.
type Cache struct {
	store  kv.Store
	ttl    time.Duration
	logger *zap.Logger
}

func New(store kv.Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached payload for a signature, or false on a miss. Store
// failures are treated as misses so a flaky cache never fails a fetch.
func (c *Cache) Get(ctx context.Context, signature string) ([]byte, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	payload, err := c.store.Get(ctx, keyPrefix+signature)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("response cache read failed", zap.String("signature", signature), zap.Error(err))
		}
		return nil, false
	}

	c.logger.Debug("response served from cache", zap.String("signature", signature))
	return payload, true
}

// Put stores a payload under the signature for the cache TTL. Failures are
// logged and swallowed.
func (c *Cache) Put(ctx context.Context, signature string, payload []byte) {
	if c == nil || c.store == nil {
		return
	}

	if err := c.store.SetWithTTL(ctx, keyPrefix+signature, payload, c.ttl); err != nil {
		c.logger.Warn("response cache write failed", zap.String("signature", signature), zap.Error(err))
	}
}

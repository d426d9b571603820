// Package store is the durable tier: normalized resume snapshots keyed by
// (provider, id). Writes are first-write-wins and reads treat entries older
// than the configured TTL as misses; nothing here ever deletes.
package store

import (
	"context"
	"encoding/json"
	"time"

	"resume-aggregator/internal/core"
)

// DefaultTTL bounds how long a snapshot is served before the read path
// forces a fresh upstream fetch.
const DefaultTTL = 48 * time.Hour

// Store is the entity-store contract used by the aggregator and the export
// path.
type Store interface {
	// Get returns the snapshot for the ref, or (nil, nil) when the ref is
	// absent or the snapshot is older than the TTL.
	Get(ctx context.Context, ref core.Ref) (*core.Resume, error)

	// Exists reports presence regardless of staleness.
	Exists(ctx context.Context, ref core.Ref) (bool, error)

	// Put persists the snapshot unless the identity already exists. Repeat
	// writes for the same identity are dropped silently; the stored
	// snapshot and its timestamp never change.
	Put(ctx context.Context, resume *core.Resume) error
}

// Stale reports whether a snapshot received at the given time has outlived
// the TTL.
func Stale(now, receivedAt time.Time, ttl time.Duration) bool {
	return now.Sub(receivedAt) > ttl
}

// encodeExperience serializes work history for the experience column.
func encodeExperience(entries []core.ExperienceEntry) ([]byte, error) {
	if entries == nil {
		entries = []core.ExperienceEntry{}
	}
	return json.Marshal(entries)
}

// decodeExperience tolerates malformed stored history by degrading to an
// empty list.
func decodeExperience(data []byte) []core.ExperienceEntry {
	if len(data) == 0 {
		return nil
	}
	var entries []core.ExperienceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

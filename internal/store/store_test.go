package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"resume-aggregator/internal/core"
)

func TestStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 48 * time.Hour

	cases := []struct {
		name       string
		receivedAt time.Time
		want       bool
	}{
		{"fresh", now.Add(-time.Hour), false},
		{"just inside window", now.Add(-ttl + time.Second), false},
		{"exactly at boundary", now.Add(-ttl), false},
		{"past boundary", now.Add(-ttl - time.Second), true},
		{"zero timestamp", time.Time{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Stale(now, tc.receivedAt, ttl); got != tc.want {
				t.Fatalf("Stale(%v) = %v, want %v", tc.receivedAt, got, tc.want)
			}
		})
	}
}

func TestExperienceCodecRoundTrip(t *testing.T) {
	in := []core.ExperienceEntry{
		{Company: "Acme", Position: "Cook", Description: "Ran the kitchen"},
		{Company: "Globex", Position: "Chef"},
	}

	raw, err := encodeExperience(in)
	if err != nil {
		t.Fatalf("encodeExperience: %v", err)
	}

	out := decodeExperience(raw)
	if len(out) != len(in) {
		t.Fatalf("decoded %d entries, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestExperienceCodecEmpty(t *testing.T) {
	raw, err := encodeExperience(nil)
	if err != nil {
		t.Fatalf("encodeExperience(nil): %v", err)
	}
	if got := decodeExperience(raw); len(got) != 0 {
		t.Fatalf("decoded %d entries from empty list, want 0", len(got))
	}
}

func TestDecodeExperienceMalformed(t *testing.T) {
	if got := decodeExperience([]byte("{not json")); got != nil {
		t.Fatalf("decodeExperience on malformed input = %v, want nil", got)
	}
}

// TestPostgresContract exercises the real implementation against a live
// database. Point STORE_TEST_DSN at a disposable postgres to run it.
func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("STORE_TEST_DSN is not set")
	}

	ctx := context.Background()
	pg, err := NewPostgres(ctx, dsn, 48*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(pg.Close)

	ref := core.Ref{Provider: core.ProviderHH, ID: fmt.Sprintf("contract-%d", time.Now().UnixNano())}
	first := &core.Resume{
		Provider:   ref.Provider,
		ID:         ref.ID,
		FirstName:  "Ivan",
		Title:      "Cook",
		Salary:     &core.Salary{Amount: 90000, Currency: "RUR"},
		Experience: []core.ExperienceEntry{{Company: "Acme", Position: "Cook"}},
		ReceivedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := pg.Put(ctx, first); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	// a second write for the same identity is a silent no-op
	second := *first
	second.Title = "Head chef"
	second.ReceivedAt = first.ReceivedAt.Add(time.Hour)
	if err := pg.Put(ctx, &second); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := pg.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a stored snapshot")
	}
	if got.Title != "Cook" {
		t.Fatalf("title = %q, the first snapshot must win", got.Title)
	}
	if !got.ReceivedAt.Equal(first.ReceivedAt) {
		t.Fatalf("received at = %s, want the first write's %s", got.ReceivedAt, first.ReceivedAt)
	}
	if got.Salary == nil || got.Salary.Amount != 90000 {
		t.Fatalf("salary = %+v", got.Salary)
	}

	ok, err := pg.Exists(ctx, ref)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("Exists must report the stored snapshot")
	}

	// past the TTL the read path treats the row as a miss
	pg.now = func() time.Time { return time.Now().Add(49 * time.Hour) }
	stale, err := pg.Get(ctx, ref)
	if err != nil {
		t.Fatalf("stale Get: %v", err)
	}
	if stale != nil {
		t.Fatal("a snapshot past the TTL must read as a miss")
	}

	// staleness affects reads only, the row still exists
	ok, err = pg.Exists(ctx, ref)
	if err != nil {
		t.Fatalf("Exists after expiry: %v", err)
	}
	if !ok {
		t.Fatal("expiry must not delete the row")
	}
}

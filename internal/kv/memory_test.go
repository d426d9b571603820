package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryMissingKey(t *testing.T) {
	store := NewMemory()

	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySetAndGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
}

func TestMemoryExpiry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.Now = func() time.Time { return now }

	if err := store.SetWithTTL(ctx, "k", []byte("v"), 5*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(6 * time.Second)

	_, err := store.Get(ctx, "k")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

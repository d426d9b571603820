package utils

import (
	"context"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdefgh", 5, "abcde..."},
		{"anything", 0, ""},
	}

	for _, c := range cases {
		if got := TruncateForLog(c.in, c.limit); got != c.want {
			t.Fatalf("TruncateForLog(%q, %d) = %q, want %q", c.in, c.limit, got, c.want)
		}
	}
}

func TestWaitForZeroDuration(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitFor(ctx, time.Hour)
	if err == nil {
		t.Fatal("expected an error for canceled context")
	}
}

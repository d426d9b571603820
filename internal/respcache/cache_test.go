package respcache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"resume-aggregator/internal/kv"
)

func TestSignatureIgnoresParameterOrder(t *testing.T) {
	a := url.Values{}
	a.Set("text", "cook")
	a.Set("page", "0")
	a.Set("per_page", "10")

	b := url.Values{}
	b.Set("per_page", "10")
	b.Set("page", "0")
	b.Set("text", "cook")

	if Signature("/resumes", a) != Signature("/resumes", b) {
		t.Fatal("signatures must not depend on parameter order")
	}
}

func TestSignatureDistinguishesValues(t *testing.T) {
	a := url.Values{"page": {"0"}}
	b := url.Values{"page": {"1"}}

	if Signature("/resumes", a) == Signature("/resumes", b) {
		t.Fatal("different pages must produce different signatures")
	}
}

func TestSignatureMultiValue(t *testing.T) {
	params := url.Values{"area": {"1", "2"}, "text": {"cook"}}

	want := "/resumes?area=1&area=2&text=cook"
	if got := Signature("/resumes", params); got != want {
		t.Fatalf("Signature = %q, want %q", got, want)
	}
}

func TestSignatureEscapesSeparators(t *testing.T) {
	a := url.Values{"a": {"1&b=2"}}
	b := url.Values{"a": {"1"}, "b": {"2"}}

	if Signature("/resumes", a) == Signature("/resumes", b) {
		t.Fatal("a value containing separators must not collide another parameter set")
	}
}

func TestCachePutGet(t *testing.T) {
	cache := New(kv.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	sig := Signature("/resumes", url.Values{"page": {"0"}})
	cache.Put(ctx, sig, []byte(`{"items":[]}`))

	payload, ok := cache.Get(ctx, sig)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(payload) != `{"items":[]}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestCacheMiss(t *testing.T) {
	cache := New(kv.NewMemory(), time.Minute, nil)

	if _, ok := cache.Get(context.Background(), "absent"); ok {
		t.Fatal("expected a miss")
	}
}

func TestCacheExpiry(t *testing.T) {
	store := kv.NewMemory()
	now := time.Now()
	store.Now = func() time.Time { return now }

	cache := New(store, 5*time.Second, nil)
	ctx := context.Background()

	cache.Put(ctx, "sig", []byte("payload"))
	now = now.Add(6 * time.Second)

	if _, ok := cache.Get(ctx, "sig"); ok {
		t.Fatal("expected a miss after TTL")
	}
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Summary string `json:"summary"`
	N       int    `json:"n"`
}

func TestDayCacheSameDayHit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	c := NewDayCache("weekly", NewMemory(), 24*time.Hour, time.UTC)
	c.SetClock(func() time.Time { return now })

	if err := c.Set(ctx, "k", payload{"hello", 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(10 * time.Hour)
	var got payload
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Summary != "hello" || got.N != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestDayCacheDayRolloverInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 23, 30, 0, 0, time.UTC)

	store := NewMemory()
	c := NewDayCache("weekly", store, 24*time.Hour, time.UTC)
	c.SetClock(func() time.Time { return now })
	_ = c.Set(ctx, "k", payload{"late", 1})

	// Within TTL but on the next calendar day.
	now = now.Add(time.Hour)
	var got payload
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || ok {
		t.Fatalf("Get after rollover = %v, %v; want miss", ok, err)
	}
	if store.Len() != 0 {
		t.Errorf("stale entry not invalidated")
	}
}

func TestDayCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 1, 0, 0, 0, time.UTC)

	c := NewDayCache("organizer", NewMemory(), time.Hour, time.UTC)
	c.SetClock(func() time.Time { return now })
	_ = c.Set(ctx, "k", payload{"x", 1})

	now = now.Add(2 * time.Hour)
	var got payload
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatal("expected expiry by TTL on the same day")
	}
}

func TestDayCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewDayCache("weekly", NewMemory(), time.Hour, time.UTC)
	_ = c.Set(ctx, "k", payload{"x", 1})
	_ = c.Invalidate(ctx, "k")
	var got payload
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatal("expected miss after Invalidate")
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "b", []byte("2"), 0)

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("a should have expired")
	}
	if v, ok, _ := m.Get(ctx, "b"); !ok || string(v) != "2" {
		t.Error("b without ttl should persist")
	}
}

func TestMemoryExpiryKeepsConcurrentSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	_ = m.Set(ctx, "k", []byte("old"), time.Minute)

	// The expiry check sees a stale entry; a fresh Set lands before the
	// write lock is taken.
	later := now.Add(2 * time.Minute)
	refreshed := false
	m.now = func() time.Time {
		if !refreshed {
			refreshed = true
			_ = m.Set(ctx, "k", []byte("new"), time.Minute)
		}
		return later
	}

	v, ok, _ := m.Get(ctx, "k")
	if !ok || string(v) != "new" {
		t.Fatalf("Get = %q, %v; want fresh entry", v, ok)
	}
	if m.Len() != 1 {
		t.Errorf("fresh entry was deleted")
	}
}

func TestFingerprintStable(t *testing.T) {
	a, err := Fingerprint(payload{"x", 1})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Fingerprint(payload{"x", 1})
	c, _ := Fingerprint(payload{"x", 2})
	if a != b || a == c {
		t.Errorf("fingerprints a=%s b=%s c=%s", a, b, c)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), "memcached", ""); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v", err)
	}
	s, err := Open(context.Background(), "memory", "")
	if err != nil || s == nil {
		t.Fatalf("memory open = %v, %v", s, err)
	}
}

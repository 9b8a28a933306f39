// Package cache holds the result caches used by the organizer and the weekly
// analyzer. Stores are process-local by default and swappable for Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weekcal/internal/metrics"
)

// Store is a TTL-aware key/value store.
type Store interface {
	// Get returns the value for key. ok is false on a miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Entry is the envelope stored by DayCache.
type Entry struct {
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	ComputedOn string          `json:"computed_on"` // YYYY-MM-DD in the cache's location
}

// DayCache wraps a Store so entries are valid only while they are within
// TTL and were computed on the current calendar day.
type DayCache struct {
	name  string
	store Store
	ttl   time.Duration
	loc   *time.Location
	now   func() time.Time
}

// NewDayCache creates a DayCache. name labels metrics and key prefixes.
func NewDayCache(name string, store Store, ttl time.Duration, loc *time.Location) *DayCache {
	if loc == nil {
		loc = time.Local
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DayCache{name: name, store: store, ttl: ttl, loc: loc, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (c *DayCache) SetClock(now func() time.Time) {
	c.now = now
}

// Today is the current day string in the cache's location.
func (c *DayCache) Today() string {
	return c.now().In(c.loc).Format(time.DateOnly)
}

// Get loads key into dst. It reports false on a miss, on expiry, or when the
// entry was computed on an earlier day.
func (c *DayCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.CacheLookup(c.name, false)
		return false, nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		_ = c.store.Invalidate(ctx, c.key(key))
		metrics.CacheLookup(c.name, false)
		return false, nil
	}
	if !c.valid(e) {
		_ = c.store.Invalidate(ctx, c.key(key))
		metrics.CacheLookup(c.name, false)
		return false, nil
	}

	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return false, fmt.Errorf("cache %s: decode payload: %w", c.name, err)
	}
	metrics.CacheLookup(c.name, true)
	return true, nil
}

// Set stores v under key, stamped with the current time and day.
func (c *DayCache) Set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache %s: encode payload: %w", c.name, err)
	}
	now := c.now()
	raw, err := json.Marshal(Entry{
		Payload:    payload,
		ComputedAt: now,
		ComputedOn: now.In(c.loc).Format(time.DateOnly),
	})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key(key), raw, c.ttl)
}

// Invalidate drops key.
func (c *DayCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Invalidate(ctx, c.key(key))
}

func (c *DayCache) valid(e Entry) bool {
	now := c.now()
	if now.Sub(e.ComputedAt) >= c.ttl {
		return false
	}
	return e.ComputedOn == now.In(c.loc).Format(time.DateOnly)
}

func (c *DayCache) key(k string) string {
	return c.name + ":" + k
}

// Fingerprint hashes any JSON-encodable value into a short stable key part.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// ErrUnknownBackend is returned by Open for unsupported backends.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Open builds the Store named by backend ("memory" or "redis").
func Open(ctx context.Context, backend, redisAddr string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, redisAddr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

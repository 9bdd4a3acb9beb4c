// Package cache implements the read-through cache namespace (C2): a thin
// layer over the coordination store that groups related keys so they can be
// evicted together after a write, and that serializes values with JSON so
// any loader result can be cached without a type switch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/telemetry"
)

// DefaultTTL is the namespace default when none is supplied (§4.2: 60 minutes).
const DefaultTTL = 60 * time.Minute

// Namespace is a named group of cache keys that can be evicted as a unit.
// It tracks every key it has ever written in an auxiliary set so evictAll
// can remove exactly that set in one round trip, without a KEYS scan.
type Namespace struct {
	name string
	ttl  time.Duration
	c    *coordination.Client
}

// New returns a Namespace backed by c, using ttl as the default entry
// lifetime. ttl of zero uses DefaultTTL.
func New(c *coordination.Client, name string, ttl time.Duration) *Namespace {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Namespace{name: name, ttl: ttl, c: c}
}

func (n *Namespace) dataKey(key string) string {
	return fmt.Sprintf("cache:%s:%s", n.name, key)
}

func (n *Namespace) trackerKey() string {
	return fmt.Sprintf("cache:%s:__keys", n.name)
}

// Loader computes a value on a cache miss.
type Loader func(ctx context.Context) (any, error)

// GetOrCompute returns the cached value at key if present, decoding it into
// out. On a miss it invokes loader exactly once, stores the JSON-encoded
// result under the namespace default TTL, and decodes it into out.
func (n *Namespace) GetOrCompute(ctx context.Context, key string, out any, loader Loader) error {
	raw, hit, err := n.c.Get(ctx, n.dataKey(key))
	if err != nil {
		return err
	}
	if hit {
		telemetry.CacheHitsTotal.WithLabelValues(n.name).Inc()
		return json.Unmarshal([]byte(raw), out)
	}

	telemetry.CacheMissesTotal.WithLabelValues(n.name).Inc()
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	if err := n.Put(ctx, key, value); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// Put unconditionally writes key to value, registering it with the
// namespace's eviction tracker.
func (n *Namespace) Put(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := n.c.Set(ctx, n.dataKey(key), string(encoded), n.ttl); err != nil {
		return err
	}
	return n.c.SAdd(ctx, n.trackerKey(), key)
}

// Probe reports whether key is present without altering recency.
func (n *Namespace) Probe(ctx context.Context, key string) (bool, error) {
	return n.c.Exists(ctx, n.dataKey(key))
}

// EvictAll removes every key ever written under this namespace, atomically
// from the caller's perspective: the tracked key list plus the tracker
// itself are deleted in a single DelMany round trip.
func (n *Namespace) EvictAll(ctx context.Context) error {
	members, err := n.c.SMembers(ctx, n.trackerKey())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, n.dataKey(m))
	}
	keys = append(keys, n.trackerKey())

	if _, err := n.c.DelMany(ctx, keys); err != nil {
		return err
	}
	telemetry.CacheEvictionsTotal.WithLabelValues(n.name).Inc()
	return nil
}

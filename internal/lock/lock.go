// Package lock implements the distributed mutex (C3): a thin, intentionally
// unverified lease over the coordination store used to serialize rapid
// double-submits on a resource. It is a latency/UX optimization, not a
// safety boundary — callers still revalidate invariants inside a DB
// transaction (§4.3).
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/telemetry"
)

const sentinel = "held"

// Locker acquires and releases leases keyed by an arbitrary string, backed
// by the coordination store.
type Locker struct {
	c *coordination.Client
}

// New returns a Locker backed by c.
func New(c *coordination.Client) *Locker {
	return &Locker{c: c}
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// Acquire attempts to take the lease for key, valid for lease. On a
// reachable coordination store it reports whether the lease was actually
// taken. If the store is unreachable it fails open and returns true — the
// authoritative invariants are re-checked under a DB transaction by the
// caller, so a spuriously-granted lock cannot itself cause corruption.
func (l *Locker) Acquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	ok, err := l.c.SetIfAbsent(ctx, lockKey(key), sentinel, lease)
	if err != nil {
		if errors.Is(err, coordination.ErrUnavailable) {
			return true, nil
		}
		return false, err
	}
	if !ok {
		telemetry.LockContentionTotal.WithLabelValues(prefixOf(key)).Inc()
	}
	return ok, nil
}

// Release unconditionally deletes the lease for key. Ownership is not
// verified: every lease auto-expires, so at worst a delayed holder deletes
// a successor's lease, causing a spurious race rather than a correctness
// violation.
func (l *Locker) Release(ctx context.Context, key string) error {
	_, err := l.c.Del(ctx, lockKey(key))
	if errors.Is(err, coordination.ErrUnavailable) {
		return nil
	}
	return err
}

// WithLock acquires key for lease, runs action if acquired, and always
// releases afterward. Returns false without running action if the lease
// could not be acquired.
func (l *Locker) WithLock(ctx context.Context, key string, lease time.Duration, action func(ctx context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx, key, lease)
	if err != nil || !ok {
		return false, err
	}
	defer func() { _ = l.Release(ctx, key) }()

	if err := action(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func prefixOf(key string) string {
	for i, r := range key {
		if r == ':' {
			return key[:i]
		}
	}
	return key
}

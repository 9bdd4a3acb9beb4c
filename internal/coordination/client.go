// Package coordination wraps the external in-memory K/V + list store that
// backs the cache namespace, distributed lock, rate limiter, and work queue.
// It exposes exactly the atomic primitive set the rest of the core needs —
// callers decide fail-open vs fail-closed when ErrUnavailable is returned.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every transient failure talking to the coordination
// store, so callers can use errors.Is to implement their own fail-open or
// fail-closed policy (§4.1, §5 degraded modes).
var ErrUnavailable = errors.New("coordination store unavailable")

// Client is a thin adapter over a Redis connection providing the atomic
// primitives spec.md §4.1 requires. No ordering is assumed across keys.
type Client struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Raw exposes the underlying client for primitives this package doesn't
// wrap (e.g. Lua script evaluation used by the rate limiter).
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SetIfAbsent atomically sets key to value with the given TTL only if key
// does not already exist. Returns true if the set happened.
func (c *Client) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

// Del unconditionally deletes key. Returns true if a key was removed.
func (c *Client) Del(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// DelMany deletes many keys in a single round trip. Returns the number removed.
func (c *Client) DelMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// Get returns the string value at key, or ("", false, nil) if absent.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

// Set unconditionally writes key to value with the given TTL (0 = no expiry).
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap(c.rdb.Set(ctx, key, value, ttl).Err())
}

// Exists reports whether key is present, without altering recency.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// TTL returns the remaining time-to-live for key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return d, nil
}

// SAdd adds members to the set at key (used to track namespace key membership).
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrap(c.rdb.SAdd(ctx, key, args...).Err())
}

// SMembers returns all members of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return members, nil
}

// ListPushLeft pushes v onto the head of the named list (enqueue, §4.5).
func (c *Client) ListPushLeft(ctx context.Context, queue, v string) error {
	return wrap(c.rdb.LPush(ctx, queue, v).Err())
}

// ListPopRightBlocking pops from the tail of the named list, blocking up to
// timeout. Returns ("", false, nil) on timeout.
func (c *Client) ListPopRightBlocking(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	// BRPop returns [queue, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// ListPopRightNonblocking pops from the tail of the named list immediately.
// Returns ("", false, nil) if the list is empty.
func (c *Client) ListPopRightNonblocking(ctx context.Context, queue string) (string, bool, error) {
	v, err := c.rdb.RPop(ctx, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

// ListRange returns a read-only snapshot of the named list from start to stop
// (inclusive; -1 means "to the end").
func (c *Client) ListRange(ctx context.Context, queue string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, queue, start, stop).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return vals, nil
}

// ListLen returns the current length of the named list.
func (c *Client) ListLen(ctx context.Context, queue string) (int64, error) {
	n, err := c.rdb.LLen(ctx, queue).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// ListClear removes the named list entirely.
func (c *Client) ListClear(ctx context.Context, queue string) error {
	return wrap(c.rdb.Del(ctx, queue).Err())
}

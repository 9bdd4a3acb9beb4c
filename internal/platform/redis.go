package platform

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewCoordinationClient creates the Redis client backing the coordination
// store (cache namespace, distributed lock, rate limiter, and work queue all
// share this single connection pool).
func NewCoordinationClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging coordination store: %w", err)
	}

	return client, nil
}

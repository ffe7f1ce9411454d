// Package cache holds the in-memory and Redis backends for rate-limit
// counters and sessions.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/redis/go-redis/v9"
)

// Connect builds a Redis client from a redis:// URL or a bare host:port and
// verifies it with a PING.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err)
	}
	return client, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: redis: %v", models.ErrStorageUnavailable, err)
}

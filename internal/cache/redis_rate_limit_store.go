package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "auth:ratelimit:"

// RedisRateLimitStore keeps counters in Redis hashes with fields count and
// window_start (unix nanoseconds). Keys expire when their window closes.
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Get(ctx context.Context, key string) (*models.RateLimitEntry, error) {
	data, err := s.client.HGetAll(ctx, rateLimitPrefix+key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	entry := &models.RateLimitEntry{Key: key}
	if n, convErr := strconv.Atoi(data["count"]); convErr == nil {
		entry.Count = n
	}
	if ns, convErr := strconv.ParseInt(data["window_start"], 10, 64); convErr == nil {
		entry.WindowStart = time.Unix(0, ns).UTC()
	}
	return entry, nil
}

// Increment bumps the counter inside MULTI/EXEC. The first failure of a window
// claims window_start with HSETNX and sets the expiry; a stale hash left past
// its window is dropped and the increment retried once.
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*models.RateLimitEntry, error) {
	redisKey := rateLimitPrefix + key

	for attempt := 0; attempt < 2; attempt++ {
		var (
			countCmd   *redis.IntCmd
			claimedCmd *redis.BoolCmd
			startCmd   *redis.StringCmd
		)

		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			countCmd = p.HIncrBy(ctx, redisKey, "count", 1)
			claimedCmd = p.HSetNX(ctx, redisKey, "window_start", now.UnixNano())
			startCmd = p.HGet(ctx, redisKey, "window_start")
			return nil
		})
		if err != nil {
			return nil, unavailable(err)
		}

		startNs, err := strconv.ParseInt(startCmd.Val(), 10, 64)
		if err != nil {
			return nil, unavailable(err)
		}
		windowStart := time.Unix(0, startNs).UTC()

		if claimedCmd.Val() {
			if err := s.client.PExpireAt(ctx, redisKey, windowStart.Add(window)).Err(); err != nil {
				return nil, unavailable(err)
			}
		}

		if now.Before(windowStart.Add(window)) {
			return &models.RateLimitEntry{Key: key, Count: int(countCmd.Val()), WindowStart: windowStart}, nil
		}

		if err := s.client.Del(ctx, redisKey).Err(); err != nil {
			return nil, unavailable(err)
		}
	}

	return nil, unavailable(redis.TxFailedErr)
}

func (s *RedisRateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, rateLimitPrefix+key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys on its own
func (s *RedisRateLimitStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

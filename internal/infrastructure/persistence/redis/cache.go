package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenwear/storefront-service/internal/infrastructure/bloom"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const (
	retryQueueKey = "webhook:retry_queue"
	deadLetterKey = "webhook:dead_letter"
)

// Cache is the redis-backed coordination layer: distributed locks, the webhook
// retry schedule, the dead-letter list, a processed-event bloom filter and the
// availability read cache. All of it is advisory; the datastore's unique keys
// and conditional updates hold when redis is down.
type Cache struct {
	client      *redis.Client
	bloomFilter *bloom.RedisBloomFilter
	logger      *logger.Logger
}

func NewCache(conn *Connection, log *logger.Logger) *Cache {
	client := monitoring.InstrumentRedisClient(conn.GetClient())

	m, k := bloom.GetOptimalParameters(1000000, 0.01)
	bloomFilter := bloom.NewRedisBloomFilter(client, "bloom:processed_events", m, k)

	return &Cache{
		client:      client,
		bloomFilter: bloomFilter,
		logger:      log,
	}
}

func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	result, err := c.client.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		monitoring.RedisLockFailureTotal.WithLabelValues(key, "redis_error").Inc()
		return false, err
	}
	if result {
		monitoring.RedisLockSuccessTotal.WithLabelValues(key).Inc()
	} else {
		monitoring.RedisLockFailureTotal.WithLabelValues(key, "already_locked").Inc()
	}
	return result, nil
}

func (c *Cache) ReleaseLock(ctx context.Context, key string) error {
	return c.client.Del(ctx, fmt.Sprintf("lock:%s", key)).Err()
}

// EnqueueRetry schedules an event id on the retry sorted set, scored by the
// unix time it becomes due.
func (c *Cache) EnqueueRetry(ctx context.Context, eventID string, readyAt time.Time) error {
	return c.client.ZAdd(ctx, retryQueueKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: eventID,
	}).Err()
}

// DequeueDueRetries pops event ids whose scheduled time has passed. Two
// workers may race the range and removal; the processing claim in the
// datastore dedupes whoever loses.
func (c *Cache) DequeueDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := c.client.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := c.client.ZRem(ctx, retryQueueKey, members...).Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Cache) RetryQueueDepth(ctx context.Context) (int64, error) {
	return c.client.ZCard(ctx, retryQueueKey).Result()
}

func (c *Cache) PushDeadLetter(ctx context.Context, eventID string) error {
	return c.client.LPush(ctx, deadLetterKey, eventID).Err()
}

func (c *Cache) DeadLetterCount(ctx context.Context) (int64, error) {
	return c.client.LLen(ctx, deadLetterKey).Result()
}

func (c *Cache) RemoveDeadLetter(ctx context.Context, eventID string) error {
	return c.client.LRem(ctx, deadLetterKey, 0, eventID).Err()
}

func (c *Cache) AddProcessedEvent(ctx context.Context, eventID string) error {
	return c.bloomFilter.Add(ctx, eventID)
}

func (c *Cache) ProcessedEventSeen(ctx context.Context, eventID string) (bool, error) {
	return c.bloomFilter.Contains(ctx, eventID)
}

func (c *Cache) SetAvailability(ctx context.Context, productID, size string, available int, ttl time.Duration) error {
	return c.client.Set(ctx, availabilityKey(productID, size), available, ttl).Err()
}

func (c *Cache) GetAvailability(ctx context.Context, productID, size string) (int, bool, error) {
	result, err := c.client.Get(ctx, availabilityKey(productID, size)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}

	available, err := strconv.Atoi(result)
	if err != nil {
		return 0, false, err
	}
	return available, true, nil
}

func (c *Cache) InvalidateAvailability(ctx context.Context, productID, size string) error {
	return c.client.Del(ctx, availabilityKey(productID, size)).Err()
}

func availabilityKey(productID, size string) string {
	return fmt.Sprintf("availability:%s:%s", productID, size)
}

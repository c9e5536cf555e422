package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedTextStore 为 Lookup 增加 Redis 读穿透缓存，Redis 故障时直接回源
type CachedTextStore struct {
	TextStore
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedTextStore 包装文本存储
func NewCachedTextStore(inner TextStore, client redis.UniversalClient, namespace string, ttl time.Duration, logger *zap.Logger) *CachedTextStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTextStore{
		TextStore: inner,
		client:    client,
		prefix:    fmt.Sprintf("ragindex:text:%s:", namespace),
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *CachedTextStore) key(id string) string {
	return c.prefix + id
}

func (c *CachedTextStore) Lookup(ctx context.Context, id string) (string, bool, error) {
	text, err := c.client.Get(ctx, c.key(id)).Result()
	if err == nil {
		c.hits.Add(1)
		return text, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("text cache read failed", zap.String("id", id), zap.Error(err))
	}
	c.misses.Add(1)

	text, found, err := c.TextStore.Lookup(ctx, id)
	if err != nil || !found {
		return text, found, err
	}
	if err := c.client.Set(ctx, c.key(id), text, c.ttl).Err(); err != nil {
		c.logger.Warn("text cache write failed", zap.String("id", id), zap.Error(err))
	}
	return text, true, nil
}

// UpsertBatch 写入后使对应缓存失效
func (c *CachedTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	if err := c.TextStore.UpsertBatch(ctx, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = c.key(r.ID)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("text cache invalidation failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
	return nil
}

// Reset 重建底层存储并清理命名空间下的缓存
func (c *CachedTextStore) Reset(ctx context.Context) error {
	if err := c.TextStore.Reset(ctx); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("text cache scan failed", zap.Error(err))
		return nil
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("text cache purge failed", zap.Error(err))
		}
	}
	return nil
}

// HitRate 缓存命中率
func (c *CachedTextStore) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qrpos-order-services/internal/order"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedRepository serves outlet settings from Redis and delegates everything
// else. Settings change rarely and every order snapshots the rates it used,
// so a short TTL is enough.
type CachedRepository struct {
	Repository
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedRepository(next Repository, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{Repository: next, rdb: rdb, ttl: ttl, logger: logger}
}

func outletCacheKey(outletID int64) string {
	return fmt.Sprintf("qrpos:outlet:%d:settings", outletID)
}

func (c *CachedRepository) GetOutlet(ctx context.Context, outletID int64) (order.Outlet, error) {
	key := outletCacheKey(outletID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached order.Outlet
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("outlet cache entry unreadable", zap.Int64("outletId", outletID))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("outlet cache read failed", zap.Int64("outletId", outletID), zap.Error(err))
	}

	outlet, err := c.Repository.GetOutlet(ctx, outletID)
	if err != nil {
		return order.Outlet{}, err
	}

	if payload, err := json.Marshal(outlet); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("outlet cache write failed", zap.Int64("outletId", outletID), zap.Error(err))
		}
	}
	return outlet, nil
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	payloadKeyPrefix = "listing:payload:"
)

// RedisCache はスクレイプ結果を Redis に保存します。複数インスタンスで共有する場合に使います。
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache は RedisCache を作成します。
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewRedisCacheFromURL は接続URLから RedisCache を作成し、疎通を確認します。
func NewRedisCacheFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCache(rdb, ttl), nil
}

// Put はペイロードを保存します。
func (c *RedisCache) Put(ctx context.Context, contextID string, l Listing) error {
	if contextID == "" {
		return fmt.Errorf("contextID is required")
	}
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, payloadKey(contextID), payload, c.ttl).Err()
}

// Get はペイロードを取得します。存在しない場合は ok=false を返します。
func (c *RedisCache) Get(ctx context.Context, contextID string) (Listing, bool, error) {
	data, err := c.rdb.Get(ctx, payloadKey(contextID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Listing{}, false, nil
		}
		return Listing{}, false, err
	}
	var l Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return Listing{}, false, err
	}
	return l, true, nil
}

// Invalidate はペイロードを削除します。
func (c *RedisCache) Invalidate(ctx context.Context, contextID string) error {
	return c.rdb.Del(ctx, payloadKey(contextID)).Err()
}

// Close は接続を閉じます。
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func payloadKey(contextID string) string {
	return payloadKeyPrefix + contextID
}

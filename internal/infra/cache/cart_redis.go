package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// DBを読んでいる間に Invalidate された
	ErrStale = errors.New("cache entry is stale")
)

// 世代キーはデータより長く残す
const versionTTL = 24 * time.Hour

// CartCache はカート明細をユーザー単位で持つ。
// 正はDBなので、消し損ねてもTTLで自然に切れる。
type CartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCartCache(client *redis.Client, baseTTL time.Duration) *CartCache {
	if baseTTL <= 0 {
		baseTTL = 10 * time.Minute
	}
	return &CartCache{client: client, baseTTL: baseTTL}
}

// Get は dst にJSONを復元する。無ければ ErrCacheMiss。
func (c *CartCache) Get(ctx context.Context, userID int64, dst any) error {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return nil
}

// Version は Invalidate のたびに増える世代。DBを読む前に取っておき、SetIfVersion に渡す。
func (c *CartCache) Version(ctx context.Context, userID int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

// SetIfVersion は世代が version のままのときだけ保存する。変わっていたら ErrStale。
func (c *CartCache) SetIfVersion(ctx context.Context, userID int64, version int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	vk := versionKey(userID)
	ttl := c.ttl()
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userID), data, ttl)
			return nil
		})
		return err
	}, vk)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Invalidate は世代を進めてからデータを消す。
func (c *CartCache) Invalidate(ctx context.Context, userID int64) error {
	vk := versionKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vk)
		pipe.Expire(ctx, vk, versionTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// 一斉に切れないように少しずらす
func (c *CartCache) ttl() time.Duration {
	return c.baseTTL + time.Duration(rand.Int63n(int64(time.Minute)))
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func versionKey(userID int64) string {
	return fmt.Sprintf("cart:%d:v", userID)
}

package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tiendita/internal/domain"
)

// RedisCache backs both read caches with one redis client.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// RedisPromotionCache adapts RedisCache to the PromotionCache interface.
type RedisPromotionCache struct {
	*RedisCache
}

func (c RedisPromotionCache) Get(ctx context.Context, key string) ([]domain.Promotion, bool, error) {
	var promos []domain.Promotion
	ok, err := c.get(ctx, key, &promos)
	if !ok || err != nil {
		return nil, false, err
	}
	return promos, true, nil
}

func (c RedisPromotionCache) Set(ctx context.Context, key string, promos []domain.Promotion, ttl time.Duration) error {
	if promos == nil {
		return nil
	}
	return c.set(ctx, key, promos, ttl)
}

// RedisProductCache adapts RedisCache to the ProductCache interface.
type RedisProductCache struct {
	*RedisCache
}

func (c RedisProductCache) Get(ctx context.Context, key string) ([]domain.Product, bool, error) {
	var products []domain.Product
	ok, err := c.get(ctx, key, &products)
	if !ok || err != nil {
		return nil, false, err
	}
	return products, true, nil
}

func (c RedisProductCache) Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error {
	if products == nil {
		return nil
	}
	return c.set(ctx, key, products, ttl)
}

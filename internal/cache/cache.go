// Package cache provides the TTL read caches of the catalog and promotion
// read paths. The caches are explicit components injected where needed; no
// process-wide singleton.
package cache

import (
	"context"
	"time"

	"tiendita/internal/domain"
)

type PromotionCache interface {
	Get(ctx context.Context, key string) ([]domain.Promotion, bool, error)
	Set(ctx context.Context, key string, promos []domain.Promotion, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type ProductCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopPromotionCache struct{}

func (NoopPromotionCache) Get(_ context.Context, _ string) ([]domain.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopPromotionCache) Set(_ context.Context, _ string, _ []domain.Promotion, _ time.Duration) error {
	return nil
}

func (NoopPromotionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

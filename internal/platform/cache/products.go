package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ProductSource is the authoritative catalog read path.
type ProductSource interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// ProductCache is a read-through cache in front of ProductSource. Cache
// failures degrade to direct reads; they are never surfaced to callers.
type ProductCache struct {
	source ProductSource
	rdb    *redis.Client
	ttl    time.Duration
	onErr  func(ctx context.Context, err error)
}

// ProductCacheOption customises ProductCache.
type ProductCacheOption func(*ProductCache)

// WithErrorHandler observes cache failures, typically to log them.
func WithErrorHandler(fn func(ctx context.Context, err error)) ProductCacheOption {
	return func(c *ProductCache) {
		if fn != nil {
			c.onErr = fn
		}
	}
}

// NewProductCache wraps source.
func NewProductCache(source ProductSource, rdb *redis.Client, ttl time.Duration, opts ...ProductCacheOption) *ProductCache {
	c := &ProductCache{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		onErr:  func(context.Context, error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type cachedProduct struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p cachedProduct) product() domain.Product {
	return domain.Product{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Status: domain.ProductStatus(p.Status), UpdatedAt: p.UpdatedAt}
}

func encodeProduct(p domain.Product) ([]byte, error) {
	return json.Marshal(cachedProduct{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Status: string(p.Status), UpdatedAt: p.UpdatedAt})
}

// Get serves from cache, falling back to the source and filling the cache.
func (c *ProductCache) Get(ctx context.Context, productID string) (domain.Product, error) {
	raw, err := c.rdb.Get(ctx, productPrefix+productID).Bytes()
	if err == nil {
		var cached cachedProduct
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached.product(), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.onErr(ctx, fmt.Errorf("cache: get product %s: %w", productID, err))
	}

	product, err := c.source.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	c.fill(ctx, product)
	return product, nil
}

// GetMany reads every id with one MGET and loads misses from the source in one call.
func (c *ProductCache) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = productPrefix + id
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.onErr(ctx, fmt.Errorf("cache: mget products: %w", err))
		values = make([]any, len(productIDs))
	}

	var misses []string
	for i, id := range productIDs {
		raw, ok := values[i].(string)
		if !ok {
			misses = append(misses, id)
			continue
		}
		var cached cachedProduct
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			misses = append(misses, id)
			continue
		}
		out[id] = cached.product()
	}
	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := c.source.GetMany(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, product := range loaded {
		out[id] = product
		c.fill(ctx, product)
	}
	return out, nil
}

// Invalidate removes cached entries for productIDs.
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = productPrefix + id
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate products: %w", err)
	}
	return nil
}

func (c *ProductCache) fill(ctx context.Context, product domain.Product) {
	raw, err := encodeProduct(product)
	if err != nil {
		c.onErr(ctx, err)
		return
	}
	if err := c.rdb.Set(ctx, productPrefix+product.ID, raw, c.ttl).Err(); err != nil {
		c.onErr(ctx, fmt.Errorf("cache: set product %s: %w", product.ID, err))
	}
}

// Package cache holds the Redis-backed cart hint store and product read cache.
// Both are optional accelerators; the database stays authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cartHintPrefix = "storefront:cart-hint:"
	productPrefix  = "storefront:product:"
)

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("cache: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return client, nil
}

// CartHintStore remembers the last cart acquired by each owner.
type CartHintStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCartHintStore constructs a hint store; ttl bounds how long a hint lives.
func NewCartHintStore(rdb *redis.Client, ttl time.Duration) *CartHintStore {
	return &CartHintStore{rdb: rdb, ttl: ttl}
}

// Get returns the hinted cart id, reporting false when no hint exists.
func (s *CartHintStore) Get(ctx context.Context, ownerID string) (string, bool, error) {
	cartID, err := s.rdb.Get(ctx, cartHintPrefix+ownerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get cart hint: %w", err)
	}
	return cartID, true, nil
}

// Set stores the hint.
func (s *CartHintStore) Set(ctx context.Context, ownerID, cartID string) error {
	if err := s.rdb.Set(ctx, cartHintPrefix+ownerID, cartID, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set cart hint: %w", err)
	}
	return nil
}

// Delete removes the hint.
func (s *CartHintStore) Delete(ctx context.Context, ownerID string) error {
	if err := s.rdb.Del(ctx, cartHintPrefix+ownerID).Err(); err != nil {
		return fmt.Errorf("cache: delete cart hint: %w", err)
	}
	return nil
}

package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:idempotency:"

// RedisStore shares reservations across processes. Records expire through the key TTL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + recordID(key)
}

// Reserve implements the Store interface using SET NX so only one request wins a fresh key.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	pending := pendingRecord(key, fingerprint, now, ttl)
	data, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	// A record can expire between SETNX and GET; the second pass reserves it again.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.rdb.SetNX(ctx, s.key(key), data, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}

		existing, found, err := s.load(ctx, key)
		if err != nil {
			return Reservation{}, err
		}
		if !found {
			continue
		}
		if existing.Fingerprint != fingerprint {
			return Reservation{}, ErrFingerprintMismatch
		}
		if existing.Status == StatusCompleted {
			return Reservation{State: ReservationStateCompleted, Record: existing}, nil
		}
		return Reservation{State: ReservationStatePending, Record: existing}, nil
	}
	return Reservation{State: ReservationStatePending, Record: pending}, nil
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record, found, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found {
		record = Record{Key: key, Fingerprint: fingerprint}
	}

	data, err := json.Marshal(completeRecord(record, resp, now, ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release deletes the reservation when it still belongs to fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	record, found, err := s.load(ctx, key)
	if err != nil || !found || record.Fingerprint != fingerprint {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}

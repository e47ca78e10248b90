package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisStore(rdb)
}

func TestRedisStoreLifecycle(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "key|user-1", "fp", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v %v", res.State, err)
	}
	res, err = store.Reserve(ctx, "key|user-1", "fp", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %v %v", res.State, err)
	}
	if _, err := store.Reserve(ctx, "key|user-1", "other", fixedTime, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"ok":true}`)}
	if err := store.SaveResponse(ctx, "key|user-1", "fp", resp, fixedTime, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err = store.Reserve(ctx, "key|user-1", "fp", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation, got %v %v", res.State, err)
	}
	if res.Record.ResponseStatus != http.StatusCreated || string(res.Record.ResponseBody) != `{"ok":true}` {
		t.Fatalf("unexpected stored record %+v", res.Record)
	}

	mr.FastForward(2 * time.Hour)
	res, err = store.Reserve(ctx, "key|user-1", "other", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %v %v", res.State, err)
	}
}

func TestRedisStoreReleaseChecksFingerprint(t *testing.T) {
	_, store := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "k", "someone-else"); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, _ := store.Reserve(ctx, "k", "fp", fixedTime, time.Hour)
	if res.State != ReservationStatePending {
		t.Fatalf("expected foreign release to be ignored, got %v", res.State)
	}
	if err := store.Release(ctx, "k", "fp"); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, _ = store.Reserve(ctx, "k", "fp", fixedTime, time.Hour)
	if res.State != ReservationStateNew {
		t.Fatalf("expected released key to be reservable, got %v", res.State)
	}
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	mr, store := newRedisStore(t)
	mr.Close()
	if _, err := store.Reserve(context.Background(), "k", "fp", fixedTime, time.Hour); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}

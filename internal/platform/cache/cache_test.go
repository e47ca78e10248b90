package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

type countingSource struct {
	products map[string]domain.Product
	gets     int
	batches  [][]string
}

var errMissing = errors.New("missing")

func (s *countingSource) Get(_ context.Context, id string) (domain.Product, error) {
	s.gets++
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, errMissing
	}
	return p, nil
}

func (s *countingSource) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.batches = append(s.batches, ids)
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok {
			return nil, errMissing
		}
		out[id] = p
	}
	return out, nil
}

func TestCartHintStoreRoundTrip(t *testing.T) {
	srv, client := newRedis(t)
	store := NewCartHintStore(client, time.Minute)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "user-1"); err != nil || ok {
		t.Fatalf("expected no hint, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "user-1", "cart-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "user-1")
	if err != nil || !ok || got != "cart-1" {
		t.Fatalf("expected cart-1, got %q ok=%v err=%v", got, ok, err)
	}

	srv.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "user-1"); ok {
		t.Fatalf("expected hint to expire")
	}

	_ = store.Set(ctx, "user-1", "cart-2")
	if err := store.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "user-1"); ok {
		t.Fatalf("expected hint removed")
	}
}

func TestCartHintStoreSurfacesErrors(t *testing.T) {
	srv, client := newRedis(t)
	store := NewCartHintStore(client, time.Minute)
	srv.Close()
	if _, _, err := store.Get(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestProductCacheReadThrough(t *testing.T) {
	_, client := newRedis(t)
	source := &countingSource{products: map[string]domain.Product{
		"p-1": {ID: "p-1", Name: "Lamp", Price: 1200, Stock: 3, Status: domain.ProductStatusActive},
		"p-2": {ID: "p-2", Name: "Desk", Price: 9000, Stock: 1, Status: domain.ProductStatusActive},
	}}
	cache := NewProductCache(source, client, time.Minute)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "p-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	got, err := cache.Get(ctx, "p-1")
	if err != nil || got.Name != "Lamp" {
		t.Fatalf("expected cached lamp, got %+v %v", got, err)
	}
	if source.gets != 1 {
		t.Fatalf("expected a single source read, got %d", source.gets)
	}

	many, err := cache.GetMany(ctx, []string{"p-1", "p-2"})
	if err != nil || len(many) != 2 {
		t.Fatalf("get many: %v %v", many, err)
	}
	if len(source.batches) != 1 || len(source.batches[0]) != 1 || source.batches[0][0] != "p-2" {
		t.Fatalf("expected only the miss to reach the source, got %v", source.batches)
	}

	source.products["p-1"] = domain.Product{ID: "p-1", Name: "Lamp v2", Price: 1300, Stock: 3, Status: domain.ProductStatusActive}
	if err := cache.Invalidate(ctx, "p-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	got, _ = cache.Get(ctx, "p-1")
	if got.Name != "Lamp v2" {
		t.Fatalf("expected fresh product after invalidation, got %+v", got)
	}
}

func TestProductCacheDegradesWhenRedisDown(t *testing.T) {
	srv, client := newRedis(t)
	source := &countingSource{products: map[string]domain.Product{"p-1": {ID: "p-1", Name: "Lamp"}}}
	var observed []error
	cache := NewProductCache(source, client, time.Minute, WithErrorHandler(func(_ context.Context, err error) {
		observed = append(observed, err)
	}))
	srv.Close()

	got, err := cache.GetMany(context.Background(), []string{"p-1"})
	if err != nil || got["p-1"].Name != "Lamp" {
		t.Fatalf("expected source fallback, got %v %v", got, err)
	}
	if len(observed) == 0 {
		t.Fatalf("expected cache failures to be reported")
	}
	if _, err := cache.GetMany(context.Background(), []string{"p-x"}); !errors.Is(err, errMissing) {
		t.Fatalf("expected source error to propagate, got %v", err)
	}
}

package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/di"
	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func seedDuplicates(store *memory.Store, ownerID string, n int) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.PutCart(domain.Cart{
			ID:        ownerID + "-cart-" + string(rune('a'+i)),
			OwnerID:   ownerID,
			Status:    domain.CartStatusOpen,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func newRepairContainer(t *testing.T, store *memory.Store) *di.Container {
	t.Helper()
	container, err := di.NewContainer(context.Background(), config.Config{
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
	}, store)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	return container
}

func TestRepairClosesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedDuplicates(store, "owner-1", 3)
	seedDuplicates(store, "owner-2", 2)
	seedDuplicates(store, "owner-3", 1)
	container := newRepairContainer(t, store)

	report, err := repair(ctx, store.Carts(), container.Services.Cart, repairOptions{limit: 10, concurrency: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Owners != 2 || report.CartsClosed != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	for _, owner := range []string{"owner-1", "owner-2", "owner-3"} {
		open, err := store.Carts().ListOpenByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("list open: %v", err)
		}
		if len(open) != 1 {
			t.Fatalf("expected one open cart for %s, got %d", owner, len(open))
		}
	}
}

func TestRepairDryRunLeavesCartsOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedDuplicates(store, "owner-1", 3)
	container := newRepairContainer(t, store)

	report, err := repair(ctx, store.Carts(), container.Services.Cart, repairOptions{dryRun: true, limit: 10}, zap.NewNop())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Owners != 1 || report.CartsClosed != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	open, err := store.Carts().ListOpenByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("dry run must not close carts, got %d open", len(open))
	}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

var fixtureNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	pricing   *PricingEngine
	ledger    InventoryLedger
	carts     CartService
	finalizer OrderFinalizer
	orders    OrderService
	notifier  *recordingNotifier
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	hints    CartHintStore
	notifier AdminNotifier
	cache    ProductCacheInvalidator
}

func withHints(h CartHintStore) fixtureOption {
	return func(c *fixtureConfig) { c.hints = h }
}

func withNotifier(n AdminNotifier) fixtureOption {
	return func(c *fixtureConfig) { c.notifier = n }
}

func withCache(cache ProductCacheInvalidator) fixtureOption {
	return func(c *fixtureConfig) { c.cache = cache }
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%06d", n.Add(1))
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	recorder := &recordingNotifier{}
	cfg := fixtureConfig{notifier: recorder}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memory.NewStore()
	clock := func() time.Time { return fixtureNow }
	ids := sequentialIDs()

	pricing, err := NewPricingEngine(PricingConfig{})
	if err != nil {
		t.Fatalf("pricing engine: %v", err)
	}
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{
		Products:   store.Products(),
		UnitOfWork: store,
		Cache:      cfg.cache,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("inventory ledger: %v", err)
	}
	carts, err := NewCartService(CartServiceDeps{
		Carts:       store.Carts(),
		Items:       store.CartItems(),
		Products:    store.Products(),
		Pricing:     pricing,
		Hints:       cfg.hints,
		UnitOfWork:  store,
		Sleep:       func(context.Context, time.Duration) error { return nil },
		Clock:       clock,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	finalizer, err := NewOrderFinalizer(OrderFinalizerDeps{
		Carts:       store.Carts(),
		Items:       store.CartItems(),
		Orders:      store.Orders(),
		Counters:    store.Counters(),
		Ledger:      ledger,
		Pricing:     pricing,
		Notifier:    cfg.notifier,
		UnitOfWork:  store,
		Currency:    "jpy",
		Dispatch:    func(fn func()) { fn() },
		Clock:       clock,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("order finalizer: %v", err)
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Ledger:     ledger,
		UnitOfWork: store,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}

	return &fixture{
		store:     store,
		pricing:   pricing,
		ledger:    ledger,
		carts:     carts,
		finalizer: finalizer,
		orders:    orders,
		notifier:  recorder,
	}
}

func (f *fixture) product(id string, price int64, stock int) {
	f.store.PutProduct(domain.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  price,
		Stock:  stock,
		Status: domain.ProductStatusActive,
	})
}

func (f *fixture) stock(t *testing.T, id string) domain.Product {
	t.Helper()
	product, err := f.store.Products().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product
}

func (f *fixture) addItem(t *testing.T, ownerID, productID string, qty int) CartView {
	t.Helper()
	view, err := f.carts.AddItem(context.Background(), AddCartItemCommand{OwnerID: ownerID, ProductID: productID, Quantity: qty})
	if err != nil {
		t.Fatalf("add item %s: %v", productID, err)
	}
	return view
}

var testDelivery = DeliveryInfo{Address: "1-2-3 Shibuya, Tokyo", Notes: "ring twice"}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []OrderNotification
	fails bool
}

func (n *recordingNotifier) NotifyAdmin(_ context.Context, notification OrderNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails {
		return fmt.Errorf("smtp unavailable")
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memoryHints struct {
	mu      sync.Mutex
	values  map[string]string
	deleted []string
}

func newMemoryHints() *memoryHints {
	return &memoryHints{values: make(map[string]string)}
}

func (h *memoryHints) Get(_ context.Context, ownerID string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[ownerID]
	return v, ok, nil
}

func (h *memoryHints) Set(_ context.Context, ownerID, cartID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[ownerID] = cartID
	return nil
}

func (h *memoryHints) Delete(_ context.Context, ownerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.values, ownerID)
	h.deleted = append(h.deleted, ownerID)
	return nil
}

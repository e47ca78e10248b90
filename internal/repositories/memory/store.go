// Package memory provides an in-process Registry used by tests and local development.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Store keeps every collection in memory. Units of work are serialised and rolled back on error.
type Store struct {
	mu    sync.Mutex
	state *state
	txKey *int
}

type state struct {
	carts    map[string]domain.Cart
	items    map[string]map[string]domain.CartItem
	orders   map[string]domain.Order
	byCart   map[string]string
	numbers  map[string]string
	products map[string]domain.Product
	counters map[string]int64
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		txKey: new(int),
	}
}

func newState() *state {
	return &state{
		carts:    make(map[string]domain.Cart),
		items:    make(map[string]map[string]domain.CartItem),
		orders:   make(map[string]domain.Order),
		byCart:   make(map[string]string),
		numbers:  make(map[string]string),
		products: make(map[string]domain.Product),
		counters: make(map[string]int64),
	}
}

func (st *state) clone() *state {
	out := &state{
		carts:    maps.Clone(st.carts),
		items:    make(map[string]map[string]domain.CartItem, len(st.items)),
		orders:   make(map[string]domain.Order, len(st.orders)),
		byCart:   maps.Clone(st.byCart),
		numbers:  maps.Clone(st.numbers),
		products: maps.Clone(st.products),
		counters: maps.Clone(st.counters),
	}
	for cartID, items := range st.items {
		out.items[cartID] = maps.Clone(items)
	}
	for id, order := range st.orders {
		out.orders[id] = cloneOrder(order)
	}
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	order.Lines = slices.Clone(order.Lines)
	if order.CancelledAt != nil {
		at := *order.CancelledAt
		order.CancelledAt = &at
	}
	return order
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the running unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snapshot := s.state.clone()
	txCtx := context.WithValue(ctx, s.txKey, true)
	txCtx, hooks := repositories.WithCommitHooks(txCtx)
	err := fn(txCtx)
	if err != nil {
		s.state = snapshot
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(s.txKey).(bool)
	return v
}

// do runs fn against the live state, taking the lock unless a unit of work already holds it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return repositories.NewError("memory", repositories.KindUnavailable, err)
	}
	if s.inTx(ctx) {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

// Ping implements repositories.Registry.
func (s *Store) Ping(context.Context) error { return nil }

// Carts implements repositories.Registry.
func (s *Store) Carts() repositories.CartRepository { return cartRepository{store: s} }

// CartItems implements repositories.Registry.
func (s *Store) CartItems() repositories.CartItemRepository { return itemRepository{store: s} }

// Orders implements repositories.Registry.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{store: s} }

// Products implements repositories.Registry.
func (s *Store) Products() repositories.ProductRepository { return productRepository{store: s} }

// Counters implements repositories.Registry.
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{store: s} }

// PutProduct upserts a catalog product. Used to seed fixtures and by tests simulating catalog edits.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
}

// PutCart stores a cart header as-is, bypassing the open-cart constraint. Used to seed anomalous state.
func (s *Store) PutCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Items = nil
	s.state.carts[cart.ID] = cart
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

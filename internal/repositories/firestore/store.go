// Package firestore implements the repository registry on Cloud Firestore.
//
// Layout:
//
//	carts/{cartID}                 cart header
//	carts/{cartID}/items/{product} cart line, unique per product
//	openCarts/{ownerID}            guard naming the owner's open cart
//	orders/{cartID}                order, unique per cart
//	products/{productID}           catalog product and stock
//	counters/{counterID}           sequence counters
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	cartsCollection     = "carts"
	openCartsCollection = "openCarts"
	ordersCollection    = "orders"
	productsCollection  = "products"
	countersCollection  = "counters"
)

// Store exposes the Firestore repositories behind repositories.Registry.
type Store struct {
	provider *pfirestore.Provider

	carts    *CartRepository
	items    *CartItemRepository
	orders   *OrderRepository
	products *ProductRepository
	counters *CounterRepository
}

var _ repositories.Registry = (*Store)(nil)

// NewStore wires every repository onto provider.
func NewStore(provider *pfirestore.Provider) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires provider")
	}
	return &Store{
		provider: provider,
		carts:    NewCartRepository(provider),
		items:    NewCartItemRepository(provider),
		orders:   NewOrderRepository(provider),
		products: NewProductRepository(provider),
		counters: NewCounterRepository(provider),
	}, nil
}

// RunInTx implements repositories.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.provider.RunInTx(ctx, fn)
}

// Close implements repositories.Registry.
func (s *Store) Close(ctx context.Context) error { return s.provider.Close(ctx) }

// Ping implements repositories.Registry.
func (s *Store) Ping(ctx context.Context) error { return s.provider.Ping(ctx) }

// Carts implements repositories.Registry.
func (s *Store) Carts() repositories.CartRepository { return s.carts }

// CartItems implements repositories.Registry.
func (s *Store) CartItems() repositories.CartItemRepository { return s.items }

// Orders implements repositories.Registry.
func (s *Store) Orders() repositories.OrderRepository { return s.orders }

// Products implements repositories.Registry.
func (s *Store) Products() repositories.ProductRepository { return s.products }

// Counters implements repositories.Registry.
func (s *Store) Counters() repositories.CounterRepository { return s.counters }

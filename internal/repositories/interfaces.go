package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Carts() CartRepository
	CartItems() CartItemRepository
	Orders() OrderRepository
	Products() ProductRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Nested calls join the outer transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository persists carts and enforces the one-open-cart-per-owner constraint.
type CartRepository interface {
	// Get returns the cart header without items.
	Get(ctx context.Context, cartID string) (domain.Cart, error)
	// ListOpenByOwner returns every open cart of the owner, newest first.
	ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Cart, error)
	// InsertOpen stores a new open cart and fails with a conflict when the owner already has one.
	InsertOpen(ctx context.Context, cart domain.Cart) error
	// Close marks the cart closed. Closing an already closed cart succeeds.
	Close(ctx context.Context, cartID string, closedAt time.Time) error
	// CloseDuplicates closes every open cart of the owner except keepID and binds the uniqueness guard to keepID.
	CloseDuplicates(ctx context.Context, ownerID, keepID string, closedAt time.Time) (int, error)
	// Touch bumps the UpdatedAt timestamp after item mutations.
	Touch(ctx context.Context, cartID string, at time.Time) error
	// ListOwnersWithDuplicateOpen reports owners holding more than one open cart.
	ListOwnersWithDuplicateOpen(ctx context.Context, limit int) ([]string, error)
}

// CartItemRepository persists cart lines. (cartID, productID) is unique.
type CartItemRepository interface {
	List(ctx context.Context, cartID string) ([]domain.CartItem, error)
	Get(ctx context.Context, cartID, itemID string) (domain.CartItem, error)
	FindByProduct(ctx context.Context, cartID, productID string) (domain.CartItem, error)
	// Insert fails with a conflict when the product is already present in the cart.
	Insert(ctx context.Context, item domain.CartItem) error
	UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int, at time.Time) error
	Delete(ctx context.Context, cartID, itemID string) error
	DeleteAll(ctx context.Context, cartID string) (int, error)
}

// OrderRepository persists orders. CartID is unique across orders.
type OrderRepository interface {
	// Insert fails with a conflict when an order already exists for the cart or the number is taken.
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	FindByCart(ctx context.Context, cartID string) (domain.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error)
	// UpdateStatus persists status and the restoration guard together.
	UpdateStatus(ctx context.Context, order domain.Order) error
	MarkAdminNotified(ctx context.Context, orderID string, at time.Time) error
}

// ProductRepository reads catalog products and writes stock levels on behalf of the inventory ledger.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	// GetMany returns the requested products keyed by id. Missing ids are reported as not found.
	GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// SaveStock writes stock and status for products previously read in the same unit of work.
	SaveStock(ctx context.Context, products []domain.Product) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

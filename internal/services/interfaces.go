package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart          = domain.Cart
	CartItem      = domain.CartItem
	CartStatus    = domain.CartStatus
	Product       = domain.Product
	ProductStatus = domain.ProductStatus
	Order         = domain.Order
	OrderLine     = domain.OrderLine
	OrderTotals   = domain.OrderTotals
	OrderStatus   = domain.OrderStatus
	DeliveryInfo  = domain.DeliveryInfo
	StockLine     = domain.StockLine
)

// CartService resolves the caller's single open cart and mutates its items.
type CartService interface {
	AcquireOpenCart(ctx context.Context, ownerID string) (Cart, error)
	GetCart(ctx context.Context, ownerID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, cmd ClearCartCommand) (CartView, error)
	ReconcileOwner(ctx context.Context, ownerID string) (ReconcileResult, error)
}

// OrderFinalizer converts an open cart into exactly one order.
type OrderFinalizer interface {
	FinalizeCart(ctx context.Context, cmd FinalizeCartCommand) (Order, error)
}

// OrderService owns the order status state machine and order reads.
type OrderService interface {
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	AdvanceOrderStatus(ctx context.Context, cmd AdvanceOrderStatusCommand) (Order, error)
}

// InventoryLedger moves product stock atomically with the enclosing unit of work.
type InventoryLedger interface {
	// Check reads every product referenced by lines and reports all shortages without writing.
	Check(ctx context.Context, lines []StockLine) (map[string]Product, error)
	Decrement(ctx context.Context, lines []StockLine) error
	Restore(ctx context.Context, lines []StockLine) error
}

// ProductReader serves catalog reads. Implementations may cache; stock decisions never use it.
type ProductReader interface {
	Get(ctx context.Context, productID string) (Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]Product, error)
}

// ProductCacheInvalidator drops cached product entries after their rows change.
type ProductCacheInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...string) error
}

// CartHintStore remembers the last cart acquired per owner. Hints are revalidated before use.
type CartHintStore interface {
	Get(ctx context.Context, ownerID string) (string, bool, error)
	Set(ctx context.Context, ownerID, cartID string) error
	Delete(ctx context.Context, ownerID string) error
}

// AdminNotifier informs staff about new orders. Delivery is at-least-once and best-effort.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, notification OrderNotification) error
}

// OrderNotification is the payload handed to AdminNotifier.
type OrderNotification struct {
	OrderID     string
	OrderNumber string
	OwnerID     string
	Lines       []OrderLine
	Totals      OrderTotals
	Currency    string
	Delivery    DeliveryInfo
	RequestedAt time.Time
}

// CartView is a cart with lines priced from live product data.
type CartView struct {
	Cart
	Lines  []PricedLine
	Totals OrderTotals
}

// PricedLine is a cart item joined with its product's current price.
type PricedLine struct {
	Item        CartItem
	ProductName string
	UnitPrice   int64
	LineTotal   int64
	Available   int
}

// AddCartItemCommand adds quantity of a product to the owner's open cart.
type AddCartItemCommand struct {
	OwnerID   string
	CartID    string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of an item. Zero removes it.
type UpdateCartItemCommand struct {
	OwnerID  string
	CartID   string
	ItemID   string
	Quantity int
}

// RemoveCartItemCommand deletes an item from the owner's open cart.
type RemoveCartItemCommand struct {
	OwnerID string
	CartID  string
	ItemID  string
}

// ClearCartCommand deletes every item from the owner's open cart.
type ClearCartCommand struct {
	OwnerID string
	CartID  string
}

// ReconcileResult reports what a duplicate-cart reconciliation changed.
type ReconcileResult struct {
	OwnerID   string
	KeptID    string
	ClosedIDs []string
}

// FinalizeCartCommand requests checkout of a cart.
type FinalizeCartCommand struct {
	OwnerID  string
	CartID   string
	Delivery DeliveryInfo
}

// GetOrderQuery reads an order visible to the caller.
type GetOrderQuery struct {
	OrderID string
	ActorID string
	Staff   bool
}

// CancelOrderCommand cancels a pending order and restores its stock.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Staff   bool
}

// AdvanceOrderStatusCommand moves an order along the fulfilment path.
type AdvanceOrderStatusCommand struct {
	OrderID string
	Target  OrderStatus
	ActorID string
	Staff   bool
}

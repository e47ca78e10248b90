package domain

import (
	"time"
)

// CartStatus enumerates the lifecycle states of a cart.
type CartStatus string

const (
	// CartStatusOpen marks the cart that currently accepts item mutations. At most one per owner.
	CartStatusOpen CartStatus = "open"
	// CartStatusClosed marks a cart that was finalized or superseded.
	CartStatusClosed CartStatus = "closed"
)

// Cart is the per-owner container of items awaiting checkout.
type Cart struct {
	ID        string
	OwnerID   string
	Status    CartStatus
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the cart still accepts item mutations.
func (c Cart) IsOpen() bool {
	return c.Status == CartStatusOpen
}

// CartItem references a product and quantity within a cart. (CartID, ProductID) is unique.
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt time.Time
}

// ProductStatus enumerates catalog availability states.
type ProductStatus string

const (
	// ProductStatusActive indicates the product can be sold.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive indicates the product was withdrawn from sale.
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusSoldOut indicates stock reached zero.
	ProductStatusSoldOut ProductStatus = "sold_out"
)

// Product is the catalog collaborator consulted for pricing and stock.
type Product struct {
	ID        string
	Name      string
	Price     int64
	Stock     int
	Status    ProductStatus
	UpdatedAt time.Time
}

// Sellable reports whether the product may currently be placed in a cart or order.
func (p Product) Sellable() bool {
	return p.Status == ProductStatusActive && p.Stock > 0
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state after checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates staff accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the order is being prepared.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusDispatched indicates the order left for delivery.
	OrderStatusDispatched OrderStatus = "dispatched"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal and only reachable from pending.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Valid reports whether the status is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusDispatched, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// DeliveryInfo captures where and how the order should be delivered.
type DeliveryInfo struct {
	Address string
	Notes   string
}

// OrderLine snapshots the product, price and quantity decremented at finalize.
type OrderLine struct {
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
	LineTotal   int64
}

// OrderTotals holds the amounts computed from live prices at finalize.
type OrderTotals struct {
	Subtotal    int64
	DeliveryFee int64
	Total       int64
}

// Order is the immutable result of finalizing a cart. Exactly one exists per cart.
type Order struct {
	ID            string
	CartID        string
	OwnerID       string
	Number        string
	Status        OrderStatus
	Delivery      DeliveryInfo
	Lines         []OrderLine
	Totals        OrderTotals
	Currency      string
	AdminNotified bool
	StockRestored bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// StockLine is a product quantity moved by the inventory ledger.
type StockLine struct {
	ProductID string
	Quantity  int
}

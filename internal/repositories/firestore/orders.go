package firestore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// orderDocument is keyed by cart id: Create rejects a second order for the same cart.
type orderDocument struct {
	ID            string              `firestore:"id"`
	OwnerID       string              `firestore:"ownerId"`
	Number        string              `firestore:"number"`
	Status        string              `firestore:"status"`
	Address       string              `firestore:"address"`
	Notes         string              `firestore:"notes,omitempty"`
	Lines         []orderLineDocument `firestore:"lines"`
	Subtotal      int64               `firestore:"subtotal"`
	DeliveryFee   int64               `firestore:"deliveryFee"`
	Total         int64               `firestore:"total"`
	Currency      string              `firestore:"currency"`
	AdminNotified bool                `firestore:"adminNotified"`
	StockRestored bool                `firestore:"stockRestored"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	CancelledAt   *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
	LineTotal   int64  `firestore:"lineTotal"`
}

// OrderRepository persists orders.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) *OrderRepository {
	return &OrderRepository{orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.orders.Create(ctx, order.CartID, encodeOrder(order))
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("id", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, repositories.NotFound("orders.get", "order %s not found", orderID)
	}
	return decodeOrder(docs[0]), nil
}

func (r *OrderRepository) FindByCart(ctx context.Context, cartID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, cartID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return orders, nil
}

// UpdateStatus writes without reading so it may follow stock writes in the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order domain.Order) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "stockRestored", Value: order.StockRestored},
		{Path: "updatedAt", Value: order.UpdatedAt},
	}
	if order.CancelledAt != nil {
		updates = append(updates, firestore.Update{Path: "cancelledAt", Value: *order.CancelledAt})
	}
	return r.orders.Update(ctx, order.CartID, updates)
}

func (r *OrderRepository) MarkAdminNotified(ctx context.Context, orderID string, at time.Time) error {
	order, err := r.Get(ctx, orderID)
	if err != nil {
		return err
	}
	return r.orders.Update(ctx, order.CartID, []firestore.Update{
		{Path: "adminNotified", Value: true},
		{Path: "updatedAt", Value: at},
	})
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument(line))
	}
	return orderDocument{
		ID:            order.ID,
		OwnerID:       order.OwnerID,
		Number:        order.Number,
		Status:        string(order.Status),
		Address:       order.Delivery.Address,
		Notes:         order.Delivery.Notes,
		Lines:         lines,
		Subtotal:      order.Totals.Subtotal,
		DeliveryFee:   order.Totals.DeliveryFee,
		Total:         order.Totals.Total,
		Currency:      order.Currency,
		AdminNotified: order.AdminNotified,
		StockRestored: order.StockRestored,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		CancelledAt:   order.CancelledAt,
	}
}

func decodeOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	lines := make([]domain.OrderLine, 0, len(data.Lines))
	for _, line := range data.Lines {
		lines = append(lines, domain.OrderLine(line))
	}
	order := domain.Order{
		ID:            data.ID,
		CartID:        doc.ID,
		OwnerID:       data.OwnerID,
		Number:        data.Number,
		Status:        domain.OrderStatus(data.Status),
		Delivery:      domain.DeliveryInfo{Address: data.Address, Notes: data.Notes},
		Lines:         lines,
		Totals:        domain.OrderTotals{Subtotal: data.Subtotal, DeliveryFee: data.DeliveryFee, Total: data.Total},
		Currency:      data.Currency,
		AdminNotified: data.AdminNotified,
		StockRestored: data.StockRestored,
		CreatedAt:     data.CreatedAt.UTC(),
		UpdatedAt:     data.UpdatedAt.UTC(),
	}
	if data.CancelledAt != nil {
		at := data.CancelledAt.UTC()
		order.CancelledAt = &at
	}
	return order
}

package memory

import (
	"context"
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type orderRepository struct {
	store *Store
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.byCart[order.CartID]; ok {
			return repositories.Conflict("orders.insert", "cart %s already has an order", order.CartID)
		}
		if _, ok := st.numbers[order.Number]; ok {
			return repositories.Conflict("orders.insert", "order number %s already used", order.Number)
		}
		if _, ok := st.orders[order.ID]; ok {
			return repositories.Conflict("orders.insert", "order %s already exists", order.ID)
		}
		st.orders[order.ID] = cloneOrder(order)
		st.byCart[order.CartID] = order.ID
		st.numbers[order.Number] = order.ID
		return nil
	})
}

func (r orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := r.store.do(ctx, func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return repositories.NotFound("orders.get", "order %s not found", orderID)
		}
		out = cloneOrder(order)
		return nil
	})
	return out, err
}

func (r orderRepository) FindByCart(ctx context.Context, cartID string) (domain.Order, error) {
	var out domain.Order
	err := r.store.do(ctx, func(st *state) error {
		id, ok := st.byCart[cartID]
		if !ok {
			return repositories.NotFound("orders.find_by_cart", "no order for cart %s", cartID)
		}
		out = cloneOrder(st.orders[id])
		return nil
	})
	return out, err
}

func (r orderRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	var out []domain.Order
	err := r.store.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if order.OwnerID == ownerID {
				out = append(out, cloneOrder(order))
			}
		}
		slices.SortFunc(out, func(a, b domain.Order) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		return nil
	})
	return out, err
}

func (r orderRepository) UpdateStatus(ctx context.Context, order domain.Order) error {
	return r.store.do(ctx, func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return repositories.NotFound("orders.update_status", "order %s not found", order.ID)
		}
		current.Status = order.Status
		current.StockRestored = order.StockRestored
		current.UpdatedAt = order.UpdatedAt
		current.CancelledAt = order.CancelledAt
		st.orders[order.ID] = cloneOrder(current)
		return nil
	})
}

func (r orderRepository) MarkAdminNotified(ctx context.Context, orderID string, at time.Time) error {
	return r.store.do(ctx, func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return repositories.NotFound("orders.mark_notified", "order %s not found", orderID)
		}
		order.AdminNotified = true
		order.UpdatedAt = at
		st.orders[orderID] = order
		return nil
	})
}

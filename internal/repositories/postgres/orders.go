package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type orderRepository struct {
	store *Store
}

const orderColumns = "id, cart_id, owner_id, number, status, address, notes, lines, subtotal, delivery_fee, total, currency, admin_notified, stock_restored, created_at, updated_at, cancelled_at"

type orderLineRecord struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"lineTotal"`
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		rawLines  []byte
		cancelled sql.NullTime
	)
	err := row.Scan(&order.ID, &order.CartID, &order.OwnerID, &order.Number, &status,
		&order.Delivery.Address, &order.Delivery.Notes, &rawLines,
		&order.Totals.Subtotal, &order.Totals.DeliveryFee, &order.Totals.Total, &order.Currency,
		&order.AdminNotified, &order.StockRestored, &order.CreatedAt, &order.UpdatedAt, &cancelled)
	if err != nil {
		return domain.Order{}, err
	}
	var lines []orderLineRecord
	if err := json.Unmarshal(rawLines, &lines); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s lines: %w", order.ID, err)
	}
	order.Lines = make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine(line))
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if cancelled.Valid {
		at := cancelled.Time.UTC()
		order.CancelledAt = &at
	}
	return order, nil
}

// Insert relies on the unique cart_id and number columns.
func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	lines := make([]orderLineRecord, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineRecord(line))
	}
	rawLines, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	_, err = r.store.q(ctx).ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)",
		order.ID, order.CartID, order.OwnerID, order.Number, string(order.Status),
		order.Delivery.Address, order.Delivery.Notes, rawLines,
		order.Totals.Subtotal, order.Totals.DeliveryFee, order.Totals.Total, order.Currency,
		order.AdminNotified, order.StockRestored, order.CreatedAt, order.UpdatedAt, nullTime(order.CancelledAt))
	return mapError("orders.insert", err)
}

// Get locks the order row inside a transaction so concurrent cancels serialise.
func (r orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return r.one(ctx, "orders.get", "id = $1"+lockClause(ctx), orderID)
}

func (r orderRepository) FindByCart(ctx context.Context, cartID string) (domain.Order, error) {
	return r.one(ctx, "orders.find_by_cart", "cart_id = $1", cartID)
}

func (r orderRepository) one(ctx context.Context, op, predicate string, arg string) (domain.Order, error) {
	row := r.store.q(ctx).QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE "+predicate, arg)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, repositories.NotFound(op, "order %s not found", arg)
	}
	return order, mapError(op, err)
}

func (r orderRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, mapError("orders.list", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, mapError("orders.list", err)
		}
		orders = append(orders, order)
	}
	return orders, mapError("orders.list", rows.Err())
}

func (r orderRepository) UpdateStatus(ctx context.Context, order domain.Order) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"UPDATE orders SET status = $2, stock_restored = $3, cancelled_at = $4, updated_at = $5 WHERE id = $1",
		order.ID, string(order.Status), order.StockRestored, nullTime(order.CancelledAt), order.UpdatedAt)
	return affectedOne("orders.update_status", res, err, order.ID)
}

func (r orderRepository) MarkAdminNotified(ctx context.Context, orderID string, at time.Time) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"UPDATE orders SET admin_notified = true, updated_at = $2 WHERE id = $1", orderID, at)
	return affectedOne("orders.mark_notified", res, err, orderID)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

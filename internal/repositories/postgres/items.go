package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type itemRepository struct {
	store *Store
}

const itemColumns = "id, cart_id, product_id, quantity, added_at, updated_at"

func scanItem(row interface{ Scan(...any) error }) (domain.CartItem, error) {
	var item domain.CartItem
	if err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.AddedAt, &item.UpdatedAt); err != nil {
		return domain.CartItem{}, err
	}
	item.AddedAt = item.AddedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func (r itemRepository) List(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		"SELECT "+itemColumns+" FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id", cartID)
	if err != nil {
		return nil, mapError("items.list", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, mapError("items.list", err)
		}
		items = append(items, item)
	}
	return items, mapError("items.list", rows.Err())
}

func (r itemRepository) Get(ctx context.Context, cartID, itemID string) (domain.CartItem, error) {
	return r.one(ctx, "items.get", "id = $2", cartID, itemID)
}

func (r itemRepository) FindByProduct(ctx context.Context, cartID, productID string) (domain.CartItem, error) {
	return r.one(ctx, "items.find_by_product", "product_id = $2", cartID, productID)
}

func (r itemRepository) one(ctx context.Context, op, predicate, cartID, key string) (domain.CartItem, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM cart_items WHERE cart_id = $1 AND "+predicate, cartID, key)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartItem{}, repositories.NotFound(op, "item %s not found in cart %s", key, cartID)
	}
	return item, mapError(op, err)
}

// Insert relies on UNIQUE (cart_id, product_id).
func (r itemRepository) Insert(ctx context.Context, item domain.CartItem) error {
	_, err := r.store.q(ctx).ExecContext(ctx,
		"INSERT INTO cart_items ("+itemColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		item.ID, item.CartID, item.ProductID, item.Quantity, item.AddedAt, item.UpdatedAt)
	return mapError("items.insert", err)
}

func (r itemRepository) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int, at time.Time) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"UPDATE cart_items SET quantity = $3, updated_at = $4 WHERE cart_id = $1 AND id = $2",
		cartID, itemID, quantity, at)
	return affectedOne("items.update", res, err, itemID)
}

func (r itemRepository) Delete(ctx context.Context, cartID, itemID string) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND id = $2", cartID, itemID)
	return affectedOne("items.delete", res, err, itemID)
}

func (r itemRepository) DeleteAll(ctx context.Context, cartID string) (int, error) {
	res, err := r.store.q(ctx).ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	if err != nil {
		return 0, mapError("items.delete_all", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func affectedOne(op string, res sql.Result, err error, id string) error {
	if err != nil {
		return mapError(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.NotFound(op, "%s not found", id)
	}
	return nil
}

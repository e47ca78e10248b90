package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type cartRepository struct {
	store *Store
}

const cartColumns = "id, owner_id, status, created_at, updated_at"

func scanCart(row interface{ Scan(...any) error }) (domain.Cart, error) {
	var cart domain.Cart
	var status string
	if err := row.Scan(&cart.ID, &cart.OwnerID, &status, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		return domain.Cart{}, err
	}
	cart.Status = domain.CartStatus(status)
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()
	return cart, nil
}

// Get locks the cart row inside a transaction so concurrent finalizes of one cart serialise.
func (r cartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		"SELECT "+cartColumns+" FROM carts WHERE id = $1"+lockClause(ctx), cartID)
	cart, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, repositories.NotFound("carts.get", "cart %s not found", cartID)
	}
	return cart, mapError("carts.get", err)
}

func (r cartRepository) ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Cart, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		"SELECT "+cartColumns+" FROM carts WHERE owner_id = $1 AND status = 'open' ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, mapError("carts.list_open", err)
	}
	defer rows.Close()

	var carts []domain.Cart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, mapError("carts.list_open", err)
		}
		carts = append(carts, cart)
	}
	return carts, mapError("carts.list_open", rows.Err())
}

// InsertOpen relies on the partial unique index carts_one_open_per_owner.
func (r cartRepository) InsertOpen(ctx context.Context, cart domain.Cart) error {
	_, err := r.store.q(ctx).ExecContext(ctx,
		"INSERT INTO carts ("+cartColumns+") VALUES ($1, $2, 'open', $3, $4)",
		cart.ID, cart.OwnerID, cart.CreatedAt, cart.UpdatedAt)
	return mapError("carts.insert", err)
}

func (r cartRepository) Close(ctx context.Context, cartID string, closedAt time.Time) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"UPDATE carts SET status = 'closed', updated_at = $2 WHERE id = $1 AND status = 'open'", cartID, closedAt)
	if err != nil {
		return mapError("carts.close", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	err = r.store.q(ctx).QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)", cartID).Scan(&exists)
	if err != nil {
		return mapError("carts.close", err)
	}
	if !exists {
		return repositories.NotFound("carts.close", "cart %s not found", cartID)
	}
	return nil
}

func (r cartRepository) CloseDuplicates(ctx context.Context, ownerID, keepID string, closedAt time.Time) (int, error) {
	res, err := r.store.q(ctx).ExecContext(ctx,
		"UPDATE carts SET status = 'closed', updated_at = $3 WHERE owner_id = $1 AND status = 'open' AND id <> $2",
		ownerID, keepID, closedAt)
	if err != nil {
		return 0, mapError("carts.close_duplicates", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r cartRepository) Touch(ctx context.Context, cartID string, at time.Time) error {
	res, err := r.store.q(ctx).ExecContext(ctx, "UPDATE carts SET updated_at = $2 WHERE id = $1", cartID, at)
	if err != nil {
		return mapError("carts.touch", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.NotFound("carts.touch", "cart %s not found", cartID)
	}
	return nil
}

func (r cartRepository) ListOwnersWithDuplicateOpen(ctx context.Context, limit int) ([]string, error) {
	query := "SELECT owner_id FROM carts WHERE status = 'open' GROUP BY owner_id HAVING COUNT(*) > 1 ORDER BY owner_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("carts.duplicates", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, mapError("carts.duplicates", err)
		}
		owners = append(owners, owner)
	}
	return owners, mapError("carts.duplicates", rows.Err())
}

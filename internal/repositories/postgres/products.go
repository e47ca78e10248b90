package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type productRepository struct {
	store *Store
}

const productColumns = "id, name, price, stock, status, updated_at"

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var product domain.Product
	var status string
	if err := row.Scan(&product.ID, &product.Name, &product.Price, &product.Stock, &status, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	product.Status = domain.ProductStatus(status)
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

func (r productRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1"+lockClause(ctx), productID)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, repositories.NotFound("products.get", "product %s not found", productID)
	}
	return product, mapError("products.get", err)
}

// GetMany locks rows in id order inside a transaction; the stock check and the
// decrement that follows see the same values.
func (r productRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}
	rows, err := r.store.q(ctx).QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id IN ("+placeholders(1, len(args))+") ORDER BY id"+lockClause(ctx), args...)
	if err != nil {
		return nil, mapError("products.get_many", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, mapError("products.get_many", err)
		}
		out[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("products.get_many", err)
	}
	for _, id := range productIDs {
		if _, ok := out[id]; !ok {
			return nil, repositories.NotFound("products.get_many", "product %s not found", id)
		}
	}
	return out, nil
}

func (r productRepository) SaveStock(ctx context.Context, products []domain.Product) error {
	for _, product := range products {
		res, err := r.store.q(ctx).ExecContext(ctx,
			"UPDATE products SET stock = $2, status = $3, updated_at = $4 WHERE id = $1",
			product.ID, product.Stock, string(product.Status), product.UpdatedAt)
		if err := affectedOne("products.save_stock", res, err, product.ID); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes a full product row. It seeds catalogs in development.
func (r productRepository) Upsert(ctx context.Context, product domain.Product) error {
	_, err := r.store.q(ctx).ExecContext(ctx,
		"INSERT INTO products ("+productColumns+") VALUES ($1, $2, $3, $4, $5, $6) "+
			"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at",
		product.ID, product.Name, product.Price, product.Stock, string(product.Status), product.UpdatedAt)
	return mapError("products.upsert", err)
}

package memory

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type productRepository struct {
	store *Store
}

func (r productRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.store.do(ctx, func(st *state) error {
		product, ok := st.products[productID]
		if !ok {
			return repositories.NotFound("products.get", "product %s not found", productID)
		}
		out = product
		return nil
	})
	return out, err
}

func (r productRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	err := r.store.do(ctx, func(st *state) error {
		for _, id := range productIDs {
			product, ok := st.products[id]
			if !ok {
				return repositories.NotFound("products.get_many", "product %s not found", id)
			}
			out[id] = product
		}
		return nil
	})
	return out, err
}

func (r productRepository) SaveStock(ctx context.Context, products []domain.Product) error {
	return r.store.do(ctx, func(st *state) error {
		for _, product := range products {
			current, ok := st.products[product.ID]
			if !ok {
				return repositories.NotFound("products.save_stock", "product %s not found", product.ID)
			}
			current.Stock = product.Stock
			current.Status = product.Status
			current.UpdatedAt = product.UpdatedAt
			st.products[product.ID] = current
		}
		return nil
	})
}

type counterRepository struct {
	store *Store
}

func (r counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	var out int64
	err := r.store.do(ctx, func(st *state) error {
		st.counters[counterID] += step
		out = st.counters[counterID]
		return nil
	})
	return out, err
}

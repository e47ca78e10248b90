package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type itemRepository struct {
	store *Store
}

func (r itemRepository) List(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	var out []domain.CartItem
	err := r.store.do(ctx, func(st *state) error {
		for _, item := range st.items[cartID] {
			out = append(out, item)
		}
		slices.SortFunc(out, func(a, b domain.CartItem) int {
			if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		return nil
	})
	return out, err
}

func (r itemRepository) Get(ctx context.Context, cartID, itemID string) (domain.CartItem, error) {
	var out domain.CartItem
	err := r.store.do(ctx, func(st *state) error {
		item, ok := st.items[cartID][itemID]
		if !ok {
			return repositories.NotFound("cart_items.get", "item %s not found in cart %s", itemID, cartID)
		}
		out = item
		return nil
	})
	return out, err
}

func (r itemRepository) FindByProduct(ctx context.Context, cartID, productID string) (domain.CartItem, error) {
	var out domain.CartItem
	err := r.store.do(ctx, func(st *state) error {
		for _, item := range st.items[cartID] {
			if item.ProductID == productID {
				out = item
				return nil
			}
		}
		return repositories.NotFound("cart_items.find", "product %s not in cart %s", productID, cartID)
	})
	return out, err
}

func (r itemRepository) Insert(ctx context.Context, item domain.CartItem) error {
	return r.store.do(ctx, func(st *state) error {
		items := st.items[item.CartID]
		if items == nil {
			items = make(map[string]domain.CartItem)
			st.items[item.CartID] = items
		}
		for _, existing := range items {
			if existing.ProductID == item.ProductID {
				return repositories.Conflict("cart_items.insert", "product %s already in cart %s", item.ProductID, item.CartID)
			}
		}
		if _, ok := items[item.ID]; ok {
			return repositories.Conflict("cart_items.insert", "item %s already exists", item.ID)
		}
		items[item.ID] = item
		return nil
	})
}

func (r itemRepository) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int, at time.Time) error {
	return r.store.do(ctx, func(st *state) error {
		item, ok := st.items[cartID][itemID]
		if !ok {
			return repositories.NotFound("cart_items.update", "item %s not found in cart %s", itemID, cartID)
		}
		item.Quantity = quantity
		item.UpdatedAt = at
		st.items[cartID][itemID] = item
		return nil
	})
}

func (r itemRepository) Delete(ctx context.Context, cartID, itemID string) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.items[cartID][itemID]; !ok {
			return repositories.NotFound("cart_items.delete", "item %s not found in cart %s", itemID, cartID)
		}
		delete(st.items[cartID], itemID)
		return nil
	})
}

func (r itemRepository) DeleteAll(ctx context.Context, cartID string) (int, error) {
	removed := 0
	err := r.store.do(ctx, func(st *state) error {
		removed = len(st.items[cartID])
		delete(st.items, cartID)
		return nil
	})
	return removed, err
}

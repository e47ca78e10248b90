package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type cartRepository struct {
	store *Store
}

func (r cartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	var out domain.Cart
	err := r.store.do(ctx, func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return repositories.NotFound("carts.get", "cart %s not found", cartID)
		}
		out = cart
		return nil
	})
	return out, err
}

func (r cartRepository) ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Cart, error) {
	var out []domain.Cart
	err := r.store.do(ctx, func(st *state) error {
		out = openCarts(st, ownerID)
		return nil
	})
	return out, err
}

func openCarts(st *state, ownerID string) []domain.Cart {
	var out []domain.Cart
	for _, cart := range st.carts {
		if cart.OwnerID == ownerID && cart.Status == domain.CartStatusOpen {
			out = append(out, cart)
		}
	}
	slices.SortFunc(out, func(a, b domain.Cart) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (r cartRepository) InsertOpen(ctx context.Context, cart domain.Cart) error {
	return r.store.do(ctx, func(st *state) error {
		if _, exists := st.carts[cart.ID]; exists {
			return repositories.Conflict("carts.insert", "cart %s already exists", cart.ID)
		}
		if len(openCarts(st, cart.OwnerID)) > 0 {
			return repositories.Conflict("carts.insert", "owner %s already has an open cart", cart.OwnerID)
		}
		cart.Items = nil
		cart.Status = domain.CartStatusOpen
		st.carts[cart.ID] = cart
		return nil
	})
}

func (r cartRepository) Close(ctx context.Context, cartID string, closedAt time.Time) error {
	return r.store.do(ctx, func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return repositories.NotFound("carts.close", "cart %s not found", cartID)
		}
		if cart.Status == domain.CartStatusClosed {
			return nil
		}
		cart.Status = domain.CartStatusClosed
		cart.UpdatedAt = closedAt
		st.carts[cartID] = cart
		return nil
	})
}

func (r cartRepository) CloseDuplicates(ctx context.Context, ownerID, keepID string, closedAt time.Time) (int, error) {
	closed := 0
	err := r.store.do(ctx, func(st *state) error {
		for _, cart := range openCarts(st, ownerID) {
			if cart.ID == keepID {
				continue
			}
			cart.Status = domain.CartStatusClosed
			cart.UpdatedAt = closedAt
			st.carts[cart.ID] = cart
			closed++
		}
		return nil
	})
	return closed, err
}

func (r cartRepository) Touch(ctx context.Context, cartID string, at time.Time) error {
	return r.store.do(ctx, func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return repositories.NotFound("carts.touch", "cart %s not found", cartID)
		}
		cart.UpdatedAt = at
		st.carts[cartID] = cart
		return nil
	})
}

func (r cartRepository) ListOwnersWithDuplicateOpen(ctx context.Context, limit int) ([]string, error) {
	var owners []string
	err := r.store.do(ctx, func(st *state) error {
		counts := make(map[string]int)
		for _, cart := range st.carts {
			if cart.Status == domain.CartStatusOpen {
				counts[cart.OwnerID]++
			}
		}
		for owner, n := range counts {
			if n > 1 {
				owners = append(owners, owner)
			}
		}
		slices.Sort(owners)
		if limit > 0 && len(owners) > limit {
			owners = owners[:limit]
		}
		return nil
	})
	return owners, err
}

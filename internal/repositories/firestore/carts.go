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

type cartDocument struct {
	OwnerID   string    `firestore:"ownerId"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// openCartDocument guards the one-open-cart-per-owner rule. Its id is the owner id.
type openCartDocument struct {
	CartID    string    `firestore:"cartId"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CartRepository persists cart headers and the open-cart guard.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.Collection[cartDocument]
	guards   *pfirestore.Collection[openCartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) *CartRepository {
	return &CartRepository{
		provider: provider,
		carts:    pfirestore.NewCollection[cartDocument](provider, cartsCollection),
		guards:   pfirestore.NewCollection[openCartDocument](provider, openCartsCollection),
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// Get returns the cart header. Inside a transaction the owner's guard is read
// alongside so a later Close can release it without a read after writes.
func (r *CartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.carts.Get(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := decodeCart(doc)
	if pfirestore.InTx(ctx) {
		if _, err := r.guards.Get(ctx, cart.OwnerID); err != nil && !repositories.IsNotFound(err) {
			return domain.Cart{}, err
		}
	}
	return cart, nil
}

func (r *CartRepository) ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Cart, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID).Where("status", "==", string(domain.CartStatusOpen))
	})
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		carts = append(carts, decodeCart(doc))
	}
	slices.SortFunc(carts, func(a, b domain.Cart) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return carts, nil
}

// InsertOpen creates the cart and claims the owner's guard. A guard naming a
// cart that is no longer open is taken over.
func (r *CartRepository) InsertOpen(ctx context.Context, cart domain.Cart) error {
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		guard, err := r.guards.Get(ctx, cart.OwnerID)
		switch {
		case err == nil:
			held, err := r.carts.Get(ctx, guard.Data.CartID)
			if err == nil && held.Data.Status == string(domain.CartStatusOpen) {
				return repositories.Conflict("carts.insert", "owner %s already has an open cart", cart.OwnerID)
			}
			if err != nil && !repositories.IsNotFound(err) {
				return err
			}
		case !repositories.IsNotFound(err):
			return err
		}

		doc := cartDocument{
			OwnerID:   cart.OwnerID,
			Status:    string(domain.CartStatusOpen),
			CreatedAt: cart.CreatedAt,
			UpdatedAt: cart.UpdatedAt,
		}
		if err := r.carts.Create(ctx, cart.ID, doc); err != nil {
			return err
		}
		return r.guards.Set(ctx, cart.OwnerID, openCartDocument{CartID: cart.ID, UpdatedAt: cart.UpdatedAt})
	})
}

func (r *CartRepository) Close(ctx context.Context, cartID string, closedAt time.Time) error {
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := r.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if !cart.IsOpen() {
			return nil
		}
		guard, err := r.guards.Get(ctx, cart.OwnerID)
		if err != nil && !repositories.IsNotFound(err) {
			return err
		}
		holdsGuard := err == nil && guard.Data.CartID == cartID
		if err := r.carts.Update(ctx, cartID, []firestore.Update{
			{Path: "status", Value: string(domain.CartStatusClosed)},
			{Path: "updatedAt", Value: closedAt},
		}); err != nil {
			return err
		}
		if holdsGuard {
			return r.guards.Delete(ctx, cart.OwnerID)
		}
		return nil
	})
}

func (r *CartRepository) CloseDuplicates(ctx context.Context, ownerID, keepID string, closedAt time.Time) (int, error) {
	closed := 0
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		closed = 0
		carts, err := r.ListOpenByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		for _, cart := range carts {
			if cart.ID == keepID {
				continue
			}
			if err := r.carts.Update(ctx, cart.ID, []firestore.Update{
				{Path: "status", Value: string(domain.CartStatusClosed)},
				{Path: "updatedAt", Value: closedAt},
			}); err != nil {
				return err
			}
			closed++
		}
		return r.guards.Set(ctx, ownerID, openCartDocument{CartID: keepID, UpdatedAt: closedAt})
	})
	return closed, err
}

func (r *CartRepository) Touch(ctx context.Context, cartID string, at time.Time) error {
	return r.carts.Update(ctx, cartID, []firestore.Update{{Path: "updatedAt", Value: at}})
}

// ListOwnersWithDuplicateOpen scans open carts. It backs the offline repair
// command, not request paths.
func (r *CartRepository) ListOwnersWithDuplicateOpen(ctx context.Context, limit int) ([]string, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.CartStatusOpen)).Select("ownerId")
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, doc := range docs {
		counts[doc.Data.OwnerID]++
	}
	var owners []string
	for owner, n := range counts {
		if n > 1 {
			owners = append(owners, owner)
		}
	}
	slices.Sort(owners)
	if limit > 0 && len(owners) > limit {
		owners = owners[:limit]
	}
	return owners, nil
}

func decodeCart(doc pfirestore.Document[cartDocument]) domain.Cart {
	return domain.Cart{
		ID:        doc.ID,
		OwnerID:   doc.Data.OwnerID,
		Status:    domain.CartStatus(doc.Data.Status),
		CreatedAt: doc.Data.CreatedAt.UTC(),
		UpdatedAt: doc.Data.UpdatedAt.UTC(),
	}
}

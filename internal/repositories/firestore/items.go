package firestore

import (
	"context"
	"path"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// itemDocument is keyed by product id so the per-cart uniqueness is enforced by Create.
type itemDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CartItemRepository persists cart lines under carts/{cartID}/items.
type CartItemRepository struct {
	provider *pfirestore.Provider
}

// NewCartItemRepository constructs a Firestore-backed cart item repository.
func NewCartItemRepository(provider *pfirestore.Provider) *CartItemRepository {
	return &CartItemRepository{provider: provider}
}

var _ repositories.CartItemRepository = (*CartItemRepository)(nil)

func (r *CartItemRepository) items(cartID string) *pfirestore.Collection[itemDocument] {
	return pfirestore.NewCollection[itemDocument](r.provider, path.Join(cartsCollection, cartID, "items"))
}

func (r *CartItemRepository) List(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	docs, err := r.items(cartID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("addedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeItem(cartID, doc.Data))
	}
	return out, nil
}

// Get looks an item up by its id.
func (r *CartItemRepository) Get(ctx context.Context, cartID, itemID string) (domain.CartItem, error) {
	docs, err := r.items(cartID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("id", "==", itemID).Limit(1)
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	if len(docs) == 0 {
		return domain.CartItem{}, repositories.NotFound("items.get", "item %s not found in cart %s", itemID, cartID)
	}
	return decodeItem(cartID, docs[0].Data), nil
}

func (r *CartItemRepository) FindByProduct(ctx context.Context, cartID, productID string) (domain.CartItem, error) {
	doc, err := r.items(cartID).Get(ctx, productID)
	if err != nil {
		return domain.CartItem{}, err
	}
	return decodeItem(cartID, doc.Data), nil
}

func (r *CartItemRepository) Insert(ctx context.Context, item domain.CartItem) error {
	return r.items(item.CartID).Create(ctx, item.ProductID, itemDocument{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt,
		UpdatedAt: item.UpdatedAt,
	})
}

func (r *CartItemRepository) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int, at time.Time) error {
	item, err := r.Get(ctx, cartID, itemID)
	if err != nil {
		return err
	}
	return r.items(cartID).Update(ctx, item.ProductID, []firestore.Update{
		{Path: "quantity", Value: quantity},
		{Path: "updatedAt", Value: at},
	})
}

func (r *CartItemRepository) Delete(ctx context.Context, cartID, itemID string) error {
	item, err := r.Get(ctx, cartID, itemID)
	if err != nil {
		return err
	}
	return r.items(cartID).Delete(ctx, item.ProductID)
}

func (r *CartItemRepository) DeleteAll(ctx context.Context, cartID string) (int, error) {
	removed := 0
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		items, err := r.List(ctx, cartID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := r.items(cartID).Delete(ctx, item.ProductID); err != nil {
				return err
			}
		}
		removed = len(items)
		return nil
	})
	return removed, err
}

func decodeItem(cartID string, doc itemDocument) domain.CartItem {
	return domain.CartItem{
		ID:        doc.ID,
		CartID:    cartID,
		ProductID: doc.ProductID,
		Quantity:  doc.Quantity,
		AddedAt:   doc.AddedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

type productDocument struct {
	Name      string    `firestore:"name"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	Status    string    `firestore:"status"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ProductRepository reads catalog products and writes stock.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) *ProductRepository {
	return &ProductRepository{products: pfirestore.NewCollection[productDocument](provider, productsCollection)}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc), nil
}

func (r *ProductRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	docs, err := r.products.GetMany(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(docs))
	for _, id := range productIDs {
		doc, ok := docs[id]
		if !ok {
			return nil, repositories.NotFound("products.get_many", "product %s not found", id)
		}
		out[id] = decodeProduct(doc)
	}
	return out, nil
}

// SaveStock updates only stock fields; catalog edits stay with the catalog owner.
func (r *ProductRepository) SaveStock(ctx context.Context, products []domain.Product) error {
	for _, product := range products {
		if err := r.products.Update(ctx, product.ID, []firestore.Update{
			{Path: "stock", Value: product.Stock},
			{Path: "status", Value: string(product.Status)},
			{Path: "updatedAt", Value: product.UpdatedAt},
		}); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts a full product document. It seeds catalogs in development and tests.
func (r *ProductRepository) Put(ctx context.Context, product domain.Product) error {
	return r.products.Set(ctx, product.ID, productDocument{
		Name:      product.Name,
		Price:     product.Price,
		Stock:     product.Stock,
		Status:    string(product.Status),
		UpdatedAt: product.UpdatedAt,
	})
}

func decodeProduct(doc pfirestore.Document[productDocument]) domain.Product {
	return domain.Product{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		Price:     doc.Data.Price,
		Stock:     doc.Data.Stock,
		Status:    domain.ProductStatus(doc.Data.Status),
		UpdatedAt: doc.Data.UpdatedAt.UTC(),
	}
}

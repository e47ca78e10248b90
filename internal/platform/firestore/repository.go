package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/storefront/internal/repositories"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed, transaction-aware access to one collection path.
// Every read and write joins the transaction carried by ctx when present.
type Collection[T any] struct {
	provider *Provider
	path     string
}

// NewCollection binds a typed helper to a collection path such as
// "carts" or "carts/{id}/items".
func NewCollection[T any](provider *Provider, path string) *Collection[T] {
	return &Collection[T]{provider: provider, path: strings.Trim(path, "/")}
}

// Ref returns the document reference for id.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, repositories.NewError(c.op("ref"), repositories.KindUnknown, errors.New("document id is required"))
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get fetches and decodes the document. Missing documents yield a not-found repository error.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	if !snap.Exists() {
		return Document[T]{}, repositories.NotFound(c.op("get"), "%s/%s not found", c.path, id)
	}
	return decode[T](snap)
}

// GetMany fetches ids in one round trip. Missing ids are absent from the result.
func (c *Collection[T]) GetMany(ctx context.Context, ids []string) (map[string]Document[T], error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := c.Ref(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := getDocs(ctx, client, refs)
	if err != nil {
		return nil, WrapError(c.op("get_many"), err)
	}
	out := make(map[string]Document[T], len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	return out, nil
}

// Query executes a collection query and returns the decoded documents.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, WrapError(c.op("query"), err)
	}
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Create stores value under id and fails with a conflict when the document exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op("create"), createDoc(ctx, ref, value))
}

// Set upserts value under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op("set"), setDoc(ctx, ref, value))
}

// Update applies partial updates. Missing documents yield a not-found error.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op("update"), updateDoc(ctx, ref, updates))
}

// Delete removes the document. Deleting a missing document succeeds.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op("delete"), deleteDoc(ctx, ref))
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if c.path == "" {
		return nil, errors.New("firestore: collection path is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.path), nil
}

func (c *Collection[T]) op(action string) string {
	name := c.path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return fmt.Sprintf("%s.%s", name, action)
}

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var target T
	if err := snap.DataTo(&target); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: target, UpdateTime: snap.UpdateTime}, nil
}

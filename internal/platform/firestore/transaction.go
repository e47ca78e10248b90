package firestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// txState is the per-attempt transaction handle. Firestore rejects reads
// issued after the first write, so snapshots read earlier in the attempt are
// cached by document path and served to later lookups.
type txState struct {
	tx *firestore.Transaction

	mu    sync.Mutex
	snaps map[string]*firestore.DocumentSnapshot
}

type txContextKey struct{}

func txFrom(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txContextKey{}).(*txState)
	return state, ok && state != nil
}

// InTx reports whether ctx carries a running transaction.
func InTx(ctx context.Context) bool {
	_, ok := txFrom(ctx)
	return ok
}

func (s *txState) cached(path string) (*firestore.DocumentSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[path]
	return snap, ok
}

func (s *txState) remember(snaps ...*firestore.DocumentSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		if snap != nil && snap.Ref != nil {
			s.snaps[snap.Ref.Path] = snap
		}
	}
}

func (s *txState) forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, path)
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the running
// transaction; commit hooks run once the outermost attempt commits.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	if InTx(ctx) {
		return fn(ctx)
	}

	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	txnCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > defaultTxTimeout {
		var cancel context.CancelFunc
		txnCtx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	var hooks *repositories.CommitHooks
	err = client.RunTransaction(txnCtx, func(attemptCtx context.Context, tx *firestore.Transaction) error {
		state := &txState{tx: tx, snaps: make(map[string]*firestore.DocumentSnapshot)}
		attemptCtx = context.WithValue(attemptCtx, txContextKey{}, state)
		attemptCtx, hooks = repositories.WithCommitHooks(attemptCtx)
		return fn(attemptCtx)
	}, firestore.MaxAttempts(p.txAttempts))
	if err != nil {
		return WrapError("transaction", err)
	}
	hooks.Run(ctx)
	return nil
}

// getDoc reads ref through the running transaction when present. The returned
// snapshot reports Exists() false for missing documents.
func getDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if state, ok := txFrom(ctx); ok {
		if snap, hit := state.cached(ref.Path); hit {
			return snap, nil
		}
		snaps, err := state.tx.GetAll([]*firestore.DocumentRef{ref})
		if err != nil {
			return nil, err
		}
		state.remember(snaps...)
		return snaps[0], nil
	}
	snap, err := ref.Get(ctx)
	if err != nil && !(status.Code(err) == codes.NotFound && snap != nil) {
		return nil, err
	}
	return snap, nil
}

// getDocs reads refs in one round trip, serving cached snapshots inside a transaction.
func getDocs(ctx context.Context, client *firestore.Client, refs []*firestore.DocumentRef) ([]*firestore.DocumentSnapshot, error) {
	state, ok := txFrom(ctx)
	if !ok {
		return client.GetAll(ctx, refs)
	}

	out := make([]*firestore.DocumentSnapshot, len(refs))
	var missing []*firestore.DocumentRef
	var slots []int
	for i, ref := range refs {
		if snap, hit := state.cached(ref.Path); hit {
			out[i] = snap
			continue
		}
		missing = append(missing, ref)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	snaps, err := state.tx.GetAll(missing)
	if err != nil {
		return nil, err
	}
	state.remember(snaps...)
	for i, snap := range snaps {
		out[slots[i]] = snap
	}
	return out, nil
}

func queryDocs(ctx context.Context, query firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	var iter *firestore.DocumentIterator
	state, ok := txFrom(ctx)
	if ok {
		iter = state.tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	snaps, err := iter.GetAll()
	if err != nil {
		return nil, err
	}
	if ok {
		state.remember(snaps...)
	}
	return snaps, nil
}

func createDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if state, ok := txFrom(ctx); ok {
		state.forget(ref.Path)
		return state.tx.Create(ref, data)
	}
	_, err := ref.Create(ctx, data)
	return err
}

func setDoc(ctx context.Context, ref *firestore.DocumentRef, data any, opts ...firestore.SetOption) error {
	if state, ok := txFrom(ctx); ok {
		state.forget(ref.Path)
		return state.tx.Set(ref, data, opts...)
	}
	_, err := ref.Set(ctx, data, opts...)
	return err
}

func updateDoc(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if state, ok := txFrom(ctx); ok {
		state.forget(ref.Path)
		return state.tx.Update(ref, updates)
	}
	_, err := ref.Update(ctx, updates)
	return err
}

func deleteDoc(ctx context.Context, ref *firestore.DocumentRef) error {
	if state, ok := txFrom(ctx); ok {
		state.forget(ref.Path)
		return state.tx.Delete(ref)
	}
	_, err := ref.Delete(ctx)
	return err
}

package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out sequence values inside Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) *CounterRepository {
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection),
	}
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// Next increments counterID by step, creating it on first use. It joins the
// caller's transaction so a rolled back finalize does not consume a value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewError("counters.next", repositories.KindUnknown, fmt.Errorf("counter id is required"))
	}
	if step <= 0 {
		step = 1
	}

	var next int64
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.counters.Get(ctx, id)
		switch {
		case err == nil:
			next = doc.Data.CurrentValue + step
		case repositories.IsNotFound(err):
			next = step
		default:
			return err
		}
		return r.counters.Set(ctx, id, counterDocument{CurrentValue: next, UpdatedAt: time.Now().UTC()})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

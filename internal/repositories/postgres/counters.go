package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/hanko-field/storefront/internal/repositories"
)

type counterRepository struct {
	store *Store
}

// Next increments atomically with an upsert; the row lock lasts until the
// caller's transaction ends, so rolled back finalizes release their value.
func (r counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewError("counters.next", repositories.KindUnknown, errors.New("counter id is required"))
	}
	if step <= 0 {
		step = 1
	}
	var value int64
	err := r.store.q(ctx).QueryRowContext(ctx,
		"INSERT INTO counters (id, value, updated_at) VALUES ($1, $2, now()) "+
			"ON CONFLICT (id) DO UPDATE SET value = counters.value + EXCLUDED.value, updated_at = EXCLUDED.updated_at "+
			"RETURNING value", id, step).Scan(&value)
	if err != nil {
		return 0, mapError("counters.next", err)
	}
	return value, nil
}

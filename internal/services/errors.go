package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrValidation signals input the caller must correct before retrying.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the cart or order is missing or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a store-level race. Retrying the whole operation is safe.
	ErrConflict = errors.New("conflict")
	// ErrCartClosed indicates a cart that already left the open state. Retrying the same cart never succeeds.
	ErrCartClosed = errors.New("cart is closed")
	// ErrInsufficientStock is matched by every *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAlreadyTerminal indicates a transition from a status that forbids it.
	ErrAlreadyTerminal = errors.New("order status does not allow this transition")
	// ErrTransient indicates a store timeout or outage. Retrying later is safe.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrForbidden indicates the caller may not perform the operation on an existing resource.
	ErrForbidden = errors.New("forbidden")
)

// StockShortage describes one product that cannot cover the requested quantity.
type StockShortage struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError lists every offending product of a rejected reservation.
type InsufficientStockError struct {
	Shortages []StockShortage
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	if e == nil || len(e.Shortages) == 0 {
		return ErrInsufficientStock.Error()
	}
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock.Error(), strings.Join(parts, ", "))
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// mapRepositoryError translates store failures into the service taxonomy.
func mapRepositoryError(scope string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTransient, scope, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s: %v", ErrNotFound, scope, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s: %v", ErrConflict, scope, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s: %v", ErrTransient, scope, err)
		}
	}
	return fmt.Errorf("%s: %w", scope, err)
}

// isServiceError reports whether err already carries a service-level classification.
func isServiceError(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrCartClosed, ErrInsufficientStock, ErrAlreadyTerminal, ErrTransient, ErrForbidden} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify maps an error escaping a unit of work unless it was already classified.
func classify(scope string, err error) error {
	if err == nil || isServiceError(err) {
		return err
	}
	return mapRepositoryError(scope, err)
}

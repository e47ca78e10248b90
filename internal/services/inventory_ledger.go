package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	eventInventoryDecrement  = "inventory.decrement"
	eventInventoryRestore    = "inventory.restore"
	eventInventoryInvalidate = "inventory.cache.invalidate.failed"
)

// InventoryLedgerDeps bundles the collaborators required to construct the inventory ledger.
type InventoryLedgerDeps struct {
	Products   repositories.ProductRepository
	UnitOfWork repositories.UnitOfWork
	Cache      ProductCacheInvalidator
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryLedger struct {
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	cache      ProductCacheInvalidator
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewInventoryLedger wires dependencies into a concrete InventoryLedger implementation.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryLedger{
		products:   deps.Products,
		unitOfWork: unit,
		cache:      deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (l *inventoryLedger) Check(ctx context.Context, lines []StockLine) (map[string]Product, error) {
	normalised, err := normaliseStockLines(lines)
	if err != nil {
		return nil, err
	}
	products, err := l.load(ctx, normalised)
	if err != nil {
		return nil, err
	}
	if shortages := findShortages(normalised, products); len(shortages) > 0 {
		return products, &InsufficientStockError{Shortages: shortages}
	}
	return products, nil
}

func (l *inventoryLedger) Decrement(ctx context.Context, lines []StockLine) error {
	normalised, err := normaliseStockLines(lines)
	if err != nil {
		return err
	}

	return l.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		products, err := l.load(txCtx, normalised)
		if err != nil {
			return err
		}
		if shortages := findShortages(normalised, products); len(shortages) > 0 {
			return &InsufficientStockError{Shortages: shortages}
		}

		now := l.clock()
		updated := make([]domain.Product, 0, len(normalised))
		for _, line := range normalised {
			product := products[line.ProductID]
			product.Stock -= line.Quantity
			if product.Stock == 0 {
				product.Status = domain.ProductStatusSoldOut
			}
			product.UpdatedAt = now
			updated = append(updated, product)
		}
		if err := l.products.SaveStock(txCtx, updated); err != nil {
			return mapRepositoryError("inventory decrement", err)
		}

		l.invalidateAfterCommit(txCtx, normalised)
		l.logger(txCtx, eventInventoryDecrement, map[string]any{"lines": len(normalised)})
		return nil
	})
}

func (l *inventoryLedger) Restore(ctx context.Context, lines []StockLine) error {
	normalised, err := normaliseStockLines(lines)
	if err != nil {
		return err
	}

	return l.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		products, err := l.load(txCtx, normalised)
		if err != nil {
			return err
		}

		now := l.clock()
		updated := make([]domain.Product, 0, len(normalised))
		for _, line := range normalised {
			product := products[line.ProductID]
			product.Stock += line.Quantity
			if product.Status == domain.ProductStatusSoldOut && product.Stock > 0 {
				product.Status = domain.ProductStatusActive
			}
			product.UpdatedAt = now
			updated = append(updated, product)
		}
		if err := l.products.SaveStock(txCtx, updated); err != nil {
			return mapRepositoryError("inventory restore", err)
		}

		l.invalidateAfterCommit(txCtx, normalised)
		l.logger(txCtx, eventInventoryRestore, map[string]any{"lines": len(normalised)})
		return nil
	})
}

func (l *inventoryLedger) load(ctx context.Context, lines []StockLine) (map[string]Product, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := l.products.GetMany(ctx, ids)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("%w: product not found: %v", ErrValidation, err)
		}
		return nil, mapRepositoryError("inventory read", err)
	}
	return products, nil
}

func (l *inventoryLedger) invalidateAfterCommit(ctx context.Context, lines []StockLine) {
	if l.cache == nil {
		return
	}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	repositories.AfterCommit(ctx, func(ctx context.Context) {
		if err := l.cache.Invalidate(ctx, ids...); err != nil {
			l.logger(ctx, eventInventoryInvalidate, map[string]any{
				"products": ids,
				"error":    err.Error(),
			})
		}
	})
}

func findShortages(lines []StockLine, products map[string]Product) []StockShortage {
	var shortages []StockShortage
	for _, line := range lines {
		product := products[line.ProductID]
		available := product.Stock
		if product.Status != domain.ProductStatusActive {
			available = 0
		}
		if line.Quantity > available {
			shortages = append(shortages, StockShortage{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: max(available, 0),
			})
		}
	}
	return shortages
}

// normaliseStockLines merges duplicate products and sorts by id so stores lock rows in a stable order.
func normaliseStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one stock line is required", ErrValidation)
	}
	aggregated := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrValidation)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrValidation, productID)
		}
		aggregated[productID] += line.Quantity
	}

	result := make([]StockLine, 0, len(aggregated))
	for id, qty := range aggregated {
		result = append(result, StockLine{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(result, func(a, b StockLine) int { return strings.Compare(a.ProductID, b.ProductID) })
	return result, nil
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

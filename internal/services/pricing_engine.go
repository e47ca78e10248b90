package services

import (
	"errors"
	"fmt"
)

const (
	// DefaultFreeDeliveryThreshold waives the delivery fee at or above this subtotal.
	DefaultFreeDeliveryThreshold int64 = 5000
	// DefaultFlatDeliveryFee is charged below the free-delivery threshold.
	DefaultFlatDeliveryFee int64 = 1000
)

// PricingConfig holds the delivery fee rule.
type PricingConfig struct {
	FreeDeliveryThreshold int64
	FlatDeliveryFee       int64
}

// PricedItem pairs a live unit price with a quantity.
type PricedItem struct {
	UnitPrice int64
	Quantity  int
}

// PricingEngine computes totals from live prices. It holds no state besides its configuration.
type PricingEngine struct {
	threshold int64
	fee       int64
}

// NewPricingEngine validates cfg. Zero values fall back to the defaults.
func NewPricingEngine(cfg PricingConfig) (*PricingEngine, error) {
	threshold := cfg.FreeDeliveryThreshold
	if threshold == 0 {
		threshold = DefaultFreeDeliveryThreshold
	}
	fee := cfg.FlatDeliveryFee
	if fee == 0 {
		fee = DefaultFlatDeliveryFee
	}
	if threshold < 0 {
		return nil, errors.New("pricing engine: free delivery threshold must not be negative")
	}
	if fee < 0 {
		return nil, errors.New("pricing engine: delivery fee must not be negative")
	}
	return &PricingEngine{threshold: threshold, fee: fee}, nil
}

// LineSubtotal returns price × quantity.
func (e *PricingEngine) LineSubtotal(item PricedItem) int64 {
	return item.UnitPrice * int64(item.Quantity)
}

// Subtotal sums every line subtotal.
func (e *PricingEngine) Subtotal(items []PricedItem) int64 {
	var total int64
	for _, item := range items {
		total += e.LineSubtotal(item)
	}
	return total
}

// DeliveryFee is waived when subtotal reaches the threshold (inclusive).
func (e *PricingEngine) DeliveryFee(subtotal int64) int64 {
	if subtotal >= e.threshold {
		return 0
	}
	return e.fee
}

// Totals computes subtotal, fee and total for the given lines.
func (e *PricingEngine) Totals(items []PricedItem) OrderTotals {
	subtotal := e.Subtotal(items)
	fee := e.DeliveryFee(subtotal)
	return OrderTotals{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal + fee,
	}
}

// Validate rejects lines that cannot be priced.
func (e *PricingEngine) Validate(items []PricedItem) error {
	for i, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: line %d price must not be negative", ErrValidation, i)
		}
	}
	return nil
}

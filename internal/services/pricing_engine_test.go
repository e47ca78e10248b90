package services

import (
	"errors"
	"testing"
)

func TestPricingEngineDeliveryThreshold(t *testing.T) {
	engine, err := NewPricingEngine(PricingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name     string
		items    []PricedItem
		expected OrderTotals
	}{
		{
			name:     "below threshold pays flat fee",
			items:    []PricedItem{{UnitPrice: 4999, Quantity: 1}},
			expected: OrderTotals{Subtotal: 4999, DeliveryFee: 1000, Total: 5999},
		},
		{
			name:     "exactly at threshold is free",
			items:    []PricedItem{{UnitPrice: 5000, Quantity: 1}},
			expected: OrderTotals{Subtotal: 5000, DeliveryFee: 0, Total: 5000},
		},
		{
			name:     "multiple lines sum quantities",
			items:    []PricedItem{{UnitPrice: 1200, Quantity: 3}, {UnitPrice: 700, Quantity: 2}},
			expected: OrderTotals{Subtotal: 5000, DeliveryFee: 0, Total: 5000},
		},
		{
			name:     "small order",
			items:    []PricedItem{{UnitPrice: 300, Quantity: 2}},
			expected: OrderTotals{Subtotal: 600, DeliveryFee: 1000, Total: 1600},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Totals(tc.items)
			if got != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, got)
			}
		})
	}
}

func TestPricingEngineCustomConfig(t *testing.T) {
	engine, err := NewPricingEngine(PricingConfig{FreeDeliveryThreshold: 10000, FlatDeliveryFee: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee := engine.DeliveryFee(9999); fee != 500 {
		t.Fatalf("expected fee 500, got %d", fee)
	}
	if fee := engine.DeliveryFee(10000); fee != 0 {
		t.Fatalf("expected free delivery, got %d", fee)
	}
}

func TestPricingEngineRejectsNegativeConfig(t *testing.T) {
	if _, err := NewPricingEngine(PricingConfig{FlatDeliveryFee: -1}); err == nil {
		t.Fatalf("expected error for negative fee")
	}
	if _, err := NewPricingEngine(PricingConfig{FreeDeliveryThreshold: -1}); err == nil {
		t.Fatalf("expected error for negative threshold")
	}
}

func TestPricingEngineValidate(t *testing.T) {
	engine, _ := NewPricingEngine(PricingConfig{})
	if err := engine.Validate([]PricedItem{{UnitPrice: 100, Quantity: 0}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := engine.Validate([]PricedItem{{UnitPrice: -1, Quantity: 1}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := engine.Validate([]PricedItem{{UnitPrice: 100, Quantity: 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

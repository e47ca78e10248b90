package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterNamespace = "github.com/hanko-field/storefront/internal/services"

// serviceMetrics records domain counters. Instruments are optional and missing ones are skipped.
type serviceMetrics struct {
	acquireConflicts metric.Int64Counter
	reconciledCarts  metric.Int64Counter
	finalizeOutcomes metric.Int64Counter
	notifyFailures   metric.Int64Counter
}

func newServiceMetrics(meter metric.Meter) serviceMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterNamespace)
	}
	var m serviceMetrics
	m.acquireConflicts, _ = meter.Int64Counter("cart.acquire.conflicts",
		metric.WithDescription("Open-cart inserts rejected by the uniqueness constraint"))
	m.reconciledCarts, _ = meter.Int64Counter("cart.reconcile.closed",
		metric.WithDescription("Duplicate open carts closed by reconciliation"))
	m.finalizeOutcomes, _ = meter.Int64Counter("order.finalize.outcomes",
		metric.WithDescription("Finalize attempts by outcome"))
	m.notifyFailures, _ = meter.Int64Counter("order.notify.failures",
		metric.WithDescription("Admin notifications that failed to deliver"))
	return m
}

func (m serviceMetrics) addAcquireConflict(ctx context.Context) {
	if m.acquireConflicts != nil {
		m.acquireConflicts.Add(ctx, 1)
	}
}

func (m serviceMetrics) addReconciled(ctx context.Context, n int) {
	if m.reconciledCarts != nil && n > 0 {
		m.reconciledCarts.Add(ctx, int64(n))
	}
}

func (m serviceMetrics) addFinalizeOutcome(ctx context.Context, outcome string) {
	if m.finalizeOutcomes != nil {
		m.finalizeOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m serviceMetrics) addNotifyFailure(ctx context.Context) {
	if m.notifyFailures != nil {
		m.notifyFailures.Add(ctx, 1)
	}
}

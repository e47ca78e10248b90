package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAddFieldsEnrichesLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = AddFields(ctx, zap.String("owner_id", "user-1"))
	Logger(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["owner_id"]; got != "user-1" {
		t.Fatalf("expected owner_id field, got %v", got)
	}
}

func TestAddFieldsWithoutLogger(t *testing.T) {
	ctx := context.Background()
	if got := AddFields(ctx, zap.String("k", "v")); got != ctx {
		t.Fatalf("expected context unchanged")
	}
	if Logger(nil) != NoopLogger() {
		t.Fatalf("expected noop logger for nil context")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "def", Sampled: true})
	if TraceID(ctx) != "abc" {
		t.Fatalf("expected trace id abc, got %q", TraceID(ctx))
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "admin-orders")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestAdminNotifierPublishesOrder(t *testing.T) {
	srv, topic := newTestTopic(t)
	notifier, err := NewAdminNotifier(topic, language.Japanese)
	if err != nil {
		t.Fatalf("NewAdminNotifier: %v", err)
	}

	requestedAt := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	notification := services.OrderNotification{
		OrderID:     "ord_1",
		OrderNumber: "SF-2025-000001",
		OwnerID:     "user-1",
		Lines: []services.OrderLine{
			{ProductID: "p-1", ProductName: "Lamp", UnitPrice: 1200, Quantity: 3, LineTotal: 3600},
		},
		Totals:      services.OrderTotals{Subtotal: 3600, DeliveryFee: 1000, Total: 4600},
		Currency:    "JPY",
		Delivery:    services.DeliveryInfo{Address: "1-2-3 Shibuya", Notes: "leave at door"},
		RequestedAt: requestedAt,
	}
	if err := notifier.NotifyAdmin(context.Background(), notification); err != nil {
		t.Fatalf("NotifyAdmin: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload notificationPayload
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != "SF-2025-000001" || payload.Total != 4600 || payload.Address != "1-2-3 Shibuya" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if len(payload.Lines) != 1 || payload.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected lines %#v", payload.Lines)
	}
	if !strings.HasPrefix(payload.Summary, "SF-2025-000001: 3 items, ") || !strings.Contains(payload.Summary, "4600") && !strings.Contains(payload.Summary, "4,600") {
		t.Fatalf("unexpected summary %q", payload.Summary)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_1" {
		t.Fatalf("expected order id attribute, got %q", attr)
	}
}

func TestAdminNotifierFormatAmountUnknownCurrency(t *testing.T) {
	_, topic := newTestTopic(t)
	notifier, _ := NewAdminNotifier(topic, language.Japanese)
	if got := notifier.formatAmount(1500, "XXX1"); got != "1500 XXX1" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestNewAdminNotifierUsesConfiguredLocale(t *testing.T) {
	_, topic := newTestTopic(t)
	notifier, err := NewAdminNotifier(topic, language.AmericanEnglish)
	if err != nil {
		t.Fatalf("NewAdminNotifier: %v", err)
	}
	if notifier.locale != language.AmericanEnglish {
		t.Fatalf("expected en-US printer, got %s", notifier.locale)
	}
	if got := notifier.formatAmount(1999, "USD"); !strings.Contains(got, "19.99") {
		t.Fatalf("expected dollars with cents, got %q", got)
	}
}

func TestNewAdminNotifierRequiresTopic(t *testing.T) {
	if _, err := NewAdminNotifier(nil, language.Japanese); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

func TestRetryableCodes(t *testing.T) {
	if !retryable(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable should be retried")
	}
	if retryable(status.Error(codes.PermissionDenied, "nope")) {
		t.Fatalf("permission denied should not be retried")
	}
}

// Package jobs publishes background work and notifications to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/services"
)

// AdminNotifier publishes new-order notifications for staff tooling.
type AdminNotifier struct {
	topic    *pubsub.Topic
	locale   language.Tag
	printer  *message.Printer
	marshal  func(any) ([]byte, error)
	attempts int
}

// NewAdminNotifier constructs a Pub/Sub backed services.AdminNotifier. The
// locale drives how the summary line renders amounts.
func NewAdminNotifier(topic *pubsub.Topic, locale language.Tag) (*AdminNotifier, error) {
	if topic == nil {
		return nil, errors.New("admin notifier: topic is required")
	}
	return &AdminNotifier{
		topic:    topic,
		locale:   locale,
		printer:  message.NewPrinter(locale),
		marshal:  json.Marshal,
		attempts: 3,
	}, nil
}

var _ services.AdminNotifier = (*AdminNotifier)(nil)

type notificationLine struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

type notificationPayload struct {
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	OwnerID     string             `json:"ownerId"`
	Lines       []notificationLine `json:"lines"`
	Subtotal    int64              `json:"subtotal"`
	DeliveryFee int64              `json:"deliveryFee"`
	Total       int64              `json:"total"`
	Currency    string             `json:"currency"`
	Address     string             `json:"address"`
	Notes       string             `json:"notes,omitempty"`
	RequestedAt time.Time          `json:"requestedAt"`
	Summary     string             `json:"summary"`
}

// NotifyAdmin publishes the notification and waits for the server ack. The
// message is keyed by order id so subscribers can drop redeliveries.
func (n *AdminNotifier) NotifyAdmin(ctx context.Context, notification services.OrderNotification) error {
	if n == nil || n.topic == nil {
		return errors.New("admin notifier: not initialised")
	}

	lines := make([]notificationLine, 0, len(notification.Lines))
	for _, line := range notification.Lines {
		lines = append(lines, notificationLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	payload := notificationPayload{
		OrderID:     notification.OrderID,
		OrderNumber: notification.OrderNumber,
		OwnerID:     notification.OwnerID,
		Lines:       lines,
		Subtotal:    notification.Totals.Subtotal,
		DeliveryFee: notification.Totals.DeliveryFee,
		Total:       notification.Totals.Total,
		Currency:    notification.Currency,
		Address:     notification.Delivery.Address,
		Notes:       notification.Delivery.Notes,
		RequestedAt: notification.RequestedAt.UTC(),
		Summary:     n.summary(notification),
	}

	data, err := n.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal admin notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", notification.OrderID)
	setAttr(attrs, "orderNumber", notification.OrderNumber)
	setAttr(attrs, "event", "order.created")

	backoff := gax.Backoff{Initial: 100 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
	for attempt := 1; ; attempt++ {
		result := n.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
		_, err := result.Get(ctx)
		if err == nil {
			return nil
		}
		if attempt >= n.attempts || !retryable(err) {
			return fmt.Errorf("publish admin notification: %w", err)
		}
		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return fmt.Errorf("publish admin notification: %w", err)
		}
	}
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}

// summary renders a one-line digest: order number, item count and total.
func (n *AdminNotifier) summary(notification services.OrderNotification) string {
	items := 0
	for _, line := range notification.Lines {
		items += line.Quantity
	}
	return fmt.Sprintf("%s: %d items, %s", notification.OrderNumber, items, n.formatAmount(notification.Totals.Total, notification.Currency))
}

// formatAmount renders minor units in the currency's standard precision.
func (n *AdminNotifier) formatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return fmt.Sprintf("%d %s", minor, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	amount := float64(minor) / math.Pow10(scale)
	return n.printer.Sprint(currency.Symbol(unit.Amount(amount)))
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

package services

import "context"

// LogNotifier records admin notifications through the service logger when no transport is configured.
type LogNotifier struct {
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// NotifyAdmin implements AdminNotifier.
func (n LogNotifier) NotifyAdmin(ctx context.Context, notification OrderNotification) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger(ctx, "order.notify.logged", map[string]any{
		"orderId": notification.OrderID,
		"number":  notification.OrderNumber,
		"ownerId": notification.OwnerID,
		"lines":   len(notification.Lines),
		"total":   notification.Totals.Total,
	})
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventCancelled = "order.cancelled"
	orderEventAdvanced  = "order.status.advanced"
)

// orderTransitions lists the single forward step allowed from each fulfilment status.
var orderTransitions = map[OrderStatus]OrderStatus{
	domain.OrderStatusPending:    domain.OrderStatusConfirmed,
	domain.OrderStatusConfirmed:  domain.OrderStatusPreparing,
	domain.OrderStatusPreparing:  domain.OrderStatusDispatched,
	domain.OrderStatusDispatched: domain.OrderStatusDelivered,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Ledger     InventoryLedger
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	ledger     InventoryLedger
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: inventory ledger is required")
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

	return &orderService{
		orders:     deps.Orders,
		ledger:     deps.Ledger,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError("get order", err)
	}
	if !visibleTo(order, query.ActorID, query.Staff) {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, ownerID string) ([]Order, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	orders, err := s.orders.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, mapRepositoryError("list orders", err)
	}
	return orders, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	var result Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("get order", err)
		}
		if !visibleTo(order, cmd.ActorID, cmd.Staff) {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}

		switch order.Status {
		case domain.OrderStatusCancelled:
			result = order
			return nil
		case domain.OrderStatusPending:
		default:
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrAlreadyTerminal, order.Status)
		}

		if !order.StockRestored {
			if err := s.ledger.Restore(txCtx, orderStockLines(order)); err != nil {
				return err
			}
			order.StockRestored = true
		}

		now := s.clock()
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return mapRepositoryError("update order status", err)
		}

		s.logger(txCtx, orderEventCancelled, map[string]any{
			"orderId": order.ID,
			"actorId": cmd.ActorID,
		})
		result = order
		return nil
	})
	if err != nil {
		return Order{}, classify("cancel order", err)
	}
	return result, nil
}

func (s *orderService) AdvanceOrderStatus(ctx context.Context, cmd AdvanceOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	target := OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Target))))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrValidation, cmd.Target)
	}
	if target == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, CancelOrderCommand{OrderID: orderID, ActorID: cmd.ActorID, Staff: cmd.Staff})
	}
	if !cmd.Staff {
		return Order{}, fmt.Errorf("%w: only staff may advance orders", ErrForbidden)
	}

	var result Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("get order", err)
		}
		if order.Status == target {
			result = order
			return nil
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrAlreadyTerminal, order.Status)
		}
		if next, ok := orderTransitions[order.Status]; !ok || next != target {
			return fmt.Errorf("%w: cannot move order from %s to %s", ErrValidation, order.Status, target)
		}

		from := order.Status
		order.Status = target
		order.UpdatedAt = s.clock()
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return mapRepositoryError("update order status", err)
		}

		s.logger(txCtx, orderEventAdvanced, map[string]any{
			"orderId": order.ID,
			"from":    string(from),
			"to":      string(target),
			"actorId": cmd.ActorID,
		})
		result = order
		return nil
	})
	if err != nil {
		return Order{}, classify("advance order status", err)
	}
	return result, nil
}

func visibleTo(order Order, actorID string, staff bool) bool {
	if staff {
		return true
	}
	actorID = strings.TrimSpace(actorID)
	return actorID != "" && order.OwnerID == actorID
}

func orderStockLines(order Order) []StockLine {
	lines := make([]StockLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return lines
}

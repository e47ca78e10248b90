package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func placeOrder(t *testing.T, f *fixture, ownerID string, qty int) Order {
	t.Helper()
	view := f.addItem(t, ownerID, "p-1", qty)
	order, err := f.finalizer.FinalizeCart(context.Background(), FinalizeCartCommand{OwnerID: ownerID, CartID: view.ID, Delivery: testDelivery})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return order
}

func TestOrderServiceCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 3)
	order := placeOrder(t, f, "user-1", 3)
	ctx := context.Background()

	if p := f.stock(t, "p-1"); p.Stock != 0 || p.Status != domain.ProductStatusSoldOut {
		t.Fatalf("expected sold out after checkout, got %+v", p)
	}

	cancelled, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || !cancelled.StockRestored || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	if p := f.stock(t, "p-1"); p.Stock != 3 || p.Status != domain.ProductStatusActive {
		t.Fatalf("expected stock restored and active, got %+v", p)
	}

	again, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}
	if got := f.stock(t, "p-1").Stock; got != 3 {
		t.Fatalf("expected stock restored exactly once, got %d", got)
	}
}

func TestOrderServiceCancelRules(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 10)
	ctx := context.Background()
	order := placeOrder(t, f, "user-1", 1)

	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-2"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: "ord-missing", ActorID: "user-1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := f.orders.AdvanceOrderStatus(ctx, AdvanceOrderStatusCommand{OrderID: order.ID, Target: domain.OrderStatusConfirmed, ActorID: "staff-1", Staff: true}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, ActorID: "user-1"})
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected already terminal once confirmed, got %v", err)
	}
	if got := f.stock(t, "p-1").Stock; got != 9 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestOrderServiceStaffCanCancel(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 10)
	order := placeOrder(t, f, "user-1", 2)

	cancelled, err := f.orders.CancelOrder(context.Background(), CancelOrderCommand{OrderID: order.ID, ActorID: "staff-1", Staff: true})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestOrderServiceAdvanceFollowsFulfilmentPath(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 10)
	order := placeOrder(t, f, "user-1", 1)
	ctx := context.Background()

	advance := func(target OrderStatus, staff bool) (Order, error) {
		return f.orders.AdvanceOrderStatus(ctx, AdvanceOrderStatusCommand{OrderID: order.ID, Target: target, ActorID: "actor", Staff: staff})
	}

	if _, err := advance(domain.OrderStatusConfirmed, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}
	if _, err := advance(domain.OrderStatusDispatched, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error when skipping steps, got %v", err)
	}
	if _, err := advance(OrderStatus("lost"), true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	for _, target := range []OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusDispatched,
		domain.OrderStatusDelivered,
	} {
		updated, err := advance(target, true)
		if err != nil {
			t.Fatalf("advance to %s: %v", target, err)
		}
		if updated.Status != target {
			t.Fatalf("expected %s, got %s", target, updated.Status)
		}
	}

	if same, err := advance(domain.OrderStatusDelivered, true); err != nil || same.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected same-status advance to be a no-op, got %v %v", same.Status, err)
	}
	if _, err := advance(domain.OrderStatusPreparing, true); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected terminal error after delivery, got %v", err)
	}
	if _, err := advance(domain.OrderStatusCancelled, true); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected delivered order to refuse cancellation, got %v", err)
	}
}

func TestOrderServiceGetAndList(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 10)
	first := placeOrder(t, f, "user-1", 1)
	second := placeOrder(t, f, "user-1", 2)
	placeOrder(t, f, "user-2", 1)
	ctx := context.Background()

	got, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: first.ID, ActorID: "user-1"})
	if err != nil || got.ID != first.ID {
		t.Fatalf("expected owner to read order, got %v", err)
	}
	if _, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: first.ID, ActorID: "user-2"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if _, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: first.ID, ActorID: "staff", Staff: true}); err != nil {
		t.Fatalf("expected staff read, got %v", err)
	}

	orders, err := f.orders.ListOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if second.Number == first.Number {
		t.Fatalf("expected distinct order numbers")
	}
}

func TestOrderServiceConcurrentCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	f.product("p-1", 1000, 4)
	order := placeOrder(t, f, "user-1", 4)
	ctx := context.Background()

	const callers = 16
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			cmd := CancelOrderCommand{OrderID: order.ID, ActorID: "user-1"}
			if i%2 == 1 {
				cmd = CancelOrderCommand{OrderID: order.ID, ActorID: "staff-1", Staff: true}
			}
			cancelled, err := f.orders.CancelOrder(ctx, cmd)
			if err != nil {
				return err
			}
			if cancelled.Status != domain.OrderStatusCancelled {
				return fmt.Errorf("expected cancelled, got %s", cancelled.Status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent cancel: %v", err)
	}
	if got := f.stock(t, "p-1").Stock; got != 4 {
		t.Fatalf("expected stock restored exactly once, got %d", got)
	}
}

type failingOrders struct {
	repositories.OrderRepository
	err error
}

func (o failingOrders) Get(context.Context, string) (domain.Order, error) {
	return domain.Order{}, o.err
}

func (o failingOrders) FindByCart(context.Context, string) (domain.Order, error) {
	return domain.Order{}, o.err
}

func TestStoreTimeoutSurfacesAsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "deadline", err: fmt.Errorf("query orders: %w", context.DeadlineExceeded)},
		{name: "unavailable", err: repositories.NewError("orders.get", repositories.KindUnavailable, errors.New("connection refused"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.product("p-1", 1000, 5)
			view := f.addItem(t, "user-1", "p-1", 1)
			ctx := context.Background()
			orders := failingOrders{OrderRepository: f.store.Orders(), err: tc.err}

			svc, err := NewOrderService(OrderServiceDeps{Orders: orders, Ledger: f.ledger, UnitOfWork: f.store})
			if err != nil {
				t.Fatalf("order service: %v", err)
			}
			if _, err := svc.GetOrder(ctx, GetOrderQuery{OrderID: "ord_1", ActorID: "user-1"}); !errors.Is(err, ErrTransient) {
				t.Fatalf("get: expected transient, got %v", err)
			}
			if _, err := svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "ord_1", ActorID: "user-1"}); !errors.Is(err, ErrTransient) {
				t.Fatalf("cancel: expected transient, got %v", err)
			}

			finalizer, err := NewOrderFinalizer(OrderFinalizerDeps{
				Carts:      f.store.Carts(),
				Items:      f.store.CartItems(),
				Orders:     orders,
				Counters:   f.store.Counters(),
				Ledger:     f.ledger,
				Pricing:    f.pricing,
				UnitOfWork: f.store,
			})
			if err != nil {
				t.Fatalf("order finalizer: %v", err)
			}
			if _, err := finalizer.FinalizeCart(ctx, FinalizeCartCommand{OwnerID: "user-1", CartID: view.ID, Delivery: testDelivery}); !errors.Is(err, ErrTransient) {
				t.Fatalf("finalize: expected transient, got %v", err)
			}
			if got := f.stock(t, "p-1").Stock; got != 5 {
				t.Fatalf("expected stock untouched, got %d", got)
			}
		})
	}
}

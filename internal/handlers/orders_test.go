package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

type stubOrderService struct {
	getFunc     func(ctx context.Context, query services.GetOrderQuery) (services.Order, error)
	listFunc    func(ctx context.Context, ownerID string) ([]services.Order, error)
	cancelFunc  func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	advanceFunc func(ctx context.Context, cmd services.AdvanceOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errors.New("unexpected GetOrder call")
	}
	return s.getFunc(ctx, query)
}

func (s *stubOrderService) ListOrders(ctx context.Context, ownerID string) ([]services.Order, error) {
	if s.listFunc == nil {
		return nil, errors.New("unexpected ListOrders call")
	}
	return s.listFunc(ctx, ownerID)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc == nil {
		return services.Order{}, errors.New("unexpected CancelOrder call")
	}
	return s.cancelFunc(ctx, cmd)
}

func (s *stubOrderService) AdvanceOrderStatus(ctx context.Context, cmd services.AdvanceOrderStatusCommand) (services.Order, error) {
	if s.advanceFunc == nil {
		return services.Order{}, errors.New("unexpected AdvanceOrderStatus call")
	}
	return s.advanceFunc(ctx, cmd)
}

func orderRouter(h *OrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", h.Routes)
	return router
}

func sampleOrder(now time.Time) services.Order {
	return services.Order{
		ID:       "order-1",
		CartID:   "cart-1",
		OwnerID:  "user-7",
		Number:   "20240512-000001",
		Status:   domain.OrderStatusPending,
		Currency: "JPY",
		Delivery: services.DeliveryInfo{Address: "1-2-3 Shibuya"},
		Lines: []services.OrderLine{
			{ProductID: "prod-1", ProductName: "Matcha", UnitPrice: 1200, Quantity: 2, LineTotal: 2400},
		},
		Totals:        services.OrderTotals{Subtotal: 2400, DeliveryFee: 1000, Total: 3400},
		AdminNotified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		listFunc: func(_ context.Context, ownerID string) ([]services.Order, error) {
			if ownerID != "user-7" {
				t.Fatalf("unexpected owner %q", ownerID)
			}
			return []services.Order{sampleOrder(now)}, nil
		},
	}

	rr := httptest.NewRecorder()
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders", nil), "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected one order, got %d", len(resp.Items))
	}
	got := resp.Items[0]
	if got.Number != "20240512-000001" || got.Lines[0].LineTotal != 2400 || !got.AdminNotified || got.CancelledAt != "" {
		t.Fatalf("unexpected order payload %+v", got)
	}
}

func TestOrderHandlersGetOrderPassesStaffFlag(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	var got services.GetOrderQuery
	service := &stubOrderService{
		getFunc: func(_ context.Context, query services.GetOrderQuery) (services.Order, error) {
			got = query
			return sampleOrder(now), nil
		},
	}

	rr := httptest.NewRecorder()
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/orders/order-1", nil), "staff-1", auth.RoleStaff)
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.OrderID != "order-1" || got.ActorID != "staff-1" || !got.Staff {
		t.Fatalf("unexpected query %+v", got)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(context.Context, services.GetOrderQuery) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: order missing", services.ErrNotFound)
		},
	}
	rr := httptest.NewRecorder()
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/missing", nil), "user-7"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		cancelFunc: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			if cmd.OrderID != "order-1" || cmd.ActorID != "user-7" || cmd.Staff {
				t.Fatalf("unexpected command %+v", cmd)
			}
			order := sampleOrder(now)
			order.Status = domain.OrderStatusCancelled
			cancelledAt := now.Add(time.Hour)
			order.CancelledAt = &cancelledAt
			return order, nil
		},
	}

	rr := httptest.NewRecorder()
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:cancel", nil), "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.Status != "cancelled" || resp.Order.CancelledAt != "2024-05-12T11:00:00Z" {
		t.Fatalf("unexpected payload %+v", resp.Order)
	}
}

func TestOrderHandlersCancelTerminalOrder(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: order already dispatched", services.ErrAlreadyTerminal)
		},
	}
	rr := httptest.NewRecorder()
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1:cancel", nil), "user-7"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestOrderHandlersAdvanceOrder(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	var got services.AdvanceOrderStatusCommand
	service := &stubOrderService{
		advanceFunc: func(_ context.Context, cmd services.AdvanceOrderStatusCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder(now)
			order.Status = cmd.Target
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1:advance", strings.NewReader(`{"status":" Confirmed "}`))
	rr := httptest.NewRecorder()
	orderRouter(NewOrderHandlers(nil, service)).ServeHTTP(rr, withIdentity(req, "staff-1", auth.RoleStaff))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Target != domain.OrderStatusConfirmed || !got.Staff || got.OrderID != "order-1" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestOrderHandlersAdvanceOrderRejections(t *testing.T) {
	service := &stubOrderService{
		advanceFunc: func(_ context.Context, cmd services.AdvanceOrderStatusCommand) (services.Order, error) {
			if !cmd.Staff {
				return services.Order{}, services.ErrForbidden
			}
			return services.Order{}, errors.New("unexpected staff call")
		},
	}
	router := orderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1:advance", strings.NewReader(`{"status":"shipped"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "staff-1", auth.RoleStaff))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/orders/order-1:advance", strings.NewReader(`{"status":"confirmed"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-7"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-staff caller, got %d", rr.Code)
	}
}

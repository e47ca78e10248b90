package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// OrderHandlers exposes order history, cancellation and staff status changes.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	// Staff-only; the order service rejects other callers with ErrForbidden.
	r.Post("/{orderID}:advance", h.advanceOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type advanceOrderRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) advanceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req advanceOrderRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a known order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AdvanceOrderStatus(ctx, services.AdvanceOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Target:  target,
		ActorID: identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			LineTotal:   line.LineTotal,
		})
	}
	payload := orderPayload{
		ID:       order.ID,
		CartID:   order.CartID,
		OwnerID:  order.OwnerID,
		Number:   order.Number,
		Status:   string(order.Status),
		Currency: order.Currency,
		Delivery: deliveryPayload{
			Address: order.Delivery.Address,
			Notes:   order.Delivery.Notes,
		},
		Lines:         lines,
		Totals:        buildTotalsPayload(order.Totals),
		AdminNotified: order.AdminNotified,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	return payload
}

func buildTotalsPayload(totals services.OrderTotals) totalsPayload {
	return totalsPayload{
		Subtotal:    totals.Subtotal,
		DeliveryFee: totals.DeliveryFee,
		Total:       totals.Total,
	}
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	CartID        string             `json:"cartId"`
	OwnerID       string             `json:"ownerId"`
	Number        string             `json:"number"`
	Status        string             `json:"status"`
	Currency      string             `json:"currency,omitempty"`
	Delivery      deliveryPayload    `json:"delivery"`
	Lines         []orderLinePayload `json:"lines"`
	Totals        totalsPayload      `json:"totals"`
	AdminNotified bool               `json:"adminNotified"`
	CreatedAt     string             `json:"createdAt,omitempty"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
	CancelledAt   string             `json:"cancelledAt,omitempty"`
}

type deliveryPayload struct {
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

type orderLinePayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"lineTotal"`
}

type totalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	DeliveryFee int64 `json:"deliveryFee"`
	Total       int64 `json:"total"`
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CartHandlers exposes the caller's open cart and checkout.
type CartHandlers struct {
	authn      *auth.Authenticator
	carts      services.CartService
	finalizer  services.OrderFinalizer
	idempotent func(http.Handler) http.Handler
}

// CartOption customises CartHandlers.
type CartOption func(*CartHandlers)

// WithIdempotency wraps item creation and checkout with mw, which must replay retried requests.
func WithIdempotency(mw func(http.Handler) http.Handler) CartOption {
	return func(h *CartHandlers) {
		h.idempotent = mw
	}
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, finalizer services.OrderFinalizer, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
		authn:     authn,
		carts:     carts,
		finalizer: finalizer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.idempotent == nil {
		h.idempotent = func(next http.Handler) http.Handler { return next }
	}
	return h
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.With(h.idempotent).Post("/items", h.addItem)
	r.Delete("/items", h.clearCart)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
}

// RegisterStandaloneRoutes wires custom-method routes that live beside the /cart group.
func (h *CartHandlers) RegisterStandaloneRoutes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.With(h.idempotent).Post("/cart:checkout", h.checkout)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		OwnerID:   identity.UID,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	view, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		OwnerID:  identity.UID,
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		OwnerID: identity.UID,
		ItemID:  strings.TrimSpace(chi.URLParam(r, "itemID")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.ClearCart(ctx, services.ClearCartCommand{OwnerID: identity.UID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

type checkoutRequest struct {
	CartID          string `json:"cartId"`
	DeliveryAddress string `json:"deliveryAddress"`
	Notes           string `json:"notes"`
}

func (h *CartHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.finalizer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	// The cart id pins a resubmitted checkout to the cart it already finalized.
	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartId is required", http.StatusBadRequest))
		return
	}

	order, err := h.finalizer.FinalizeCart(ctx, services.FinalizeCartCommand{
		OwnerID: identity.UID,
		CartID:  cartID,
		Delivery: services.DeliveryInfo{
			Address: req.DeliveryAddress,
			Notes:   req.Notes,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func buildCartPayload(view services.CartView) cartPayload {
	items := make([]cartItemPayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, cartItemPayload{
			ID:          line.Item.ID,
			ProductID:   line.Item.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Item.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
			Available:   line.Available,
			AddedAt:     formatTime(line.Item.AddedAt),
		})
	}
	return cartPayload{
		ID:         view.ID,
		OwnerID:    view.OwnerID,
		Status:     string(view.Status),
		ItemsCount: len(items),
		Items:      items,
		Totals:     buildTotalsPayload(view.Totals),
		CreatedAt:  formatTime(view.CreatedAt),
		UpdatedAt:  formatTime(view.UpdatedAt),
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"ownerId"`
	Status     string            `json:"status"`
	ItemsCount int               `json:"itemsCount"`
	Items      []cartItemPayload `json:"items"`
	Totals     totalsPayload     `json:"totals"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
	Available   int    `json:"available"`
	AddedAt     string `json:"addedAt,omitempty"`
}

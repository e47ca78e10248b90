package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxRequestBodySize  = 16 * 1024
	conflictRetryAfter  = time.Second
	transientRetryAfter = 2 * time.Second
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// requireIdentity returns the authenticated caller or writes 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody strictly decodes a JSON object into dst and writes 400/413 on failure.
func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

// writeServiceError maps the service error taxonomy onto the HTTP envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var stock *services.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		shortages := make([]shortagePayload, 0, len(stock.Shortages))
		for _, s := range stock.Shortages {
			shortages = append(shortages, shortagePayload{ProductID: s.ProductID, Requested: s.Requested, Available: s.Available})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "requested quantity exceeds available stock", http.StatusConflict).
			WithDetails(map[string]any{"shortages": shortages}))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "requested quantity exceeds available stock", http.StatusConflict))
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrCartClosed):
		httpx.WriteError(ctx, w, httpx.NewError("cart_closed", "cart is no longer open; reload the cart", http.StatusConflict))
	case errors.Is(err, services.ErrAlreadyTerminal):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "concurrent update detected; retry the request", http.StatusConflict).
			WithRetryAfter(conflictRetryAfter))
	case errors.Is(err, services.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "service temporarily unavailable", http.StatusServiceUnavailable).
			WithRetryAfter(transientRetryAfter))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type shortagePayload struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName  string
	ttl         time.Duration
	methods     map[string]struct{}
	clock       clockFunc
	keyRequired bool
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequiredKey rejects guarded requests that carry no key.
func WithRequiredKey() MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.keyRequired = true
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays stored responses for POST requests retried with the same key.
// Requests without a key pass through unless WithRequiredKey is set. Keys are scoped to the
// authenticated owner, so the middleware must run after authentication.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    map[string]struct{}{http.MethodPost: {}},
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				if cfg.keyRequired {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing idempotency key header", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			identity := extractRequester(r)
			fingerprint := requestFingerprint(r, body, identity)
			scoped := scopedKey(key, identity)
			logger := requestctx.Logger(ctx).With(zap.String("idempotency_key", key))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
					return
				}
				logger.Error("idempotency: reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusServiceUnavailable).WithRetryAfter(time.Second))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict).WithRetryAfter(time.Second))
				return
			}

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			status := recorder.Status()
			if status >= http.StatusInternalServerError {
				// Server-side failures are retryable, so the key is freed instead of pinned to the error.
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: release failed", zap.Error(err))
				}
			} else {
				response := Response{Status: status, Headers: recorder.Header(), Body: recorder.Body()}
				if err := store.SaveResponse(ctx, scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
					logger.Error("idempotency: save failed", zap.Error(err))
					if releaseErr := store.Release(ctx, scoped, fingerprint); releaseErr != nil {
						logger.Warn("idempotency: release failed", zap.Error(releaseErr))
					}
				}
			}

			if err := recorder.Commit(); err != nil {
				logger.Warn("idempotency: flush failed", zap.Error(err))
			}
		})
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, identity string) string {
	var builder strings.Builder
	builder.WriteString(strings.ToUpper(r.Method))
	builder.WriteString("|")
	builder.WriteString(r.URL.Path)
	builder.WriteString("|")
	builder.WriteString(r.URL.RawQuery)
	builder.WriteString("|")
	builder.WriteString(identity)
	builder.WriteString("|")
	if len(body) > 0 {
		builder.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(builder.String()))
}

func extractRequester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func scopedKey(key, identity string) string {
	return strings.TrimSpace(key) + "|" + identity
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		w.Header()[name] = values
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder buffers the handler output so it can be stored before reaching the client.
type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	return r.body.Bytes()
}

func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for key, values := range r.header {
		dst[key] = values
	}
	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}

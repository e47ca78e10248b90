package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	defaultCheckTimeout  = 2 * time.Second
)

// BuildInfo describes the running binary for health responses.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// DependencyCheck probes one backing service for readiness.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build  BuildInfo
	checks []DependencyCheck
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthChecks registers dependency probes run by /readyz.
func WithHealthChecks(checks ...DependencyCheck) HealthOption {
	return func(h *HealthHandlers) {
		for _, check := range checks {
			if check.Check != nil && check.Name != "" {
				h.checks = append(h.checks, check)
			}
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:      healthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   formatTime(now),
	})
}

// Readyz runs every dependency check concurrently and answers 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		mu      sync.Mutex
		results = make(map[string]checkPayload, len(h.checks))
		details []string
	)

	var g errgroup.Group
	for _, check := range h.checks {
		g.Go(func() error {
			timeout := check.Timeout
			if timeout <= 0 {
				timeout = defaultCheckTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			started := h.clock()
			err := check.Check(checkCtx)
			result := checkPayload{Status: healthStatusOK, LatencyMS: h.clock().Sub(started).Milliseconds()}
			if err != nil {
				result.Status = healthStatusDegraded
				result.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			results[check.Name] = result
			if err != nil {
				details = append(details, fmt.Sprintf("%s: %v", check.Name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(details)

	status := healthStatusOK
	code := http.StatusOK
	if len(details) > 0 {
		status = healthStatusDegraded
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, readinessResponse{
		Status:    status,
		Checks:    results,
		Details:   details,
		Timestamp: formatTime(h.clock().UTC()),
	})
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string                  `json:"status"`
	Checks    map[string]checkPayload `json:"checks"`
	Details   []string                `json:"details,omitempty"`
	Timestamp string                  `json:"timestamp"`
}

type checkPayload struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

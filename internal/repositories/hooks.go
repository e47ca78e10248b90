package repositories

import (
	"context"
	"sync"
)

type hooksContextKey struct{}

// CommitHooks collects callbacks that must run only after the enclosing unit of work commits.
type CommitHooks struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

// WithCommitHooks attaches a fresh hook set to ctx. UnitOfWork implementations call it once per attempt.
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	hooks := &CommitHooks{}
	return context.WithValue(ctx, hooksContextKey{}, hooks), hooks
}

// AfterCommit schedules fn on the enclosing unit of work, or runs it immediately outside one.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if fn == nil {
		return
	}
	if hooks, ok := ctx.Value(hooksContextKey{}).(*CommitHooks); ok && hooks != nil {
		hooks.mu.Lock()
		hooks.hooks = append(hooks.hooks, fn)
		hooks.mu.Unlock()
		return
	}
	fn(ctx)
}

// Run executes the collected callbacks in registration order.
func (h *CommitHooks) Run(ctx context.Context) {
	if h == nil {
		return
	}
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}

package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HookContext describes one send attempt of one chunk.
// It is passed to hooks to allow inspection and annotation.
type HookContext struct {
	// BatchID identifies the batch the chunk belongs to
	BatchID string

	// ChunkIndex is the chunk's position in the batch
	ChunkIndex int

	// Attempt is the 1-based attempt number for this chunk
	Attempt int

	// Operations, Writes and Deletes count the chunk's operations
	Operations int
	Writes     int
	Deletes    int

	// Fingerprint is the chunk's content digest
	Fingerprint uint64

	// Transactional is true for a single-request transactional write
	Transactional bool

	// TraceID is the unique identifier for this attempt
	TraceID string

	// StartTime is when the attempt began
	StartTime time.Time

	// Metadata allows hooks to store arbitrary data for passing between Before/After
	Metadata map[string]interface{}

	// Error stores the send error (available in After hook)
	Error error

	// Duration is the send time (available in After hook)
	Duration time.Duration

	ctx context.Context
}

// Context returns the context the transport send runs under.
func (h *HookContext) Context() context.Context {
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}

// SetContext replaces the context for later Before hooks and the send
// itself, e.g. to carry a span started in Before.
func (h *HookContext) SetContext(ctx context.Context) {
	if ctx != nil {
		h.ctx = ctx
	}
}

// Hook is the interface that all hooks must implement.
type Hook interface {
	// Name returns the unique name of this hook
	Name() string

	// Before is called before the chunk is sent.
	// Returning an error aborts the attempt; the error becomes the attempt's
	// failure and is retried only if it is retryable.
	Before(ctx context.Context, hookCtx *HookContext) error

	// After is called after the send, even if it failed.
	// Errors are logged and never change the attempt's outcome.
	After(ctx context.Context, hookCtx *HookContext) error
}

// hookEntry wraps a Hook with its registration order for stable iteration.
type hookEntry struct {
	hook  Hook
	order int
}

// RegisterHook adds a hook to the client's hook chain.
// Hooks are executed in FIFO order (first registered, first executed).
// If a hook with the same name already exists, it is replaced.
func (c *Client) RegisterHook(hook Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == hook.Name() {
			c.hooks[i].hook = hook
			c.logger.Info("hook replaced", zap.String("hook", hook.Name()))
			return
		}
	}

	order := len(c.hooks)
	c.hooks = append(c.hooks, hookEntry{hook: hook, order: order})
	c.logger.Info("hook registered", zap.String("hook", hook.Name()), zap.Int("order", order))
}

// UnregisterHook removes a hook by name.
// Returns true if the hook was found and removed, false otherwise.
func (c *Client) UnregisterHook(name string) bool {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == name {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			c.logger.Info("hook unregistered", zap.String("hook", name))
			return true
		}
	}

	return false
}

// GetHooks returns the names of all registered hooks in execution order.
func (c *Client) GetHooks() []string {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	names := make([]string, len(c.hooks))
	for i, entry := range c.hooks {
		names[i] = entry.hook.Name()
	}
	return names
}

func (c *Client) snapshotHooks() []Hook {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	hooks := make([]Hook, len(c.hooks))
	for i, entry := range c.hooks {
		hooks[i] = entry.hook
	}
	return hooks
}

// executeBeforeHooks runs Before hooks in order and stops at the first error.
// It returns the hooks that ran, so only those see After.
func (c *Client) executeBeforeHooks(hooks []Hook, hookCtx *HookContext) ([]Hook, error) {
	for i, hook := range hooks {
		if err := hook.Before(hookCtx.Context(), hookCtx); err != nil {
			c.logger.Debug("hook aborted send",
				zap.String("hook", hook.Name()),
				zap.String("trace_id", hookCtx.TraceID),
				zap.Int("chunk", hookCtx.ChunkIndex),
				zap.Error(err))
			return hooks[:i+1], err
		}
	}
	return hooks, nil
}

// executeAfterHooks runs all After hooks in order, even if one fails.
func (c *Client) executeAfterHooks(ctx context.Context, hooks []Hook, hookCtx *HookContext) {
	for _, hook := range hooks {
		if err := hook.After(ctx, hookCtx); err != nil {
			c.logger.Debug("hook returned error in After",
				zap.String("hook", hook.Name()),
				zap.String("trace_id", hookCtx.TraceID),
				zap.Int("chunk", hookCtx.ChunkIndex),
				zap.Error(err))
		}
	}
}

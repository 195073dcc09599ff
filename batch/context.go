package batch

import "context"

type ctxKey int

const (
	attemptKey ctxKey = iota
	batchIDKey
)

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// AttemptFromContext returns the 1-based attempt number of the send in
// progress, or 0 outside a send.
func AttemptFromContext(ctx context.Context) int {
	attempt, _ := ctx.Value(attemptKey).(int)
	return attempt
}

// WithBatchID returns a context carrying the batch ID.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext returns the ID of the batch the send belongs to.
func BatchIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey).(string)
	return id
}

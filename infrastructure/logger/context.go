package logger

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l. The gin request-id middleware
// stores the per-request logger this way.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContextOr returns the request-scoped logger, or def when ctx carries none.
func FromContextOr(ctx context.Context, def Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return def
}

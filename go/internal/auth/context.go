package auth

import (
	"context"

	"github.com/mcdev12/servicedesk/go/internal/models"
)

type contextKey struct{ name string }

var callerKey = contextKey{"caller"}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller and true if one was set.
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	c, ok := ctx.Value(callerKey).(models.Caller)
	return c, ok
}

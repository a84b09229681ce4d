package middleware

import (
	"context"

	"github.com/google/uuid"
)

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID uuid.UUID
	Name   string
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext reports false when no authenticated caller is attached.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || caller.UserID == uuid.Nil {
		return Caller{}, false
	}
	return caller, true
}

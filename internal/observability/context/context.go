// Package context carries request correlation values for logs and spans.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	callerKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithUserID tags the context with the learner whose points are being moved.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// WithCaller names the sibling service that issued the call, e.g. "grading".
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, strings.TrimSpace(caller))
}

func CallerFromContext(ctx context.Context) string {
	return stringValue(ctx, callerKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

// internal/adapter/logger/types.go
package logger

import (
	"context"

	"github.com/google/uuid"
)

type ErrorInfo struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

type ctxKey struct{}

// NewRequestID returns an id to correlate log lines of one request.
func NewRequestID() string {
	return "req-" + uuid.NewString()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

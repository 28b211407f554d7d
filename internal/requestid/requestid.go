// Package requestid tags operator API requests with an ID that rides the
// context into logs and downstream calls. Callers may supply their own ID
// in the X-Request-ID header; otherwise one is minted.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header the operator API reads an inbound request ID
// from and echoes on every response.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New mints a request ID and returns the enriched context and the ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

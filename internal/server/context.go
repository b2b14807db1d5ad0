package server

import (
	"context"

	"workspace-backbone/backend/internal/security"
)

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity stores the authenticated caller on the context.
func WithIdentity(ctx context.Context, id *security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (*security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*security.Identity)
	return id, ok
}

package auth

import "context"

// Identity is the caller resolved from a verified token.
type Identity struct {
	Subject   string
	AccountID string
	Role      Role
}

type identityKey struct{}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller, if the request was authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AccountIDFromContext is the billing account of an authenticated member.
func AccountIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.AccountID
}

// RoleFromContext is empty for unauthenticated requests.
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

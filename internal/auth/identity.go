package auth

import "context"

// Identity is the authenticated caller. The zero value is anonymous.
type Identity struct {
	ID    string
	Email string
}

// Anonymous reports whether the request carried no credentials.
func (i Identity) Anonymous() bool {
	return i.ID == ""
}

type identityKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by the authenticator, or the
// anonymous identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

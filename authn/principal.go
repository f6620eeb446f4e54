package authn

import (
	"context"

	"github.com/authserve/oauth2-server-go/storage"
)

// ClientPrincipal is the authenticated client attached to the request context
// after client authentication succeeds. Method records how the client proved
// itself.
type ClientPrincipal struct {
	Client *storage.Client
	Method string
}

type principalKey struct{}

// WithClientPrincipal attaches an authenticated client to the context.
func WithClientPrincipal(ctx context.Context, p *ClientPrincipal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// ClientPrincipalFromContext retrieves the authenticated client, if any.
func ClientPrincipalFromContext(ctx context.Context) (*ClientPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(*ClientPrincipal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// ClearClientPrincipal removes any authenticated client from the context.
// The endpoint filters call this on every failure path so no partially
// established identity survives into error handling.
func ClearClientPrincipal(ctx context.Context) context.Context {
	if _, ok := ClientPrincipalFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, (*ClientPrincipal)(nil))
}

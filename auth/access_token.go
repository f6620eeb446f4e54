package auth

import (
	"context"
	"errors"
	"time"

	"github.com/authserve/oauth2-server-go/internal/jwtauth"
	"github.com/authserve/oauth2-server-go/keys"
)

// AccessTokenAuthOption configures optional aspects of the RFC 9068 access
// token authenticator (scopes, algorithms, leeway, etc.).
type AccessTokenAuthOption func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// NewLocal returns an Authenticator that verifies this server's own RFC 9068
// access tokens against the local signing key.
//
// Required:
//   - issuer:   this server's issuer URL (the "iss" claim it signs)
//   - audience: expected audience claim; for tokens consumed by the server's
//     own endpoints this is the issuer URL again
func NewLocal(ks *keys.Source, issuer string, audience string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(cfg)
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	internal, err := jwtauth.NewLocal(ks, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// NewFromJWKSURI returns an Authenticator that verifies RFC 9068 access
// tokens against a remote JWK Set. Intended for resource servers running in a
// different process than the authorization server.
func NewFromJWKSURI(ctx context.Context, issuer string, audience string, jwksURI string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(cfg)
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	internal, err := jwtauth.NewFromJWKSURI(ctx, cfg, jwksURI)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the handler.
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfoAdapter{ui: ui}, nil
}

type userInfoAdapter struct{ ui jwtauth.UserInfo }

func (u userInfoAdapter) UserID() string       { return u.ui.UserID() }
func (u userInfoAdapter) Claims(ref any) error { return u.ui.Claims(ref) }

// Package jwtauth validates RFC 9068 JWT access tokens. The local
// authenticator verifies against this process's own signing key; the remote
// one fetches a JWKS over HTTP for out-of-process resource servers.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for access tokens: issuer, audience,
// scope, algorithm, and clock-skew policies.
type Config struct {
	Issuer string
	// ExpectedAudiences contains the accepted audiences. Empty skips the
	// audience check entirely; avoid that outside tests.
	ExpectedAudiences []string
	RequiredScopes    []string
	ScopeModeAny      bool // if true, any of RequiredScopes is sufficient; else all are required
	AllowedAlgs       []string
	Leeway            time.Duration
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// UserInfo is the internal user claims carrier for validated tokens.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates access tokens and returns a minimal UserInfo that
// exposes the subject and access to raw claims. Implementations MUST perform
// signature, issuer, audience and time validations.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// ErrUnauthorized indicates that the access token failed validation (e.g.,
// signature, issuer, audience, exp/nbf) and the request should be treated as
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrInsufficientScope indicates the token was valid but did not satisfy the
// required scopes policy; callers should respond with HTTP 403 where relevant.
var ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")

// allowAlgs wraps a keyfunc with an algorithm allowlist.
func allowAlgs(algs []string, kf jwt.Keyfunc) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		for _, a := range algs {
			if alg == a {
				return kf(t)
			}
		}
		return nil, fmt.Errorf("disallowed alg: %s", alg)
	}
}

// verify parses the token and applies the shared RFC 9068 checks.
func verify(cfg *Config, tok string, kf jwt.Keyfunc) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithLeeway(cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, allowAlgs(cfg.AllowedAlgs, kf))
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	// Header checks (RFC 9068 typ)
	if typ, _ := parsed.Header["typ"].(string); typ != "at+jwt" && typ != "application/at+jwt" {
		return nil, fmt.Errorf("%w: invalid typ; want at+jwt", ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if len(cfg.ExpectedAudiences) > 0 && !audIntersects(claims["aud"], cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	if len(cfg.RequiredScopes) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := map[string]bool{}
		for _, s := range strings.Fields(scopeStr) {
			have[s] = true
		}
		if cfg.ScopeModeAny {
			any := false
			for _, want := range cfg.RequiredScopes {
				if have[want] {
					any = true
					break
				}
			}
			if !any {
				return nil, ErrInsufficientScope
			}
		} else {
			for _, want := range cfg.RequiredScopes {
				if !have[want] {
					return nil, ErrInsufficientScope
				}
			}
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

type remoteAuthenticator struct {
	cfg     *Config
	keyfunc jwt.Keyfunc
}

// NewFromJWKSURI constructs an Authenticator that validates access tokens
// against a JWKS fetched from the given URI. Keys are auto-refreshed.
func NewFromJWKSURI(ctx context.Context, cfg *Config, jwksURI string) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &remoteAuthenticator{cfg: cfg, keyfunc: kf.Keyfunc}, nil
}

func (a *remoteAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return verify(a.cfg, tok, a.keyfunc)
}

func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}

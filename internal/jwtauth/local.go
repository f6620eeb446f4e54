package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/authserve/oauth2-server-go/keys"
)

// localAuthenticator verifies tokens against the process's own signing key.
// The compiled keyfunc is cached and rebuilt only when the key rotates.
type localAuthenticator struct {
	cfg  *Config
	keys *keys.Source

	mu  sync.Mutex
	kid string
	kf  jwt.Keyfunc
}

// NewLocal constructs an Authenticator over the server's own key source. Used
// by the endpoints that accept this server's access tokens (userinfo, client
// registration).
func NewLocal(ks *keys.Source, cfg *Config) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if ks == nil {
		return nil, errors.New("key source is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultConfig().Leeway
	}
	return &localAuthenticator{cfg: cfg, keys: ks}, nil
}

func (a *localAuthenticator) keyfunc() (jwt.Keyfunc, error) {
	_, kid := a.keys.Signer()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.kf == nil || a.kid != kid {
		b, err := a.keys.JWKSJSON()
		if err != nil {
			return nil, fmt.Errorf("jwks marshal failed: %w", err)
		}
		kf, err := keyfunc.NewJWKSetJSON(b)
		if err != nil {
			return nil, fmt.Errorf("jwks init failed: %w", err)
		}
		a.kf = kf.Keyfunc
		a.kid = kid
	}
	return a.kf, nil
}

func (a *localAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	kf, err := a.keyfunc()
	if err != nil {
		return nil, err
	}
	return verify(a.cfg, tok, kf)
}

// Package authtest provides canned authenticators for tests.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/authserve/oauth2-server-go/auth"
)

// Static is a test authenticator that accepts every non-empty token and
// returns a fixed principal with the configured claims.
type Static struct {
	Subject string
	Scopes  string // space-delimited "scope" claim
	Extra   map[string]any
}

// NewStatic creates a Static authenticator. If subject is empty, it defaults
// to "test-user".
func NewStatic(subject string) *Static {
	if subject == "" {
		subject = "test-user"
	}
	return &Static{Subject: subject}
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if tok == "" {
		return nil, auth.ErrUnauthorized
	}
	claims := map[string]any{"sub": s.Subject}
	if s.Scopes != "" {
		claims["scope"] = s.Scopes
	}
	for k, v := range s.Extra {
		claims[k] = v
	}
	return &staticUserInfo{sub: s.Subject, claims: claims}, nil
}

type staticUserInfo struct {
	sub    string
	claims map[string]any
}

func (u *staticUserInfo) UserID() string { return u.sub }

func (u *staticUserInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

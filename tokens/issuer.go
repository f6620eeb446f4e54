// Package tokens issues the credential material the grant providers hand
// out: RFC 9068 JWT access tokens, OpenID Connect ID Tokens, and opaque
// refresh tokens. The endpoint pipeline never constructs tokens itself; it
// orchestrates an Issuer through the providers.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/authserve/oauth2-server-go/keys"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultIDTokenTTL      = time.Hour
)

// Issuer signs access and ID tokens with the current key from a keys.Source
// and mints opaque refresh tokens.
type Issuer struct {
	issuer     string
	keys       *keys.Source
	accessTTL  time.Duration
	refreshTTL time.Duration
	idTTL      time.Duration
	now        func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithAccessTokenTTL overrides the default one hour access token lifetime.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(i *Issuer) { i.accessTTL = d }
}

// WithRefreshTokenTTL overrides the default thirty day refresh token lifetime.
func WithRefreshTokenTTL(d time.Duration) Option {
	return func(i *Issuer) { i.refreshTTL = d }
}

// WithIDTokenTTL overrides the default one hour ID Token lifetime.
func WithIDTokenTTL(d time.Duration) Option {
	return func(i *Issuer) { i.idTTL = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer constructs an Issuer for the given issuer identifier (the value
// of the iss claim, normally the server's public base URL).
func NewIssuer(issuer string, ks *keys.Source, opts ...Option) *Issuer {
	i := &Issuer{
		issuer:     issuer,
		keys:       ks,
		accessTTL:  defaultAccessTokenTTL,
		refreshTTL: defaultRefreshTokenTTL,
		idTTL:      defaultIDTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AccessTokenTTL reports the configured access token lifetime.
func (i *Issuer) AccessTokenTTL() time.Duration { return i.accessTTL }

// Issuer reports the iss claim value.
func (i *Issuer) Issuer() string { return i.issuer }

// AccessToken signs an RFC 9068 access token for the subject/client pair and
// returns the storage record keyed by the signed string.
func (i *Issuer) AccessToken(clientID, subject string, scopes []string) (*storage.AccessToken, error) {
	now := i.now()
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"iss":       i.issuer,
		"sub":       subject,
		"aud":       i.issuer,
		"client_id": clientID,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       now.Add(i.accessTTL).Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = oauth2.JoinScopes(scopes)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	key, kid := i.keys.Signer()
	tok.Header["kid"] = kid
	tok.Header["typ"] = "at+jwt"
	signed, err := tok.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &storage.AccessToken{
		Token:     signed,
		ID:        jti,
		ClientID:  clientID,
		Subject:   subject,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.accessTTL),
	}, nil
}

// IDToken signs an OpenID Connect ID Token. The nonce is echoed when the
// authorization request carried one.
func (i *Issuer) IDToken(clientID, subject, nonce string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"iss": i.issuer,
		"sub": subject,
		"aud": clientID,
		"iat": now.Unix(),
		"exp": now.Add(i.idTTL).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	key, kid := i.keys.Signer()
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// RefreshToken mints an opaque refresh token record. The caller persists it.
func (i *Issuer) RefreshToken(clientID, subject string, scopes []string) (*storage.RefreshToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	now := i.now()
	return &storage.RefreshToken{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		ClientID:  clientID,
		Subject:   subject,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.refreshTTL),
	}, nil
}

// AuthorizationCode mints an opaque single-use code record. TTL is fixed at
// five minutes per the usual RFC 6749 §4.1.2 guidance.
func (i *Issuer) AuthorizationCode(clientID, subject, redirectURI, nonce, challenge, challengeMethod string, scopes []string) (*storage.AuthorizationCode, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return &storage.AuthorizationCode{
		Code:                base64.RawURLEncoding.EncodeToString(raw),
		ClientID:            clientID,
		Subject:             subject,
		RedirectURI:         redirectURI,
		Scopes:              append([]string(nil), scopes...),
		Nonce:               nonce,
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
		ExpiresAt:           i.now().Add(5 * time.Minute),
	}, nil
}

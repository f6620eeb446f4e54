// Package storage defines the persistence interfaces the endpoint pipeline
// orchestrates: registered clients, authorization codes, issued tokens, and
// recorded consent decisions. The pipeline itself holds no state across
// requests; everything that outlives a request lives behind these interfaces.
package storage

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist or expired.
	ErrNotFound = errors.New("storage: not found")

	// ErrCodeAlreadyUsed indicates an authorization code was presented a
	// second time. Callers treat this as a replay and revoke what the first
	// use issued.
	ErrCodeAlreadyUsed = errors.New("storage: authorization code already used")
)

// Token endpoint authentication methods a client can register with.
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"
)

// Client is a registered OAuth2 client. Secrets are stored as SHA-256
// digests; the plaintext exists only in the registration response.
type Client struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name,omitempty"`
	SecretHash              []byte    `json:"secret_hash,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris,omitempty"`
	GrantTypes              []string  `json:"grant_types,omitempty"`
	ResponseTypes           []string  `json:"response_types,omitempty"`
	Scopes                  []string  `json:"scopes,omitempty"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"created_at"`
}

// Public reports whether the client authenticates with no credentials.
func (c *Client) Public() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// AllowsGrantType reports whether the client registered the grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI requires an exact match against a registered URI.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// VerifySecret compares a presented secret against the stored digest in
// constant time.
func (c *Client) VerifySecret(secret string) bool {
	if len(c.SecretHash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(c.SecretHash, HashSecret(secret)) == 1
}

// HashSecret derives the stored digest for a client secret.
func HashSecret(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}

// AuthorizationCode is the single-use grant produced by the authorization
// endpoint and consumed by the token endpoint.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	Subject             string    `json:"subject"`
	RedirectURI         string    `json:"redirect_uri,omitempty"`
	Scopes              []string  `json:"scopes,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	Used                bool      `json:"used"`

	// Filled in when the code is exchanged so a replay can revoke exactly
	// what the first exchange issued.
	IssuedAccessToken  string `json:"issued_access_token,omitempty"`
	IssuedRefreshToken string `json:"issued_refresh_token,omitempty"`
}

// AccessToken records an issued access token, keyed by the token string the
// client presents (the signed JWT). Introspection and revocation treat it as
// opaque.
type AccessToken struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"` // jti
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Scopes    []string  `json:"scopes,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken records an issued refresh token. Rotation keeps the old
// record with Rotated=true and a ReplacedBy link so a replayed old token can
// take down the whole chain.
type RefreshToken struct {
	Token      string    `json:"token"`
	ClientID   string    `json:"client_id"`
	Subject    string    `json:"subject"`
	Scopes     []string  `json:"scopes,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Rotated    bool      `json:"rotated"`
	ReplacedBy string    `json:"replaced_by,omitempty"`
}

// Consent is a resource owner's recorded approval of scopes for a client.
type Consent struct {
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Scopes    []string  `json:"scopes,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// ClientStore manages registered clients.
type ClientStore interface {
	GetClient(ctx context.Context, id string) (*Client, error)
	PutClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, id string) error
}

// CodeStore manages authorization codes.
type CodeStore interface {
	PutCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeCode atomically retrieves a code and marks it used. A second
	// consume of the same code returns the record together with
	// ErrCodeAlreadyUsed so the caller can revoke what the first use issued.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// UpdateCode rewrites a consumed code record (used to attach the issued
	// token identifiers for replay cleanup).
	UpdateCode(ctx context.Context, code *AuthorizationCode) error
}

// TokenStore manages issued access and refresh tokens.
type TokenStore interface {
	PutAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error

	PutRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	UpdateRefreshToken(ctx context.Context, token *RefreshToken) error
	DeleteRefreshToken(ctx context.Context, token string) error
}

// ConsentStore manages recorded consent decisions keyed by (client, subject).
type ConsentStore interface {
	GetConsent(ctx context.Context, clientID, subject string) (*Consent, error)
	PutConsent(ctx context.Context, consent *Consent) error
	DeleteConsent(ctx context.Context, clientID, subject string) error
}

// Store is the full persistence surface the endpoint handler requires.
type Store interface {
	ClientStore
	CodeStore
	TokenStore
	ConsentStore

	// Close releases backend resources.
	Close() error
}

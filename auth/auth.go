package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized reports that the presented access token is missing,
// malformed, expired, or failed signature verification.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope reports that the access token verified but its scope
// claim does not cover what the protected resource requires.
var ErrInsufficientScope = errors.New("insufficient scope")

// UserInfo is the identity a verified access token established. Values are
// immutable snapshots of the token's claim set and safe for concurrent use.
type UserInfo interface {
	// UserID returns the token's subject.
	UserID() string
	// Claims unmarshals the token's claim set into ref.
	Claims(ref any) error
}

// Authenticator verifies a bearer access token presented to a protected
// resource. Failures surface as ErrUnauthorized or ErrInsufficientScope so
// callers can map them onto the RFC 6750 challenge vocabulary.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

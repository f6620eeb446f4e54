// Package auth provides bearer token verification for the endpoints that
// accept this server's own access tokens: the OpenID Connect userinfo
// endpoint and the dynamic client registration endpoint.
//
// The public surface intentionally stays small: an Authenticator validates an
// incoming bearer token string and returns a UserInfo (or an error). The
// endpoint layer extracts the token from the HTTP request and maps sentinel
// errors into WWW-Authenticate challenges.
//
// NewLocal verifies against the server's own signing key without any network
// round trip. NewFromJWKSURI verifies against a remote JWKS and suits
// out-of-process resource servers consuming tokens this server issued.
//
// # Scopes
//
// WithRequiredScopes enforces that all provided scopes are present in the
// token's space-delimited scope claim; WithAnyRequiredScope relaxes this so
// at least one matches. Only one of these should be used per Authenticator
// configuration (subsequent calls overwrite scope mode).
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s).
package auth

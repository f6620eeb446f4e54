package authn

import "github.com/authserve/oauth2-server-go/oauth2"

// RedirectError is a protocol error that is safe to deliver to the client via
// its validated redirect URI. Providers return it only after the client_id
// and redirect_uri have been verified against the registration; a plain
// *oauth2.Error means the error must be rendered directly instead.
type RedirectError struct {
	Err         *oauth2.Error
	RedirectURI string
	State       string
}

func (e *RedirectError) Error() string { return e.Err.Error() }

func (e *RedirectError) Unwrap() error { return e.Err }

package endpointhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
)

// redirectWith sends a 302 to base with the given query parameters merged
// over any the URI already carries.
func redirectWith(w http.ResponseWriter, r *http.Request, base string, params url.Values) {
	u, err := url.Parse(base)
	if err != nil {
		writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "invalid redirect target"))
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// authorizeSuccess serializes the three terminal shapes of the authorization
// flow: a code redirect, an access_denied redirect, or a hop to the consent
// page carrying the original request parameters.
func (h *Handler) authorizeSuccess(w http.ResponseWriter, r *http.Request, res authn.Result) {
	switch v := res.(type) {
	case *authn.CodeResult:
		q := url.Values{oauth2.ParamCode: {v.Code}}
		if v.State != "" {
			q.Set(oauth2.ParamState, v.State)
		}
		redirectWith(w, r, v.RedirectURI, q)
	case *authn.DeniedResult:
		q := url.Values{oauth2.ParamError: {oauth2.ErrorCodeAccessDenied}}
		if v.State != "" {
			q.Set(oauth2.ParamState, v.State)
		}
		redirectWith(w, r, v.RedirectURI, q)
	case *authn.ConsentRequiredResult:
		q := url.Values{
			oauth2.ParamClientID: {v.ClientID},
			oauth2.ParamScope:    {oauth2.JoinScopes(v.RequestedScopes)},
		}
		if v.ClientName != "" {
			q.Set("client_name", v.ClientName)
		}
		for _, f := range []struct{ name, val string }{
			{oauth2.ParamState, v.State},
			{oauth2.ParamRedirectURI, v.RedirectURI},
			{oauth2.ParamNonce, v.Nonce},
			{oauth2.ParamCodeChallenge, v.CodeChallenge},
			{oauth2.ParamCodeChallengeMethod, v.CodeChallengeMethod},
		} {
			if f.val != "" {
				q.Set(f.name, f.val)
			}
		}
		redirectWith(w, r, h.consentURL, q)
	default:
		h.log.ErrorContext(r.Context(), "authz.result.unexpected", slog.String("type", resultType(res)))
		writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "internal error"))
	}
}

// authorizeFailure redirects protocol errors back to the client when the
// redirect URI was validated (RFC 6749 §4.1.2.1); everything else is rendered
// directly, never redirected.
func (h *Handler) authorizeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *authn.RedirectError
	if errors.As(err, &rerr) {
		q := url.Values{oauth2.ParamError: {rerr.Err.Code}}
		if rerr.Err.Description != "" {
			q.Set(oauth2.ParamErrorDescription, rerr.Err.Description)
		}
		if rerr.Err.URI != "" {
			q.Set(oauth2.ParamErrorURI, rerr.Err.URI)
		}
		if rerr.State != "" {
			q.Set(oauth2.ParamState, rerr.State)
		}
		redirectWith(w, r, rerr.RedirectURI, q)
		return
	}
	writeProtocolError(w, err)
}

func (h *Handler) tokenSuccess(w http.ResponseWriter, r *http.Request, res authn.Result) {
	tr, ok := res.(*authn.TokenResult)
	if !ok {
		h.log.ErrorContext(r.Context(), "token.result.unexpected", slog.String("type", resultType(res)))
		writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "internal error"))
		return
	}
	// RFC 6749 §5.1: responses carrying tokens must not be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tr.Response)
}

func (h *Handler) tokenFailure(w http.ResponseWriter, r *http.Request, err error) {
	var oerr *oauth2.Error
	if errors.As(err, &oerr) && oerr.Code == oauth2.ErrorCodeInvalidClient {
		// RFC 6749 §5.2: echo the challenge for the scheme the client used.
		w.Header().Set("WWW-Authenticate", `Basic realm="`+h.realm+`"`)
	}
	writeProtocolError(w, err)
}

func (h *Handler) introspectSuccess(w http.ResponseWriter, r *http.Request, res authn.Result) {
	ir, ok := res.(*authn.IntrospectionResult)
	if !ok {
		h.log.ErrorContext(r.Context(), "introspect.result.unexpected", slog.String("type", resultType(res)))
		writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ir.Response)
}

// revokeSuccess is the RFC 7009 §2.2 empty 200, identical whether or not a
// token was actually invalidated.
func (h *Handler) revokeSuccess(w http.ResponseWriter, r *http.Request, res authn.Result) {
	if _, ok := res.(*authn.RevocationResult); !ok {
		h.log.ErrorContext(r.Context(), "revoke.result.unexpected", slog.String("type", resultType(res)))
		writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "internal error"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func resultType(res authn.Result) string {
	switch res.(type) {
	case *authn.CodeResult:
		return "code"
	case *authn.ConsentRequiredResult:
		return "consent_required"
	case *authn.DeniedResult:
		return "denied"
	case *authn.TokenResult:
		return "token"
	case *authn.IntrospectionResult:
		return "introspection"
	case *authn.RevocationResult:
		return "revocation"
	default:
		return "unknown"
	}
}

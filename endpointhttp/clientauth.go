package endpointhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/internal/logctx"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

// withClientAuth authenticates the OAuth client before the endpoint pipeline
// runs, attaching the principal to the request context. Supported methods:
// client_secret_basic, client_secret_post, and none (public clients present
// only client_id). Failures answer 401 invalid_client without reaching the
// pipeline.
func (h *Handler) withClientAuth(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, oerr := h.authenticateClient(r)
		if oerr != nil {
			h.log.InfoContext(r.Context(), "client.auth.fail", slog.String("err", oerr.Error()))
			w.Header().Set("WWW-Authenticate", `Basic realm="`+h.realm+`"`)
			writeProtocolError(w, oerr)
			return
		}
		ctx := authn.WithClientPrincipal(r.Context(), principal)
		ctx = logctx.WithClientData(ctx, &logctx.ClientData{
			ClientID:   principal.Client.ID,
			AuthMethod: principal.Method,
		})
		h.log.InfoContext(ctx, "client.auth.ok")
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (h *Handler) authenticateClient(r *http.Request) (*authn.ClientPrincipal, *oauth2.Error) {
	invalidClient := oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidClient,
		"client authentication failed", oauth2.ErrorURITokenRequest)

	var clientID, clientSecret, method string
	if id, secret, ok := r.BasicAuth(); ok {
		clientID, clientSecret = id, secret
		method = storage.AuthMethodClientSecretBasic
	} else {
		params, perr := oauth2.ParseParams(r)
		if perr != nil {
			return nil, perr.(*oauth2.Error)
		}
		id, oerr := params.RequiredSingular(oauth2.ParamClientID, oauth2.ErrorURITokenRequest)
		if oerr != nil {
			return nil, invalidClient
		}
		secret, hasSecret, oerr := params.Singular(oauth2.ParamClientSecret, oauth2.ErrorURITokenRequest)
		if oerr != nil {
			return nil, invalidClient
		}
		clientID = id
		if hasSecret {
			clientSecret = secret
			method = storage.AuthMethodClientSecretPost
		} else {
			method = storage.AuthMethodNone
		}
	}

	client, err := h.store.GetClient(r.Context(), clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.log.ErrorContext(r.Context(), "client.load.fail", slog.String("err", err.Error()))
		}
		// Unknown client and bad secret are indistinguishable on the wire.
		return nil, invalidClient
	}

	switch method {
	case storage.AuthMethodNone:
		if !client.Public() {
			return nil, invalidClient
		}
	default:
		if client.TokenEndpointAuthMethod != method {
			return nil, invalidClient
		}
		if !client.VerifySecret(clientSecret) {
			return nil, invalidClient
		}
	}

	return &authn.ClientPrincipal{Client: client, Method: method}, nil
}

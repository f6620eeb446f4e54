package endpointhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/authserve/oauth2-server-go/auth"
)

// checkBearer validates the bearer token on an endpoint protected by this
// server's own access tokens. On failure it writes the WWW-Authenticate
// challenge and returns nil.
func (h *Handler) checkBearer(w http.ResponseWriter, r *http.Request) auth.UserInfo {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		h.writeChallenge(w, auth.NewAuthenticationRequired(h.realm))
		return nil
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authz, bearerPrefix) || len(authz) <= len(bearerPrefix) {
		h.writeChallenge(w, auth.NewInvalidAuthorizationHeader(h.realm))
		return nil
	}
	tok := strings.TrimSpace(authz[len(bearerPrefix):])

	ui, err := h.bearer.CheckAuthentication(r.Context(), tok)
	if err != nil {
		h.log.InfoContext(r.Context(), "bearer.check.fail", slog.String("err", err.Error()))
		if errors.Is(err, auth.ErrInsufficientScope) {
			h.writeChallenge(w, auth.NewInsufficientScopeResult(h.realm, ""))
			return nil
		}
		h.writeChallenge(w, auth.NewInvalidTokenResult(h.realm, "token validation failed"))
		return nil
	}
	return ui
}

func (h *Handler) writeChallenge(w http.ResponseWriter, c *auth.AuthenticationChallenge) {
	w.Header().Set("WWW-Authenticate", c.WWWAuthenticate)
	w.WriteHeader(c.Status)
}

// handleUserInfo serves the OpenID Connect userinfo endpoint. Claims beyond
// sub come straight from the presented access token.
func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	ui := h.checkBearer(w, r)
	if ui == nil {
		return
	}

	body := map[string]any{"sub": ui.UserID()}
	var claims struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&claims); err == nil && claims.Scope != "" {
		body["scope"] = claims.Scope
	}
	writeJSON(w, http.StatusOK, body)
}

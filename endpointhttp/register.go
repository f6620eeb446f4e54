package endpointhttp

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/authserve/oauth2-server-go/auth"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

// RFC 7591 §3.2.2 registration error codes.
const (
	errInvalidRedirectURI    = "invalid_redirect_uri"
	errInvalidClientMetadata = "invalid_client_metadata"
)

// clientMetadata is the RFC 7591 client metadata shape, shared by the
// registration request and response.
type clientMetadata struct {
	ClientID                string   `json:"client_id,omitempty"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   *int64   `json:"client_secret_expires_at,omitempty"`
	RegistrationClientURI   string   `json:"registration_client_uri,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// requireScope checks the space-delimited scope claim on the validated token.
func requireScope(ui auth.UserInfo, want string) bool {
	var claims struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&claims); err != nil {
		return false
	}
	return hasString(oauth2.ParseScopes(claims.Scope), want)
}

// handleRegisterClient serves POST registrations per RFC 7591. The bearer
// token must carry the client.create scope.
func (h *Handler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	ui := h.checkBearer(w, r)
	if ui == nil {
		return
	}
	if !requireScope(ui, oauth2.ScopeClientCreate) {
		h.writeChallenge(w, auth.NewInsufficientScopeResult(h.realm, oauth2.ScopeClientCreate))
		return
	}

	var req clientMetadata
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, oauth2.NewErrorWithURI(errInvalidClientMetadata,
			"request body is not valid client metadata", oauth2.ErrorURIRegistration))
		return
	}
	applyRegistrationDefaults(&req)
	if oerr := validateRegistration(&req); oerr != nil {
		writeJSON(w, http.StatusBadRequest, oerr)
		return
	}

	client := &storage.Client{
		ID:                      uuid.NewString(),
		Name:                    req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scopes:                  oauth2.ParseScopes(req.Scope),
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		CreatedAt:               time.Now(),
	}

	var plaintextSecret string
	if !client.Public() {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			h.log.ErrorContext(r.Context(), "register.secret.fail", slog.String("err", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		plaintextSecret = base64.RawURLEncoding.EncodeToString(raw)
		client.SecretHash = storage.HashSecret(plaintextSecret)
	}

	if err := h.store.PutClient(r.Context(), client); err != nil {
		h.log.ErrorContext(r.Context(), "register.store.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.InfoContext(r.Context(), "register.client.created",
		slog.String("client_id", client.ID),
		slog.String("sub", ui.UserID()))

	resp := h.clientResponse(client)
	if plaintextSecret != "" {
		resp.ClientSecret = plaintextSecret
		never := int64(0)
		resp.ClientSecretExpiresAt = &never
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleReadClient serves GET /register?client_id= lookups. The bearer token
// must carry the client.read scope. The stored secret digest is never
// disclosed.
func (h *Handler) handleReadClient(w http.ResponseWriter, r *http.Request) {
	ui := h.checkBearer(w, r)
	if ui == nil {
		return
	}
	if !requireScope(ui, oauth2.ScopeClientRead) {
		h.writeChallenge(w, auth.NewInsufficientScopeResult(h.realm, oauth2.ScopeClientRead))
		return
	}

	params, err := oauth2.ParseParams(r)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	clientID, oerr := params.RequiredSingular(oauth2.ParamClientID, oauth2.ErrorURIRegistration)
	if oerr != nil {
		writeJSON(w, http.StatusBadRequest, oerr)
		return
	}

	client, err := h.store.GetClient(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.ErrorContext(r.Context(), "register.load.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.clientResponse(client))
}

func (h *Handler) clientResponse(c *storage.Client) *clientMetadata {
	return &clientMetadata{
		ClientID:                c.ID,
		ClientIDIssuedAt:        c.CreatedAt.Unix(),
		RegistrationClientURI:   h.registerURL + "?client_id=" + url.QueryEscape(c.ID),
		ClientName:              c.Name,
		RedirectURIs:            c.RedirectURIs,
		GrantTypes:              c.GrantTypes,
		ResponseTypes:           c.ResponseTypes,
		Scope:                   oauth2.JoinScopes(c.Scopes),
		TokenEndpointAuthMethod: c.TokenEndpointAuthMethod,
	}
}

func applyRegistrationDefaults(req *clientMetadata) {
	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []string{oauth2.GrantTypeAuthorizationCode}
	}
	if len(req.ResponseTypes) == 0 && hasString(req.GrantTypes, oauth2.GrantTypeAuthorizationCode) {
		req.ResponseTypes = []string{"code"}
	}
	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = storage.AuthMethodClientSecretBasic
	}
}

func validateRegistration(req *clientMetadata) *oauth2.Error {
	switch req.TokenEndpointAuthMethod {
	case storage.AuthMethodClientSecretBasic, storage.AuthMethodClientSecretPost, storage.AuthMethodNone:
	default:
		return oauth2.NewErrorWithURI(errInvalidClientMetadata,
			"unsupported token_endpoint_auth_method", oauth2.ErrorURIRegistration)
	}
	for _, gt := range req.GrantTypes {
		switch gt {
		case oauth2.GrantTypeAuthorizationCode, oauth2.GrantTypeRefreshToken, oauth2.GrantTypeClientCredentials:
		default:
			return oauth2.NewErrorWithURI(errInvalidClientMetadata,
				"unsupported grant type: "+gt, oauth2.ErrorURIRegistration)
		}
	}
	if hasString(req.GrantTypes, oauth2.GrantTypeAuthorizationCode) && len(req.RedirectURIs) == 0 {
		return oauth2.NewErrorWithURI(errInvalidRedirectURI,
			"redirect_uris is required for the authorization_code grant", oauth2.ErrorURIRegistration)
	}
	for _, raw := range req.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return oauth2.NewErrorWithURI(errInvalidRedirectURI,
				"redirect URIs must be absolute and fragment-free", oauth2.ErrorURIRegistration)
		}
	}
	if hasString(req.GrantTypes, oauth2.GrantTypeClientCredentials) &&
		req.TokenEndpointAuthMethod == storage.AuthMethodNone {
		return oauth2.NewErrorWithURI(errInvalidClientMetadata,
			"client_credentials requires a confidential client", oauth2.ErrorURIRegistration)
	}
	return nil
}

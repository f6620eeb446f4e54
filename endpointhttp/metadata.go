package endpointhttp

import (
	"log/slog"
	"net/http"
)

// Discovery documents and keys change rarely; let clients cache briefly.
const metadataCacheControl = "public, max-age=3600"

func setMetadataHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", metadataCacheControl)
}

// handleGetASMetadata serves the RFC 8414 authorization server metadata.
func (h *Handler) handleGetASMetadata(w http.ResponseWriter, r *http.Request) {
	setMetadataHeaders(w)
	writeJSON(w, http.StatusOK, h.asMetadata)
}

// handleGetOIDCConfiguration serves the OpenID Connect discovery document.
func (h *Handler) handleGetOIDCConfiguration(w http.ResponseWriter, r *http.Request) {
	setMetadataHeaders(w)
	writeJSON(w, http.StatusOK, h.oidcMetadata)
}

// handleGetJWKS serves the public half of the signing key set.
func (h *Handler) handleGetJWKS(w http.ResponseWriter, r *http.Request) {
	b, err := h.keys.JWKSJSON()
	if err != nil {
		h.log.ErrorContext(r.Context(), "jwks.encode.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	setMetadataHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// handleOptionsMetadata answers CORS preflight for the discovery endpoints.
func (h *Handler) handleOptionsMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
)

// KeysHandler manages the API keys of the authenticated owner.
type KeysHandler struct {
	creds  *service.CredentialService
	logger *slog.Logger
}

// NewKeysHandler creates a new KeysHandler.
func NewKeysHandler(creds *service.CredentialService, logger *slog.Logger) *KeysHandler {
	return &KeysHandler{creds: creds, logger: logger}
}

// keyView is the listing form of a credential: no secret, no fingerprint,
// only the short display prefix.
type keyView struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Prefix     string           `json:"prefix"`
	Permission model.Permission `json:"permission"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toKeyView(c *model.Credential) keyView {
	return keyView{
		ID:         c.ID,
		Name:       c.Name,
		Prefix:     c.DisplayPrefix(),
		Permission: c.Permission,
		ExpiresAt:  c.ExpiresAt,
		CreatedAt:  c.CreatedAt,
	}
}

// List returns the owner's active (non-revoked) keys.
// GET /api/v1/keys
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	keys, err := h.creds.ListActive(r.Context(), p.OwnerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list keys")
		return
	}

	resources := make([]keyView, 0, len(keys))
	for i := range keys {
		resources = append(resources, toKeyView(&keys[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// createKeyRequest is the expected payload for Create.
type createKeyRequest struct {
	Name          string           `json:"name"`
	Permission    model.Permission `json:"permission"`
	ExpiresInDays *int             `json:"expires_in_days,omitempty"`
}

// createKeyResponse includes the plaintext key (shown once only).
type createKeyResponse struct {
	keyView
	Key string `json:"api_key"`
}

// Create generates a new key for the owner and returns the plaintext secret
// exactly once.
// POST /api/v1/keys
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req createKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	c, err := h.creds.Create(r.Context(), service.CreateCredentialRequest{
		OwnerID:       p.OwnerID,
		Name:          req.Name,
		Permission:    req.Permission,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "create key")
		return
	}

	h.logger.Info("api key created", "owner_id", c.OwnerID, "key_id", c.ID, "prefix", c.DisplayPrefix())
	writeJSON(w, http.StatusCreated, createKeyResponse{keyView: toKeyView(c), Key: c.Secret})
}

// Revoke revokes one of the owner's keys. Unknown keys and keys of other
// owners both answer 404.
// DELETE /api/v1/keys/{keyId}
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	idStr := chi.URLParam(r, "keyId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid key ID: "+idStr)
		return
	}

	ok, err := h.creds.Revoke(r.Context(), id, p.OwnerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "revoke key")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "API key not found: "+idStr)
		return
	}

	h.logger.Info("api key revoked", "owner_id", p.OwnerID, "key_id", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key revoked",
	})
}

package apikey

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

const maxExpiryDays = 365

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("handler", "apikey"),
	}
}

// RegisterRoutes mounts key management on an admin-only group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/apikeys", h.List)
	g.POST("/apikeys", h.Create)
	g.DELETE("/apikeys/:id", h.Delete)
}

func keyToResponse(k *APIKey) dto.APIKeyResponse {
	return dto.APIKeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		Prefix:    k.Prefix,
		CreatedAt: shared.FormatTime(k.CreatedAt),
		ExpiresAt: shared.FormatTimePtr(k.ExpiresAt),
		LastUsed:  shared.FormatTimePtr(k.LastUsedAt),
	}
}

// List godoc
// @Summary      List API keys
// @Description  Returns every admin integration key
// @Tags         admin
// @Produce      json
// @Success      200  {object}  dto.APIKeyListResponse
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/apikeys [get]
func (h *Handler) List(c echo.Context) error {
	keys, err := h.store.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list API keys", "error", err)
		return shared.InternalError("list_failed", "failed to list API keys")
	}

	response := make([]dto.APIKeyResponse, len(keys))
	for i, k := range keys {
		response[i] = keyToResponse(k)
	}
	return c.JSON(http.StatusOK, dto.APIKeyListResponse{APIKeys: response})
}

// Create godoc
// @Summary      Create an API key
// @Description  Issues an integration key acting as the calling admin. The secret is only returned once.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CreateAPIKeyRequest  true  "API key details"
// @Success      201      {object}  dto.CreateAPIKeyResponse
// @Failure      400      {object}  shared.APIError
// @Failure      401      {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/apikeys [post]
func (h *Handler) Create(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.CreateAPIKeyRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	key := &APIKey{
		OwnerID: userID,
		Name:    req.Name,
	}
	if req.ExpiresIn != nil {
		days := *req.ExpiresIn
		if days < 1 || days > maxExpiryDays {
			return shared.BadRequest("invalid_expiry", "expires_in_days must be between 1 and 365")
		}
		expiresAt := time.Now().UTC().AddDate(0, 0, days)
		key.ExpiresAt = &expiresAt
	}

	secret, err := h.store.Create(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("failed to create API key", "error", err, "user_id", userID)
		return shared.InternalError("create_failed", "failed to create API key")
	}
	h.logger.Info("api key created", "key_id", key.ID, "user_id", userID)

	resp := keyToResponse(key)
	return c.JSON(http.StatusCreated, dto.CreateAPIKeyResponse{
		ID:        resp.ID,
		Name:      resp.Name,
		Prefix:    resp.Prefix,
		CreatedAt: resp.CreatedAt,
		ExpiresAt: resp.ExpiresAt,
		Secret:    secret,
	})
}

// Delete godoc
// @Summary      Revoke an API key
// @Tags         admin
// @Param        id  path  string  true  "API Key ID"
// @Success      204  "No Content"
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/apikeys/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	keyID := c.Param("id")
	if err := h.store.Delete(c.Request().Context(), keyID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("key_not_found", "API key not found")
		}
		h.logger.Error("failed to delete API key", "error", err, "key_id", keyID)
		return shared.InternalError("delete_failed", "failed to delete API key")
	}
	h.logger.Info("api key revoked", "key_id", keyID)
	return c.NoContent(http.StatusNoContent)
}

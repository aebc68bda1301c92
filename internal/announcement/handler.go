package announcement

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

type Handler struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("handler", "announcement"), now: time.Now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Current)
}

func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/announcements", h.List)
	g.POST("/announcements", h.Create)
	g.DELETE("/announcements/:id", h.Delete)
}

func toResponse(a *Announcement) dto.AnnouncementResponse {
	return dto.AnnouncementResponse{
		ID:          a.ID,
		Title:       a.Title,
		Body:        a.Body,
		Audience:    string(a.Audience),
		PublishedAt: shared.FormatTime(a.PublishedAt),
		ExpiresAt:   shared.FormatTimePtr(a.ExpiresAt),
	}
}

func toResponses(items []*Announcement) []dto.AnnouncementResponse {
	out := make([]dto.AnnouncementResponse, len(items))
	for i, a := range items {
		out[i] = toResponse(a)
	}
	return out
}

// @Summary      Current announcements
// @Description  Announcements visible to the caller's role
// @Tags         announcements
// @Produce      json
// @Success      200  {object}  dto.AnnouncementListResponse
// @Security     BearerAuth
// @Router       /announcements [get]
func (h *Handler) Current(c echo.Context) error {
	role := shared.RoleCustomer
	if claims := auth.GetClaims(c); claims != nil {
		role = claims.Role
	}

	items, err := h.store.Current(c.Request().Context(), AudiencesFor(role), h.now(), 20)
	if err != nil {
		h.logger.Error("failed to list announcements", "error", err)
		return shared.InternalError("list_failed", "failed to list announcements")
	}
	return c.JSON(http.StatusOK, dto.AnnouncementListResponse{Announcements: toResponses(items)})
}

func (h *Handler) List(c echo.Context) error {
	limit, offset := shared.Pagination(c, 50, 200)
	items, err := h.store.List(c.Request().Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list announcements", "error", err)
		return shared.InternalError("list_failed", "failed to list announcements")
	}
	return c.JSON(http.StatusOK, dto.AnnouncementListResponse{Announcements: toResponses(items)})
}

// @Summary      Publish an announcement
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateAnnouncementRequest  true  "Announcement"
// @Success      201   {object}  dto.AnnouncementResponse
// @Failure      400   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/announcements [post]
func (h *Handler) Create(c echo.Context) error {
	var req dto.CreateAnnouncementRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	a := &Announcement{
		Title:       req.Title,
		Body:        req.Body,
		Audience:    Audience(req.Audience),
		PublishedAt: h.now().UTC(),
	}
	if claims := auth.GetClaims(c); claims != nil {
		a.CreatedBy = claims.UserID
	}

	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return shared.BadRequest("invalid_expires_at", "expires_at must be an RFC3339 timestamp")
		}
		if !t.After(a.PublishedAt) {
			return shared.BadRequest("invalid_expires_at", "expires_at must be in the future")
		}
		t = t.UTC()
		a.ExpiresAt = &t
	}

	if err := h.store.Create(c.Request().Context(), a); err != nil {
		h.logger.Error("failed to create announcement", "error", err)
		return shared.InternalError("create_failed", "failed to create announcement")
	}
	return c.JSON(http.StatusCreated, toResponse(a))
}

func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("announcement_not_found", "announcement not found")
		}
		h.logger.Error("failed to delete announcement", "error", err, "id", id)
		return shared.InternalError("delete_failed", "failed to delete announcement")
	}
	return c.NoContent(http.StatusNoContent)
}

package inquiry

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/notify"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store      *Store
	notifier   *notify.Notifier
	adminEmail string
	logger     *slog.Logger
}

func NewHandler(store *Store, notifier *notify.Notifier, adminEmail string, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		notifier:   notifier,
		adminEmail: adminEmail,
		logger:     logger.With("handler", "inquiry"),
	}
}

// RegisterPublicRoutes mounts the contact form. limit is applied to the
// submit route only.
func (h *Handler) RegisterPublicRoutes(g *echo.Group, limit echo.MiddlewareFunc) {
	if limit != nil {
		g.POST("", h.Create, limit)
		return
	}
	g.POST("", h.Create)
}

func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/inquiries", h.List)
	g.POST("/inquiries/:id/resolve", h.Resolve)
}

func toResponse(q *Inquiry) dto.InquiryResponse {
	return dto.InquiryResponse{
		ID:         q.ID,
		Name:       q.Name,
		Email:      q.Email,
		Subject:    q.Subject,
		Message:    q.Message,
		Status:     string(q.Status),
		ResolvedAt: shared.FormatTimePtr(q.ResolvedAt),
		CreatedAt:  shared.FormatTime(q.CreatedAt),
	}
}

// @Summary      Submit a contact inquiry
// @Tags         inquiries
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateInquiryRequest  true  "Inquiry"
// @Success      201   {object}  dto.InquiryResponse
// @Failure      400   {object}  shared.APIError
// @Failure      429   {object}  shared.APIError
// @Router       /inquiries [post]
func (h *Handler) Create(c echo.Context) error {
	var req dto.CreateInquiryRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	q := &Inquiry{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Subject: strings.TrimSpace(req.Subject),
		Message: strings.TrimSpace(req.Message),
	}
	if err := h.store.Create(c.Request().Context(), q); err != nil {
		h.logger.Error("failed to create inquiry", "error", err)
		return shared.InternalError("create_failed", "failed to submit inquiry")
	}

	if h.notifier != nil && h.adminEmail != "" {
		h.notifier.Dispatch(notify.Message{
			ToEmail: h.adminEmail,
			Subject: "New inquiry: " + q.Subject,
			Text:    fmt.Sprintf("From %s <%s>\n\n%s", q.Name, q.Email, q.Message),
		})
	}

	return c.JSON(http.StatusCreated, toResponse(q))
}

func (h *Handler) List(c echo.Context) error {
	status := Status(c.QueryParam("status"))
	if status != "" && status != StatusOpen && status != StatusResolved {
		return shared.BadRequest("invalid_status", "status must be open or resolved")
	}
	limit, offset := shared.Pagination(c, 20, 100)

	items, err := h.store.List(c.Request().Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list inquiries", "error", err)
		return shared.InternalError("list_failed", "failed to list inquiries")
	}

	out := make([]dto.InquiryResponse, len(items))
	for i, q := range items {
		out[i] = toResponse(q)
	}
	return c.JSON(http.StatusOK, dto.InquiryListResponse{Inquiries: out, Limit: limit, Offset: offset})
}

func (h *Handler) Resolve(c echo.Context) error {
	var adminID string
	if claims := auth.GetClaims(c); claims != nil {
		adminID = claims.UserID
	}

	q, err := h.store.Resolve(c.Request().Context(), c.Param("id"), adminID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("inquiry_not_found", "inquiry not found")
		}
		h.logger.Error("failed to resolve inquiry", "error", err)
		return shared.InternalError("resolve_failed", "failed to resolve inquiry")
	}
	return c.JSON(http.StatusOK, toResponse(q))
}

package expert

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/user"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

// SessionVerifier reports whether a customer has completed a session with an
// expert, which is required before leaving a review.
type SessionVerifier interface {
	HasCompletedSession(ctx context.Context, customerID, expertID string) (bool, error)
}

type Handler struct {
	store      *Store
	userStore  *user.Store
	embeddings EmbeddingService
	sessions   SessionVerifier
	logger     *slog.Logger
}

func NewHandler(store *Store, userStore *user.Store, embeddings EmbeddingService, sessions SessionVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		userStore:  userStore,
		embeddings: embeddings,
		sessions:   sessions,
		logger:     logger,
	}
}

// RegisterRoutes mounts the profile routes for the authenticated user.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/me", h.Become)
	g.GET("/me", h.GetMine)
	g.PUT("/me", h.UpdateMine)
}

func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/experts/:id/verify", h.Verify)
}

func ToResponse(e *Expert, u *user.User) dto.ExpertResponse {
	resp := dto.ExpertResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		Headline:        e.Headline,
		Bio:             e.Bio,
		Category:        string(e.Category),
		Skills:          e.Skills,
		Languages:       e.Languages,
		HourlyRate:      e.HourlyRate,
		Currency:        e.Currency,
		YearsExperience: e.YearsExperience,
		IsVerified:      e.IsVerified,
		IsAvailable:     e.IsAvailable,
		AvgRating:       e.AvgRating,
		TotalReviews:    e.TotalReviews,
		TotalSessions:   e.TotalSessions,
		CreatedAt:       shared.FormatTime(e.CreatedAt),
	}
	if u != nil {
		resp.Name = u.Name
		resp.AvatarURL = u.AvatarURL
	}
	return resp
}

func (h *Handler) toResponses(ctx context.Context, experts []*Expert) []dto.ExpertResponse {
	ids := make([]string, len(experts))
	for i, e := range experts {
		ids[i] = e.UserID
	}

	users, err := h.userStore.GetByIDs(ctx, ids)
	if err != nil {
		h.logger.Warn("failed to load expert users", "error", err)
		users = map[string]*user.User{}
	}

	out := make([]dto.ExpertResponse, len(experts))
	for i, e := range experts {
		out[i] = ToResponse(e, users[e.UserID])
	}
	return out
}

func (h *Handler) index(ctx context.Context, e *Expert) {
	if h.embeddings == nil {
		return
	}
	vec, err := h.embeddings.Generate(ctx, e.Document())
	if err != nil {
		h.logger.Warn("failed to embed expert", "error", err, "expert_id", e.ID)
		return
	}
	if err := h.store.UpsertEmbedding(ctx, e, vec); err != nil && !errors.Is(err, ErrSearchUnavailable) {
		h.logger.Warn("failed to index expert", "error", err, "expert_id", e.ID)
	}
}

// @Summary      Become an expert
// @Description  Creates an expert profile for the current user and grants the expert role
// @Tags         experts
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateExpertRequest  true  "Profile"
// @Success      201   {object}  dto.ExpertResponse
// @Failure      400   {object}  shared.APIError
// @Failure      409   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /experts/me [post]
func (h *Handler) Become(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.CreateExpertRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	u, err := h.userStore.GetByID(ctx, userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}

	e := &Expert{
		UserID:          userID,
		Headline:        strings.TrimSpace(req.Headline),
		Bio:             req.Bio,
		Category:        shared.ExpertCategory(req.Category),
		Skills:          normalizeTags(req.Skills),
		Languages:       normalizeTags(req.Languages),
		HourlyRate:      req.HourlyRate,
		Currency:        strings.ToUpper(req.Currency),
		YearsExperience: req.YearsExperience,
		IsAvailable:     true,
	}

	if err := h.store.Create(ctx, e); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("already_expert", "an expert profile already exists")
		}
		h.logger.Error("failed to create expert", "error", err, "user_id", userID)
		return shared.InternalError("create_failed", "failed to create expert profile")
	}

	if u.Role == shared.RoleCustomer {
		if err := h.userStore.SetRole(ctx, userID, shared.RoleExpert); err != nil {
			h.logger.Error("failed to grant expert role", "error", err, "user_id", userID)
		}
	}

	h.index(ctx, e)
	h.logger.Info("expert profile created", "expert_id", e.ID, "user_id", userID)
	return c.JSON(http.StatusCreated, ToResponse(e, u))
}

// @Summary      Get own expert profile
// @Tags         experts
// @Produce      json
// @Success      200  {object}  dto.ExpertResponse
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /experts/me [get]
func (h *Handler) GetMine(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	e, err := h.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "no expert profile")
		}
		return shared.InternalError("get_failed", "failed to get expert profile")
	}

	u, _ := h.userStore.GetByID(ctx, userID)
	return c.JSON(http.StatusOK, ToResponse(e, u))
}

// @Summary      Update own expert profile
// @Tags         experts
// @Accept       json
// @Produce      json
// @Param        body  body      dto.UpdateExpertRequest  true  "Fields to change"
// @Success      200   {object}  dto.ExpertResponse
// @Failure      400   {object}  shared.APIError
// @Failure      404   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /experts/me [put]
func (h *Handler) UpdateMine(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.UpdateExpertRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	e, err := h.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "no expert profile")
		}
		return shared.InternalError("get_failed", "failed to get expert profile")
	}

	if req.Headline != nil {
		e.Headline = strings.TrimSpace(*req.Headline)
	}
	if req.Bio != nil {
		e.Bio = *req.Bio
	}
	if req.Category != nil {
		e.Category = shared.ExpertCategory(*req.Category)
	}
	if req.Skills != nil {
		e.Skills = normalizeTags(req.Skills)
	}
	if req.Languages != nil {
		e.Languages = normalizeTags(req.Languages)
	}
	if req.HourlyRate != nil {
		e.HourlyRate = *req.HourlyRate
	}
	if req.YearsExperience != nil {
		e.YearsExperience = *req.YearsExperience
	}
	if req.IsAvailable != nil {
		e.IsAvailable = *req.IsAvailable
	}

	if err := h.store.Update(ctx, e); err != nil {
		h.logger.Error("failed to update expert", "error", err, "expert_id", e.ID)
		return shared.InternalError("update_failed", "failed to update expert profile")
	}

	h.index(ctx, e)
	u, _ := h.userStore.GetByID(ctx, userID)
	return c.JSON(http.StatusOK, ToResponse(e, u))
}

// @Summary      Verify an expert
// @Tags         admin
// @Accept       json
// @Param        id    path  string                    true  "Expert ID"
// @Param        body  body  dto.VerifyExpertRequest   true  "Verification flag"
// @Success      204
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/experts/{id}/verify [post]
func (h *Handler) Verify(c echo.Context) error {
	var req dto.VerifyExpertRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	id := c.Param("id")
	if err := h.store.SetVerified(c.Request().Context(), id, req.Verified); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "expert not found")
		}
		h.logger.Error("failed to verify expert", "error", err, "expert_id", id)
		return shared.InternalError("update_failed", "failed to update expert")
	}

	h.logger.Info("expert verification changed", "expert_id", id, "verified", req.Verified)
	return c.NoContent(http.StatusNoContent)
}

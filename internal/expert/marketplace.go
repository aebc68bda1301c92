package expert

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

// RegisterPublicRoutes mounts the browse endpoints. Creating a review needs
// the authenticate middleware passed in.
func (h *Handler) RegisterPublicRoutes(g *echo.Group, authenticate echo.MiddlewareFunc) {
	g.GET("", h.List)
	g.GET("/search", h.Search)
	g.GET("/:id", h.Get)
	g.GET("/:id/reviews", h.GetReviews)
	g.POST("/:id/reviews", h.CreateReview, authenticate)
}

// @Summary      List experts
// @Description  Available experts sorted by rating
// @Tags         experts
// @Produce      json
// @Param        category  query     string  false  "Filter by category"
// @Param        verified  query     bool    false  "Only verified experts"
// @Param        limit     query     int     false  "Number of results (default 20, max 100)"
// @Param        offset    query     int     false  "Offset for pagination"
// @Success      200       {object}  dto.ExpertListResponse
// @Router       /experts [get]
func (h *Handler) List(c echo.Context) error {
	limit, offset := shared.Pagination(c, 20, 100)

	filter := ListFilter{Category: shared.ExpertCategory(c.QueryParam("category"))}
	if v, err := strconv.ParseBool(c.QueryParam("verified")); err == nil {
		filter.VerifiedOnly = v
	}

	ctx := c.Request().Context()
	experts, err := h.store.List(ctx, filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list experts", "error", err)
		return shared.InternalError("list_failed", "failed to list experts")
	}

	return c.JSON(http.StatusOK, dto.ExpertListResponse{
		Experts: h.toResponses(ctx, experts),
		Limit:   limit,
		Offset:  offset,
	})
}

// @Summary      Search experts
// @Tags         experts
// @Produce      json
// @Param        q      query     string  true   "Search query"
// @Param        limit  query     int     false  "Number of results (default 10, max 50)"
// @Success      200    {object}  dto.ExpertSearchResponse
// @Failure      400    {object}  shared.APIError
// @Router       /experts/search [get]
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return shared.BadRequest("missing_query", "search query is required")
	}

	limit, _ := shared.Pagination(c, 10, 50)
	ctx := c.Request().Context()

	var experts []*Expert
	var err error
	if h.embeddings != nil {
		var vec []float32
		vec, err = h.embeddings.Generate(ctx, query)
		if err == nil {
			experts, err = h.store.SearchByEmbedding(ctx, vec, limit)
		}
	} else {
		err = ErrSearchUnavailable
	}

	if err != nil {
		if !errors.Is(err, ErrSearchUnavailable) {
			h.logger.Warn("vector search failed, using text search", "error", err)
		}
		experts, err = h.store.SearchText(ctx, query, limit)
		if err != nil {
			h.logger.Error("text search failed", "error", err)
			return shared.InternalError("search_failed", "failed to search experts")
		}
	}

	available := experts[:0]
	for _, e := range experts {
		if e.IsAvailable {
			available = append(available, e)
		}
	}

	return c.JSON(http.StatusOK, dto.ExpertSearchResponse{Experts: h.toResponses(ctx, available)})
}

// @Summary      Get an expert
// @Tags         experts
// @Produce      json
// @Param        id   path      string  true  "Expert ID"
// @Success      200  {object}  dto.ExpertResponse
// @Failure      404  {object}  shared.APIError
// @Router       /experts/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	e, err := h.store.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "expert not found")
		}
		return shared.InternalError("get_failed", "failed to get expert")
	}

	u, _ := h.userStore.GetByID(ctx, e.UserID)
	return c.JSON(http.StatusOK, ToResponse(e, u))
}

func reviewToResponse(r *Review) dto.ReviewResponse {
	return dto.ReviewResponse{
		ID:        r.ID,
		ExpertID:  r.ExpertID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Body:      r.Body,
		CreatedAt: shared.FormatTime(r.CreatedAt),
	}
}

// @Summary      Get expert reviews
// @Tags         experts
// @Produce      json
// @Param        id      path      string  true   "Expert ID"
// @Param        limit   query     int     false  "Number of results (default 20, max 100)"
// @Param        offset  query     int     false  "Offset for pagination"
// @Success      200     {object}  dto.ReviewListResponse
// @Failure      404     {object}  shared.APIError
// @Router       /experts/{id}/reviews [get]
func (h *Handler) GetReviews(c echo.Context) error {
	expertID := c.Param("id")
	limit, offset := shared.Pagination(c, 20, 100)
	ctx := c.Request().Context()

	if _, err := h.store.GetByID(ctx, expertID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "expert not found")
		}
		return shared.InternalError("get_failed", "failed to get expert")
	}

	reviews, err := h.store.GetReviews(ctx, expertID, limit, offset)
	if err != nil {
		return shared.InternalError("get_reviews_failed", "failed to get reviews")
	}

	response := make([]dto.ReviewResponse, len(reviews))
	for i, r := range reviews {
		response[i] = reviewToResponse(r)
	}

	return c.JSON(http.StatusOK, dto.ReviewListResponse{
		Reviews: response,
		Limit:   limit,
		Offset:  offset,
	})
}

// @Summary      Review an expert
// @Description  Requires a completed session with the expert; one review per user
// @Tags         experts
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "Expert ID"
// @Param        body  body      dto.CreateReviewRequest  true  "Review"
// @Success      201   {object}  dto.ReviewResponse
// @Failure      403   {object}  shared.APIError
// @Failure      409   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /experts/{id}/reviews [post]
func (h *Handler) CreateReview(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.CreateReviewRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	expertID := c.Param("id")
	ctx := c.Request().Context()

	e, err := h.store.GetByID(ctx, expertID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("expert_not_found", "expert not found")
		}
		return shared.InternalError("get_failed", "failed to get expert")
	}

	if e.UserID == userID {
		return shared.Forbidden("own_profile", "you cannot review yourself")
	}

	if h.sessions != nil {
		ok, err := h.sessions.HasCompletedSession(ctx, userID, expertID)
		if err != nil {
			h.logger.Error("failed to check sessions", "error", err, "user_id", userID)
			return shared.InternalError("review_failed", "failed to create review")
		}
		if !ok {
			return shared.Forbidden("no_completed_session", "you can only review experts after a completed session")
		}
	}

	review := &Review{
		ExpertID: expertID,
		UserID:   userID,
		Rating:   req.Rating,
		Body:     req.Body,
	}

	if err := h.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("already_reviewed", "you have already reviewed this expert")
		}
		h.logger.Error("failed to create review", "error", err, "expert_id", expertID)
		return shared.InternalError("review_failed", "failed to create review")
	}

	return c.JSON(http.StatusCreated, reviewToResponse(review))
}

package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	store  *Store
	logger *slog.Logger
}

func NewAdminHandler(store *Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/users", h.List)
	g.POST("/users/:id/block", h.Block)
	g.PUT("/users/:id/role", h.SetRole)
}

// @Summary      List users
// @Tags         admin
// @Produce      json
// @Param        role    query     string  false  "customer|expert|admin"
// @Param        q       query     string  false  "Name or email fragment"
// @Success      200     {object}  dto.UserListResponse
// @Security     BearerAuth
// @Router       /admin/users [get]
func (h *AdminHandler) List(c echo.Context) error {
	limit, offset := shared.Pagination(c, 50, 200)
	filter := ListFilter{
		Role:  shared.Role(c.QueryParam("role")),
		Query: c.QueryParam("q"),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return shared.BadRequest("invalid_role", "unknown role")
	}

	users, err := h.store.List(c.Request().Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		return shared.InternalError("list_failed", "failed to list users")
	}

	resp := make([]dto.MeResponse, len(users))
	for i, u := range users {
		resp[i] = ToResponse(u)
	}
	return c.JSON(http.StatusOK, dto.UserListResponse{Users: resp, Limit: limit, Offset: offset})
}

// @Summary      Block or unblock a user
// @Tags         admin
// @Accept       json
// @Param        id    path  string                 true  "User ID"
// @Param        body  body  dto.BlockUserRequest   true  "Block flag"
// @Success      204
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/users/{id}/block [post]
func (h *AdminHandler) Block(c echo.Context) error {
	var req dto.BlockUserRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	id := c.Param("id")
	if claims := auth.GetClaims(c); claims != nil && claims.UserID == id {
		return shared.BadRequest("self_block", "you cannot block yourself")
	}

	if err := h.store.SetBlocked(c.Request().Context(), id, req.Blocked); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("user_not_found", "user not found")
		}
		h.logger.Error("failed to block user", "error", err, "user_id", id)
		return shared.InternalError("update_failed", "failed to update user")
	}

	h.logger.Info("user block status changed", "user_id", id, "blocked", req.Blocked)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Change a user's role
// @Tags         admin
// @Accept       json
// @Param        id    path  string              true  "User ID"
// @Param        body  body  dto.SetRoleRequest  true  "Role"
// @Success      204
// @Failure      400  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/users/{id}/role [put]
func (h *AdminHandler) SetRole(c echo.Context) error {
	var req dto.SetRoleRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	id := c.Param("id")
	if err := h.store.SetRole(c.Request().Context(), id, shared.Role(req.Role)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("user_not_found", "user not found")
		}
		h.logger.Error("failed to set role", "error", err, "user_id", id)
		return shared.InternalError("update_failed", "failed to update user")
	}
	return c.NoContent(http.StatusNoContent)
}

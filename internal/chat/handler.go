package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Conversations)
	g.GET("/:peer_id/messages", h.History)
	g.POST("/:peer_id/read", h.MarkRead)
}

// @Summary      List conversations
// @Tags         chat
// @Produce      json
// @Success      200  {object}  dto.ConversationListResponse
// @Security     BearerAuth
// @Router       /conversations [get]
func (h *Handler) Conversations(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	limit, _ := shared.Pagination(c, 50, 200)
	convs, err := h.store.Conversations(c.Request().Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err, "user_id", userID)
		return shared.InternalError("list_failed", "failed to list conversations")
	}

	resp := make([]dto.ConversationResponse, len(convs))
	for i, conv := range convs {
		resp[i] = dto.ConversationResponse{
			PeerID:      conv.PeerID,
			LastMessage: ToResponse(conv.LastMessage),
			Unread:      conv.Unread,
		}
	}
	return c.JSON(http.StatusOK, dto.ConversationListResponse{Conversations: resp})
}

// @Summary      Conversation history
// @Tags         chat
// @Produce      json
// @Param        peer_id  path      string  true   "Other user"
// @Param        before   query     string  false  "RFC3339 cursor; only older messages are returned"
// @Param        limit    query     int     false  "Number of messages (default 50, max 200)"
// @Success      200      {object}  dto.ChatHistoryResponse
// @Failure      400      {object}  shared.APIError
// @Security     BearerAuth
// @Router       /conversations/{peer_id}/messages [get]
func (h *Handler) History(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	peerID := c.Param("peer_id")
	limit, _ := shared.Pagination(c, 50, 200)

	var before *time.Time
	if raw := c.QueryParam("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return shared.BadRequest("invalid_before", "before must be an RFC3339 timestamp")
		}
		before = &t
	}

	msgs, err := h.store.History(c.Request().Context(), userID, peerID, before, limit)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "user_id", userID)
		return shared.InternalError("history_failed", "failed to load messages")
	}

	resp := make([]dto.ChatMessageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = ToResponse(m)
	}
	return c.JSON(http.StatusOK, dto.ChatHistoryResponse{PeerID: peerID, Messages: resp})
}

// @Summary      Mark conversation read
// @Tags         chat
// @Param        peer_id  path  string  true  "Other user"
// @Success      204
// @Security     BearerAuth
// @Router       /conversations/{peer_id}/read [post]
func (h *Handler) MarkRead(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	if _, err := h.store.MarkRead(c.Request().Context(), userID, c.Param("peer_id")); err != nil {
		h.logger.Error("failed to mark read", "error", err, "user_id", userID)
		return shared.InternalError("update_failed", "failed to mark messages read")
	}
	return c.NoContent(http.StatusNoContent)
}

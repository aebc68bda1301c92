package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/ice"
	"github.com/eleven-am/consult-backend/internal/ratelimit"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	hub      *Hub
	store    *CallStore
	ice      *ice.Service
	auth     *auth.Middleware
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler serves the signaling socket and its REST helpers. An empty
// allowedOrigins accepts any origin.
func NewHandler(hub *Hub, store *CallStore, iceService *ice.Service, authMiddleware *auth.Middleware, allowedOrigins []string, logger *slog.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}

	return &Handler{
		hub:   hub,
		store: store,
		ice:   iceService,
		auth:  authMiddleware,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[strings.ToLower(r.Header.Get("Origin"))]
				return ok
			},
		},
		logger: logger.With("handler", "signaling"),
	}
}

// RegisterRoutes mounts the socket, which authenticates itself, and the REST
// routes behind authenticate.
func (h *Handler) RegisterRoutes(g *echo.Group, authenticate echo.MiddlewareFunc) {
	g.GET("/ws", h.Connect)
	g.GET("/ice-servers", h.ICEServers, authenticate)
	g.GET("/calls/active", h.ActiveCall, authenticate)
	g.GET("/presence/:user_id", h.Presence, authenticate)
}

// @Summary      Signaling socket
// @Description  Upgrades to a WebSocket carrying call and chat events. Browsers pass the JWT as ?token=.
// @Tags         signaling
// @Param        token  query  string  false  "JWT when no Authorization header can be sent"
// @Success      101
// @Failure      401  {object}  shared.APIError
// @Router       /signal/ws [get]
func (h *Handler) Connect(c echo.Context) error {
	claims, err := h.auth.FromRequest(c.Request())
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	cfg := h.hub.Config()
	client := NewClient(ws, claims.UserID, ratelimit.NewLimiter(cfg.MessagesPerSecond, cfg.MessageBurst), h.logger)

	ctx := c.Request().Context()
	if err := h.hub.Connect(ctx, client); err != nil {
		h.logger.Error("failed to register socket", "error", err, "user_id", claims.UserID)
		client.Close()
		return nil
	}
	h.logger.Info("socket connected", "user_id", claims.UserID, "conn_id", client.ID())

	go client.writePump(ctx, h.hub)
	client.readPump(ctx, h.hub)

	h.hub.Disconnect(client)
	h.logger.Info("socket disconnected", "user_id", claims.UserID, "conn_id", client.ID())
	return nil
}

// @Summary      ICE servers
// @Description  STUN/TURN servers with short-lived credentials for the caller
// @Tags         signaling
// @Produce      json
// @Success      200  {object}  dto.ICEServersResponse
// @Security     BearerAuth
// @Router       /signal/ice-servers [get]
func (h *Handler) ICEServers(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	servers := h.ice.Servers(c.Request().Context(), userID)
	return c.JSON(http.StatusOK, ice.ToResponse(servers))
}

// @Summary      Active call
// @Tags         signaling
// @Produce      json
// @Success      200  {object}  dto.ActiveCallResponse
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /signal/calls/active [get]
func (h *Handler) ActiveCall(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	call, err := h.store.ActiveCall(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			return shared.NotFound("no_active_call", "no active call")
		}
		h.logger.Error("failed to load active call", "error", err, "user_id", userID)
		return shared.InternalError("active_call_failed", "failed to load active call")
	}

	resp := dto.ActiveCallResponse{
		CallID:        call.ID,
		CallerID:      call.CallerID,
		CalleeID:      call.CalleeID,
		AppointmentID: call.AppointmentID,
		Media:         string(call.Media),
		State:         string(call.State),
		CreatedAt:     shared.FormatTime(call.CreatedAt),
	}
	if call.AnsweredAt != nil {
		resp.AnsweredAt = shared.FormatTime(*call.AnsweredAt)
	}
	return c.JSON(http.StatusOK, resp)
}

// @Summary      Presence
// @Tags         signaling
// @Produce      json
// @Param        user_id  path      string  true  "User ID"
// @Success      200      {object}  dto.PresenceResponse
// @Security     BearerAuth
// @Router       /signal/presence/{user_id} [get]
func (h *Handler) Presence(c echo.Context) error {
	if _, err := auth.RequireAuth(c); err != nil {
		return err
	}
	userID := c.Param("user_id")

	online, err := h.store.Online(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to read presence", "error", err, "user_id", userID)
		return shared.InternalError("presence_failed", "failed to read presence")
	}
	return c.JSON(http.StatusOK, dto.PresenceResponse{UserID: userID, Online: online})
}

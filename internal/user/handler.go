package user

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store   *Store
	tokens  *auth.JWTValidator
	google  Provider
	states  *StateSigner
	schemes map[string]struct{}
	hosts   map[string]struct{}
	logger  *slog.Logger
}

// NewHandler builds the auth handler. allowedHosts are origins or bare hosts
// that may receive an https OAuth redirect.
func NewHandler(store *Store, tokens *auth.JWTValidator, google Provider, states *StateSigner, allowedSchemes, allowedHosts []string, logger *slog.Logger) *Handler {
	schemes := make(map[string]struct{}, len(allowedSchemes))
	for _, s := range allowedSchemes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			schemes[s] = struct{}{}
		}
	}
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, raw := range allowedHosts {
		if host := redirectHost(raw); host != "" {
			hosts[host] = struct{}{}
		}
	}
	return &Handler{
		store:   store,
		tokens:  tokens,
		google:  google,
		states:  states,
		schemes: schemes,
		hosts:   hosts,
		logger:  logger,
	}
}

// redirectHost normalizes "https://app.example.com" or "app.example.com:8443"
// to the lowercase host[:port] form compared against redirect targets.
func redirectHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Host)
	}
	return strings.ToLower(strings.TrimSuffix(raw, "/"))
}

// RegisterPublicRoutes mounts the unauthenticated login endpoints.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/google", h.GoogleLogin)
	g.GET("/google/callback", h.GoogleCallback)
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/me", h.Me)
	g.PUT("/me", h.UpdateMe)
}

func ToResponse(u *User) dto.MeResponse {
	return dto.MeResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Phone:     u.Phone,
		Role:      string(u.Role),
		IsBlocked: u.IsBlocked,
		CreatedAt: shared.FormatTime(u.CreatedAt),
	}
}

func (h *Handler) tokenResponse(u *User) (dto.TokenResponse, error) {
	token, expiresAt, err := h.tokens.Issue(auth.Subject{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	})
	if err != nil {
		return dto.TokenResponse{}, err
	}
	return dto.TokenResponse{
		Token:     token,
		ExpiresAt: shared.FormatTime(expiresAt),
		User:      ToResponse(u),
	}, nil
}

// @Summary      Register with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      dto.RegisterRequest  true  "Registration"
// @Success      201   {object}  dto.TokenResponse
// @Failure      400   {object}  shared.APIError
// @Failure      409   {object}  shared.APIError
// @Router       /auth/register [post]
func (h *Handler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		return shared.InternalError("register_failed", "failed to register")
	}

	u := &User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         shared.RoleCustomer,
	}
	if err := h.store.Create(c.Request().Context(), u); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("email_taken", "an account with this email already exists")
		}
		h.logger.Error("failed to create user", "error", err)
		return shared.InternalError("register_failed", "failed to register")
	}

	resp, err := h.tokenResponse(u)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err, "user_id", u.ID)
		return shared.InternalError("token_failed", "failed to issue token")
	}

	h.logger.Info("user registered", "user_id", u.ID)
	return c.JSON(http.StatusCreated, resp)
}

// @Summary      Log in with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      dto.LoginRequest  true  "Credentials"
// @Success      200   {object}  dto.TokenResponse
// @Failure      401   {object}  shared.APIError
// @Failure      403   {object}  shared.APIError
// @Router       /auth/login [post]
func (h *Handler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	u, err := h.store.GetByEmail(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Unauthorized("invalid_credentials", "invalid email or password")
		}
		h.logger.Error("failed to load user", "error", err)
		return shared.InternalError("login_failed", "failed to log in")
	}

	if err := CheckPassword(u.PasswordHash, req.Password); err != nil {
		return shared.Unauthorized("invalid_credentials", "invalid email or password")
	}

	if u.IsBlocked {
		return shared.Forbidden("user_blocked", "account has been blocked")
	}

	resp, err := h.tokenResponse(u)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err, "user_id", u.ID)
		return shared.InternalError("token_failed", "failed to issue token")
	}
	return c.JSON(http.StatusOK, resp)
}

// @Summary      Start Google login
// @Tags         auth
// @Param        redirect_uri  query  string  false  "Where to send the token after login"
// @Success      307
// @Failure      404  {object}  shared.APIError
// @Router       /auth/google [get]
func (h *Handler) GoogleLogin(c echo.Context) error {
	if h.google == nil {
		return shared.NotFound("provider_disabled", "google login is not configured")
	}

	redirect := h.sanitizeRedirectURI(c.QueryParam("redirect_uri"))
	state := h.states.Issue(c, redirect)
	return c.Redirect(http.StatusTemporaryRedirect, h.google.AuthURL(state))
}

// @Summary      Google login callback
// @Tags         auth
// @Produce      json
// @Success      200  {object}  dto.TokenResponse
// @Success      302
// @Failure      400  {object}  shared.APIError
// @Router       /auth/google/callback [get]
func (h *Handler) GoogleCallback(c echo.Context) error {
	if h.google == nil {
		return shared.NotFound("provider_disabled", "google login is not configured")
	}
	return h.handleCallback(c, h.google)
}

func (h *Handler) handleCallback(c echo.Context, p Provider) error {
	redirect, err := h.states.Consume(c, c.QueryParam("state"))
	if err != nil {
		return shared.BadRequest("invalid_state", "invalid or expired login state")
	}

	code := c.QueryParam("code")
	if code == "" {
		return shared.BadRequest("missing_code", "authorization code is required")
	}

	ctx := c.Request().Context()
	pu, err := p.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oauth exchange failed", "error", err, "provider", p.Name())
		return shared.BadRequest("exchange_failed", "failed to complete login")
	}

	u, err := h.store.FindOrCreateOAuth(ctx, p.Name(), pu)
	if err != nil {
		h.logger.Error("failed to resolve oauth user", "error", err, "provider", p.Name())
		return shared.InternalError("login_failed", "failed to log in")
	}

	if u.IsBlocked {
		return shared.Forbidden("user_blocked", "account has been blocked")
	}

	resp, err := h.tokenResponse(u)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err, "user_id", u.ID)
		return shared.InternalError("token_failed", "failed to issue token")
	}

	if redirect != "" {
		return c.Redirect(http.StatusFound, redirect+"#token="+url.QueryEscape(resp.Token))
	}
	return c.JSON(http.StatusOK, resp)
}

// sanitizeRedirectURI only allows relative paths, https to allow-listed hosts,
// loopback http and configured app schemes. The issued token rides in the
// fragment, so anything else is dropped.
func (h *Handler) sanitizeRedirectURI(raw string) string {
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
			return ""
		}
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.User != nil {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "https":
		if _, ok := h.hosts[strings.ToLower(u.Host)]; ok {
			return raw
		}
		return ""
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return raw
		}
		return ""
	}

	if _, ok := h.schemes[scheme]; ok {
		return raw
	}
	return ""
}

// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Success      200  {object}  dto.MeResponse
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *Handler) Me(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	u, err := h.store.GetByID(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err, "user_id", userID)
		return shared.NotFound("user_not_found", "user not found")
	}

	return c.JSON(http.StatusOK, ToResponse(u))
}

// @Summary      Update current user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      dto.UpdateMeRequest  true  "Profile fields"
// @Success      200   {object}  dto.MeResponse
// @Failure      400   {object}  shared.APIError
// @Failure      401   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /auth/me [put]
func (h *Handler) UpdateMe(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.UpdateMeRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	u, err := h.store.GetByID(ctx, userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}

	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.AvatarURL != nil {
		u.AvatarURL = *req.AvatarURL
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}

	if err := h.store.Update(ctx, u); err != nil {
		h.logger.Error("failed to update user", "error", err, "user_id", userID)
		return shared.InternalError("update_failed", "failed to update user")
	}

	return c.JSON(http.StatusOK, ToResponse(u))
}

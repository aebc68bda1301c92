package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type contextKey string

const claimsKey contextKey = "jwt_claims"

// UserStatus is the stored state of a token's subject.
type UserStatus struct {
	Role    shared.Role
	Blocked bool
}

// StatusChecker reports the current role and block flag for a user so that
// issued tokens follow demotions and blocks immediately.
type StatusChecker interface {
	UserStatus(ctx context.Context, userID string) (UserStatus, error)
}

type Middleware struct {
	validator *JWTValidator
	status    StatusChecker
}

func NewMiddleware(validator *JWTValidator, status StatusChecker) *Middleware {
	return &Middleware{
		validator: validator,
		status:    status,
	}
}

func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return shared.Unauthorized("missing_token", "authorization header required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return shared.Unauthorized("invalid_token", "bearer token required")
		}

		claims, err := m.check(c.Request().Context(), authHeader)
		if err != nil {
			return err
		}

		SetClaims(c, claims)
		return next(c)
	}
}

func (m *Middleware) OptionalAuthenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return next(c)
		}

		claims, err := m.check(c.Request().Context(), authHeader)
		if err != nil {
			return next(c)
		}

		SetClaims(c, claims)
		return next(c)
	}
}

// FromRequest authenticates a request that cannot carry headers, such as a
// browser WebSocket upgrade, using the token query parameter as a fallback.
func (m *Middleware) FromRequest(r *http.Request) (*Claims, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, shared.Unauthorized("missing_token", "authentication token required")
	}
	return m.check(r.Context(), token)
}

func (m *Middleware) check(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.validator.Validate(token)
	if err != nil {
		if err == ErrExpiredToken {
			return nil, shared.Unauthorized("token_expired", "token has expired")
		}
		return nil, shared.Unauthorized("invalid_token", "invalid or malformed token")
	}

	if m.status != nil {
		st, err := m.status.UserStatus(ctx, claims.UserID)
		if err != nil {
			if err == shared.ErrNotFound {
				return nil, shared.Unauthorized("user_not_found", "user no longer exists")
			}
			return nil, shared.InternalError("auth_failed", "failed to verify user")
		}
		if st.Blocked {
			return nil, shared.Forbidden("user_blocked", "account has been blocked")
		}
		if st.Role != "" {
			claims.Role = st.Role
		}
	}

	return claims, nil
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...shared.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil {
				return shared.Unauthorized("auth_required", "authentication required")
			}
			if !claims.HasRole(roles...) {
				return shared.Forbidden("insufficient_role", "you are not allowed to perform this action")
			}
			return next(c)
		}
	}
}

func GetClaims(c echo.Context) *Claims {
	claims, ok := c.Request().Context().Value(claimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func RequireAuth(c echo.Context) (string, error) {
	claims := GetClaims(c)
	if claims == nil {
		return "", shared.Unauthorized("auth_required", "authentication required")
	}
	return claims.UserID, nil
}

func SetClaims(c echo.Context, claims *Claims) {
	ctx := context.WithValue(c.Request().Context(), claimsKey, claims)
	c.SetRequest(c.Request().WithContext(ctx))
}

func SetClaimsForTest(c echo.Context, claims *Claims) {
	SetClaims(c, claims)
}

package apikey

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/user"
	"github.com/labstack/echo/v4"
)

const HeaderName = "X-API-Key"

// OwnerLookup loads the admin behind a key.
type OwnerLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Authenticate accepts an integration key in X-API-Key and defers to
// fallback when the header is absent. A key only authenticates while its
// owner is an unblocked admin.
func Authenticate(store *Store, owners OwnerLookup, fallback echo.MiddlewareFunc, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withFallback := fallback(next)
		return func(c echo.Context) error {
			secret := c.Request().Header.Get(HeaderName)
			if secret == "" {
				return withFallback(c)
			}

			ctx := c.Request().Context()
			key, err := store.Validate(ctx, secret)
			switch {
			case err == nil:
			case errors.Is(err, shared.ErrNotFound):
				return shared.Unauthorized("invalid_api_key", "invalid API key")
			case errors.Is(err, shared.ErrUnauthorized):
				return shared.Unauthorized("api_key_expired", "API key has expired")
			default:
				logger.Error("failed to validate API key", "error", err)
				return shared.InternalError("auth_failed", "failed to validate API key")
			}

			owner, err := owners.GetByID(ctx, key.OwnerID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.Unauthorized("invalid_api_key", "API key owner no longer exists")
				}
				logger.Error("failed to load API key owner", "error", err, "key_id", key.ID)
				return shared.InternalError("auth_failed", "failed to validate API key")
			}
			if owner.IsBlocked || owner.Role != shared.RoleAdmin {
				return shared.Forbidden("api_key_revoked", "API key owner is no longer an admin")
			}

			auth.SetClaims(c, &auth.Claims{
				UserID: owner.ID,
				Email:  owner.Email,
				Name:   owner.Name,
				Role:   owner.Role,
			})
			c.Set("api_key_id", key.ID)
			return next(c)
		}
	}
}

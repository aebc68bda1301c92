package coupon

import (
	"errors"

	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

// HTTPError maps a redemption error to its API error, or returns nil when err
// is not a coupon error.
func HTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return shared.NotFound("coupon_not_found", "coupon not found")
	case errors.Is(err, ErrInactive):
		return shared.BadRequest("coupon_inactive", "coupon is not active")
	case errors.Is(err, ErrNotStarted):
		return shared.BadRequest("coupon_not_started", "coupon is not valid yet")
	case errors.Is(err, ErrExpired):
		return shared.BadRequest("coupon_expired", "coupon has expired")
	case errors.Is(err, ErrExhausted):
		return shared.BadRequest("coupon_exhausted", "coupon usage limit reached")
	case errors.Is(err, ErrBelowMinimum):
		return shared.BadRequest("coupon_min_amount", "amount is below the coupon minimum")
	}
	return nil
}

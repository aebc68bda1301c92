package coupon

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/validate", h.Validate)
}

func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/coupons", h.List)
	g.POST("/coupons", h.Create)
	g.PUT("/coupons/:code", h.Update)
	g.DELETE("/coupons/:code", h.Delete)
}

func toResponse(c *Coupon) dto.CouponResponse {
	return dto.CouponResponse{
		Code:        c.Code,
		Description: c.Description,
		Kind:        string(c.Kind),
		Value:       c.Value,
		MaxDiscount: c.MaxDiscount,
		MinAmount:   c.MinAmount,
		UsageLimit:  c.UsageLimit,
		UsedCount:   c.UsedCount,
		ValidFrom:   shared.FormatTimePtr(c.ValidFrom),
		ValidUntil:  shared.FormatTimePtr(c.ValidUntil),
		IsActive:    c.IsActive,
		CreatedAt:   shared.FormatTime(c.CreatedAt),
	}
}

func parseTimePtr(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, shared.BadRequest("invalid_"+field, field+" must be an RFC3339 timestamp")
	}
	return &t, nil
}

// @Summary      Validate a coupon
// @Description  Prices an amount with a coupon without redeeming it
// @Tags         coupons
// @Accept       json
// @Produce      json
// @Param        body  body      dto.ValidateCouponRequest  true  "Code and amount"
// @Success      200   {object}  dto.ValidateCouponResponse
// @Failure      400   {object}  shared.APIError
// @Failure      404   {object}  shared.APIError
// @Router       /coupons/validate [post]
func (h *Handler) Validate(c echo.Context) error {
	var req dto.ValidateCouponRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	q, err := h.store.Preview(c.Request().Context(), req.Code, req.Amount)
	if err != nil {
		if he := HTTPError(err); he != nil {
			return he
		}
		h.logger.Error("failed to validate coupon", "error", err)
		return shared.InternalError("validate_failed", "failed to validate coupon")
	}

	return c.JSON(http.StatusOK, dto.ValidateCouponResponse{
		Code:     q.Code,
		Amount:   q.Amount,
		Discount: q.Discount,
		Final:    q.Final,
	})
}

// @Summary      List coupons
// @Tags         admin
// @Produce      json
// @Success      200  {object}  dto.CouponListResponse
// @Security     BearerAuth
// @Router       /admin/coupons [get]
func (h *Handler) List(c echo.Context) error {
	coupons, err := h.store.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list coupons", "error", err)
		return shared.InternalError("list_failed", "failed to list coupons")
	}

	resp := make([]dto.CouponResponse, len(coupons))
	for i, cp := range coupons {
		resp[i] = toResponse(cp)
	}
	return c.JSON(http.StatusOK, dto.CouponListResponse{Coupons: resp})
}

// @Summary      Create a coupon
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateCouponRequest  true  "Coupon"
// @Success      201   {object}  dto.CouponResponse
// @Failure      400   {object}  shared.APIError
// @Failure      409   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/coupons [post]
func (h *Handler) Create(c echo.Context) error {
	var req dto.CreateCouponRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	if Kind(req.Kind) == KindPercent && req.Value > 100 {
		return shared.BadRequest("invalid_value", "percent coupons cannot exceed 100")
	}

	validFrom, err := parseTimePtr("valid_from", req.ValidFrom)
	if err != nil {
		return err
	}
	validUntil, err := parseTimePtr("valid_until", req.ValidUntil)
	if err != nil {
		return err
	}
	if validFrom != nil && validUntil != nil && !validUntil.After(*validFrom) {
		return shared.BadRequest("invalid_window", "valid_until must be after valid_from")
	}

	cp := &Coupon{
		Code:        req.Code,
		Description: req.Description,
		Kind:        Kind(req.Kind),
		Value:       req.Value,
		MaxDiscount: req.MaxDiscount,
		MinAmount:   req.MinAmount,
		UsageLimit:  req.UsageLimit,
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
		IsActive:    true,
	}

	if err := h.store.Create(c.Request().Context(), cp); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("coupon_exists", "a coupon with this code already exists")
		}
		h.logger.Error("failed to create coupon", "error", err)
		return shared.InternalError("create_failed", "failed to create coupon")
	}

	h.logger.Info("coupon created", "code", cp.Code)
	return c.JSON(http.StatusCreated, toResponse(cp))
}

// @Summary      Update a coupon
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        code  path      string                   true  "Coupon code"
// @Param        body  body      dto.UpdateCouponRequest  true  "Fields to change"
// @Success      200   {object}  dto.CouponResponse
// @Failure      404   {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/coupons/{code} [put]
func (h *Handler) Update(c echo.Context) error {
	var req dto.UpdateCouponRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	cp, err := h.store.Get(ctx, c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("coupon_not_found", "coupon not found")
		}
		return shared.InternalError("get_failed", "failed to get coupon")
	}

	if req.Description != nil {
		cp.Description = *req.Description
	}
	if req.MaxDiscount != nil {
		cp.MaxDiscount = *req.MaxDiscount
	}
	if req.MinAmount != nil {
		cp.MinAmount = *req.MinAmount
	}
	if req.UsageLimit != nil {
		cp.UsageLimit = *req.UsageLimit
	}
	if req.ValidUntil != nil {
		until, err := parseTimePtr("valid_until", req.ValidUntil)
		if err != nil {
			return err
		}
		cp.ValidUntil = until
	}
	if req.IsActive != nil {
		cp.IsActive = *req.IsActive
	}

	if err := h.store.Update(ctx, cp); err != nil {
		h.logger.Error("failed to update coupon", "error", err, "code", cp.Code)
		return shared.InternalError("update_failed", "failed to update coupon")
	}
	return c.JSON(http.StatusOK, toResponse(cp))
}

// @Summary      Delete a coupon
// @Tags         admin
// @Param        code  path  string  true  "Coupon code"
// @Success      204
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /admin/coupons/{code} [delete]
func (h *Handler) Delete(c echo.Context) error {
	code := c.Param("code")
	if err := h.store.Delete(c.Request().Context(), code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("coupon_not_found", "coupon not found")
		}
		h.logger.Error("failed to delete coupon", "error", err, "code", code)
		return shared.InternalError("delete_failed", "failed to delete coupon")
	}
	return c.NoContent(http.StatusNoContent)
}

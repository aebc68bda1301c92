package dto

type CreateCouponRequest struct {
	Code        string  `json:"code" validate:"required,coupon_code" example:"WELCOME10"`
	Description string  `json:"description,omitempty" validate:"max=200" example:"10% off your first session"`
	Kind        string  `json:"kind" validate:"required,oneof=percent flat" example:"percent"`
	Value       int64   `json:"value" validate:"required,min=1" example:"10"`
	MaxDiscount int64   `json:"max_discount,omitempty" validate:"min=0" example:"50000"`
	MinAmount   int64   `json:"min_amount,omitempty" validate:"min=0" example:"100000"`
	UsageLimit  int64   `json:"usage_limit,omitempty" validate:"min=0" example:"100"`
	ValidFrom   *string `json:"valid_from,omitempty" example:"2024-01-01T00:00:00Z"`
	ValidUntil  *string `json:"valid_until,omitempty" example:"2024-12-31T23:59:59Z"`
}

type UpdateCouponRequest struct {
	Description *string `json:"description,omitempty" validate:"omitempty,max=200"`
	MaxDiscount *int64  `json:"max_discount,omitempty" validate:"omitempty,min=0"`
	MinAmount   *int64  `json:"min_amount,omitempty" validate:"omitempty,min=0"`
	UsageLimit  *int64  `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
	ValidUntil  *string `json:"valid_until,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type CouponResponse struct {
	Code        string  `json:"code" example:"WELCOME10"`
	Description string  `json:"description,omitempty"`
	Kind        string  `json:"kind" example:"percent"`
	Value       int64   `json:"value" example:"10"`
	MaxDiscount int64   `json:"max_discount" example:"50000"`
	MinAmount   int64   `json:"min_amount" example:"100000"`
	UsageLimit  int64   `json:"usage_limit" example:"100"`
	UsedCount   int64   `json:"used_count" example:"12"`
	ValidFrom   *string `json:"valid_from,omitempty"`
	ValidUntil  *string `json:"valid_until,omitempty"`
	IsActive    bool    `json:"is_active" example:"true"`
	CreatedAt   string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type CouponListResponse struct {
	Coupons []CouponResponse `json:"coupons"`
}

type ValidateCouponRequest struct {
	Code   string `json:"code" validate:"required,coupon_code" example:"WELCOME10"`
	Amount int64  `json:"amount" validate:"min=0" example:"250000"`
}

type ValidateCouponResponse struct {
	Code     string `json:"code" example:"WELCOME10"`
	Amount   int64  `json:"amount" example:"250000"`
	Discount int64  `json:"discount" example:"25000"`
	Final    int64  `json:"final" example:"225000"`
}

package coupon

import (
	"errors"
	"time"
)

type Kind string

const (
	KindPercent Kind = "percent"
	KindFlat    Kind = "flat"
)

var (
	ErrNotFound     = errors.New("coupon not found")
	ErrInactive     = errors.New("coupon inactive")
	ErrNotStarted   = errors.New("coupon not yet valid")
	ErrExpired      = errors.New("coupon expired")
	ErrExhausted    = errors.New("coupon usage limit reached")
	ErrBelowMinimum = errors.New("amount below coupon minimum")
)

// Coupon amounts are in the smallest currency unit. A zero UsageLimit or
// MaxDiscount means unlimited.
type Coupon struct {
	Code        string     `gorm:"primaryKey" json:"code"`
	Description string     `json:"description,omitempty"`
	Kind        Kind       `gorm:"not null" json:"kind"`
	Value       int64      `gorm:"not null" json:"value"`
	MaxDiscount int64      `gorm:"default:0" json:"max_discount"`
	MinAmount   int64      `gorm:"default:0" json:"min_amount"`
	UsageLimit  int64      `gorm:"default:0" json:"usage_limit"`
	UsedCount   int64      `gorm:"default:0" json:"used_count"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Check reports why the coupon cannot be used for amount at now, if at all.
func (c *Coupon) Check(amount int64, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotStarted
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ErrExhausted
	}
	if amount < c.MinAmount {
		return ErrBelowMinimum
	}
	return nil
}

// Discount is never more than amount.
func (c *Coupon) Discount(amount int64) int64 {
	var d int64
	switch c.Kind {
	case KindPercent:
		pct := min(c.Value, 100)
		d = amount * pct / 100
		if c.MaxDiscount > 0 {
			d = min(d, c.MaxDiscount)
		}
	case KindFlat:
		d = c.Value
	}
	return max(0, min(d, amount))
}

type Quote struct {
	Code     string
	Amount   int64
	Discount int64
	Final    int64
}

func (c *Coupon) Quote(amount int64, now time.Time) (Quote, error) {
	if err := c.Check(amount, now); err != nil {
		return Quote{}, err
	}
	d := c.Discount(amount)
	return Quote{Code: c.Code, Amount: amount, Discount: d, Final: amount - d}, nil
}

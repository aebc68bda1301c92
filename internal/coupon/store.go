package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Coupon{})
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Store) Create(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	if _, err := s.Get(ctx, c.Code); err == nil {
		return shared.ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) Get(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	err := s.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (s *Store) List(ctx context.Context) ([]*Coupon, error) {
	var coupons []*Coupon
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error
	return coupons, err
}

func (s *Store) Update(ctx context.Context, c *Coupon) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) Delete(ctx context.Context, code string) error {
	result := s.db.WithContext(ctx).Delete(&Coupon{}, "code = ?", NormalizeCode(code))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Preview prices amount with the coupon without consuming a use.
func (s *Store) Preview(ctx context.Context, code string, amount int64) (Quote, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	return c.Quote(amount, s.now())
}

// Redeem prices amount and consumes one use. The increment is guarded in SQL
// so concurrent bookings cannot push used_count past usage_limit.
func (s *Store) Redeem(ctx context.Context, code string, amount int64) (Quote, error) {
	q, err := s.Preview(ctx, code, amount)
	if err != nil {
		return Quote{}, err
	}

	result := s.db.WithContext(ctx).Model(&Coupon{}).
		Where("code = ? AND is_active = ? AND (usage_limit = 0 OR used_count < usage_limit)", q.Code, true).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return Quote{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Quote{}, ErrExhausted
	}
	return q, nil
}

// Release gives back a use consumed by Redeem.
func (s *Store) Release(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Model(&Coupon{}).
		Where("code = ? AND used_count > 0", NormalizeCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
}

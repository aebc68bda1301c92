package announcement

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

type Audience string

const (
	AudienceAll       Audience = "all"
	AudienceCustomers Audience = "customers"
	AudienceExperts   Audience = "experts"
)

// AudiencesFor lists the audiences a user with role sees. Admins see all.
func AudiencesFor(role shared.Role) []Audience {
	switch role {
	case shared.RoleExpert:
		return []Audience{AudienceAll, AudienceExperts}
	case shared.RoleAdmin:
		return []Audience{AudienceAll, AudienceCustomers, AudienceExperts}
	default:
		return []Audience{AudienceAll, AudienceCustomers}
	}
}

type Announcement struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Body        string     `gorm:"not null" json:"body"`
	Audience    Audience   `gorm:"not null;default:'all';index" json:"audience"`
	CreatedBy   string     `json:"created_by"`
	PublishedAt time.Time  `gorm:"not null;index" json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Announcement{})
}

func (s *Store) Create(ctx context.Context, a *Announcement) error {
	if a.ID == "" {
		a.ID = shared.NewID("ann_")
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(a).Error
}

// Current returns published, unexpired announcements for the audiences.
func (s *Store) Current(ctx context.Context, audiences []Audience, now time.Time, limit int) ([]*Announcement, error) {
	now = now.UTC()
	var out []*Announcement
	err := s.db.WithContext(ctx).
		Where("audience IN ?", audiences).
		Where("published_at <= ?", now).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Order("published_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*Announcement, error) {
	var out []*Announcement
	err := s.db.WithContext(ctx).Order("published_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Announcement{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Announcement, error) {
	var a Announcement
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &a, err
}

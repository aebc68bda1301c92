package inquiry

import (
	"context"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

type Inquiry struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	Email      string     `gorm:"not null;index" json:"email"`
	Subject    string     `gorm:"not null" json:"subject"`
	Message    string     `gorm:"not null" json:"message"`
	Status     Status     `gorm:"not null;default:'open';index" json:"status"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Inquiry{})
}

func (s *Store) Create(ctx context.Context, q *Inquiry) error {
	if q.ID == "" {
		q.ID = shared.NewID("inq_")
	}
	if q.Status == "" {
		q.Status = StatusOpen
	}
	return s.db.WithContext(ctx).Create(q).Error
}

func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]*Inquiry, error) {
	query := s.db.WithContext(ctx).Model(&Inquiry{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []*Inquiry
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, err
}

// Resolve marks an open inquiry resolved. Resolving twice is a no-op that
// returns the stored row.
func (s *Store) Resolve(ctx context.Context, id, adminID string) (*Inquiry, error) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&Inquiry{}).
		Where("id = ? AND status = ?", id, StatusOpen).
		Updates(map[string]any{"status": StatusResolved, "resolved_by": adminID, "resolved_at": now}).Error
	if err != nil {
		return nil, err
	}

	var q Inquiry
	result := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&q)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrNotFound
	}
	return &q, nil
}

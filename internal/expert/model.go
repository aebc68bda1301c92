package expert

import (
	"strings"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

const DefaultCurrency = "INR"

type Expert struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"not null;uniqueIndex" json:"user_id"`

	Headline        string                `gorm:"not null" json:"headline"`
	Bio             string                `json:"bio,omitempty"`
	Category        shared.ExpertCategory `gorm:"default:'other';index" json:"category"`
	Skills          shared.StringSlice    `gorm:"type:json" json:"skills,omitempty"`
	Languages       shared.StringSlice    `gorm:"type:json" json:"languages,omitempty"`
	HourlyRate      int64                 `gorm:"not null;default:0" json:"hourly_rate"`
	Currency        string                `gorm:"default:'INR'" json:"currency"`
	YearsExperience int                   `gorm:"default:0" json:"years_experience"`

	// SearchText is a lower-cased copy of the searchable fields for the
	// LIKE fallback when vector search is unavailable.
	SearchText string `json:"-"`

	IsVerified  bool `gorm:"default:false;index" json:"is_verified"`
	IsAvailable bool `gorm:"default:true" json:"is_available"`

	AvgRating     float32 `gorm:"default:0" json:"avg_rating"`
	TotalReviews  int64   `gorm:"default:0" json:"total_reviews"`
	TotalSessions int64   `gorm:"default:0" json:"total_sessions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Expert) BeforeSave(*gorm.DB) error {
	e.SearchText = e.Document()
	return nil
}

// Document is the text indexed for search.
func (e *Expert) Document() string {
	parts := []string{e.Headline, e.Bio, string(e.Category)}
	parts = append(parts, e.Skills...)
	parts = append(parts, e.Languages...)
	return strings.ToLower(strings.Join(parts, " "))
}

type Review struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ExpertID  string    `gorm:"not null;index;index:idx_expert_user_review,unique" json:"expert_id"`
	UserID    string    `gorm:"not null;index:idx_expert_user_review,unique" json:"user_id"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListFilter struct {
	Category     shared.ExpertCategory
	VerifiedOnly bool
}

package user

import (
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID           string      `gorm:"primaryKey" json:"id"`
	Provider     string      `gorm:"not null;index:idx_provider_sub,unique" json:"provider"`
	ProviderSub  string      `gorm:"not null;index:idx_provider_sub,unique" json:"-"`
	Email        string      `gorm:"uniqueIndex;not null" json:"email"`
	Name         string      `json:"name,omitempty"`
	AvatarURL    string      `json:"avatar_url,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `gorm:"not null;default:'customer';index" json:"role"`
	IsBlocked    bool        `gorm:"default:false" json:"is_blocked"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type ListFilter struct {
	Role  shared.Role
	Query string
}

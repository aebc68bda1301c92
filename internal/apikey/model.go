package apikey

import "time"

const (
	secretPrefix = "sk-consult-"
	lookupLength = 16
)

// APIKey is an integration credential issued by an admin. Requests carrying
// it act as the admin who created it.
type APIKey struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	OwnerID    string     `gorm:"not null;index" json:"owner_id"`
	Name       string     `gorm:"not null" json:"name"`
	Prefix     string     `gorm:"uniqueIndex;not null" json:"-"`
	SecretHash string     `gorm:"not null" json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (k *APIKey) IsExpired(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return now.After(*k.ExpiresAt)
}

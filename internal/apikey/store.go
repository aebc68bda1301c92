package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
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
	return s.db.AutoMigrate(&APIKey{})
}

// Create stores the key and returns its secret. Only the hash is kept, so
// the secret cannot be shown again.
func (s *Store) Create(ctx context.Context, key *APIKey) (secret string, err error) {
	if key.ID == "" {
		key.ID = shared.NewID("key_")
	}

	secret, err = generateSecret()
	if err != nil {
		return "", err
	}

	key.Prefix = secret[:lookupLength]
	key.SecretHash = hashSecret(secret)

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *Store) List(ctx context.Context) ([]*APIKey, error) {
	var keys []*APIKey
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// Validate resolves a presented secret. Unknown or mismatched secrets are
// ErrNotFound; expired keys are ErrUnauthorized.
func (s *Store) Validate(ctx context.Context, secret string) (*APIKey, error) {
	if !strings.HasPrefix(secret, secretPrefix) || len(secret) <= lookupLength {
		return nil, shared.ErrNotFound
	}

	var key APIKey
	err := s.db.WithContext(ctx).Where("prefix = ?", secret[:lookupLength]).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(key.SecretHash), []byte(hashSecret(secret))) != 1 {
		return nil, shared.ErrNotFound
	}

	now := s.now()
	if key.IsExpired(now) {
		return nil, shared.ErrUnauthorized
	}

	if err := s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", key.ID).Update("last_used_at", now).Error; err == nil {
		key.LastUsedAt = &now
	}
	return &key, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&APIKey{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.db.WithContext(ctx).Delete(&APIKey{}, "owner_id = ?", ownerID).Error
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

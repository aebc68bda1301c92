package user

import (
	"context"
	"errors"
	"strings"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&User{})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = shared.NewID("user_")
	}
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = shared.RoleCustomer
	}
	if u.Provider == "" {
		u.Provider = ProviderLocal
	}
	if u.ProviderSub == "" {
		u.ProviderSub = u.Email
	}

	if _, err := s.GetByEmail(ctx, u.Email); err == nil {
		return shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &u, err
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &u, err
}

func (s *Store) GetByProvider(ctx context.Context, provider, sub string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("provider = ? AND provider_sub = ?", provider, sub).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &u, err
}

// FindOrCreateOAuth resolves an OAuth identity. An existing account with the
// same email is reused so password and Google logins land on one user.
func (s *Store) FindOrCreateOAuth(ctx context.Context, provider string, pu *ProviderUser) (*User, error) {
	u, err := s.GetByProvider(ctx, provider, pu.Sub)
	if err == nil {
		if u.Name != pu.Name || u.AvatarURL != pu.AvatarURL {
			u.Name = pu.Name
			u.AvatarURL = pu.AvatarURL
			if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if pu.Email != "" {
		existing, err := s.GetByEmail(ctx, pu.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	email := normalizeEmail(pu.Email)
	if email == "" {
		email = provider + "-" + pu.Sub + "@users.noreply"
	}

	u = &User{
		ID:          shared.NewID("user_"),
		Provider:    provider,
		ProviderSub: pu.Sub,
		Email:       email,
		Name:        pu.Name,
		AvatarURL:   pu.AvatarURL,
		Role:        shared.RoleCustomer,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) Update(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Save(u).Error
}

func (s *Store) SetRole(ctx context.Context, id string, role shared.Role) error {
	return s.updateColumn(ctx, id, "role", role)
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return s.updateColumn(ctx, id, "is_blocked", blocked)
}

func (s *Store) updateColumn(ctx context.Context, id, column string, value any) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) IsBlocked(ctx context.Context, id string) (bool, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsBlocked, nil
}

// UserStatus feeds the auth middleware the stored role and block flag.
func (s *Store) UserStatus(ctx context.Context, id string) (auth.UserStatus, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return auth.UserStatus{}, err
	}
	return auth.UserStatus{Role: u.Role, Blocked: u.IsBlocked}, nil
}

func (s *Store) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*User, error) {
	var users []*User
	q := s.db.WithContext(ctx).Model(&User{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR email LIKE ?", like, like)
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error
	return users, err
}

// GetByIDs returns the users keyed by id; unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) (map[string]*User, error) {
	out := make(map[string]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

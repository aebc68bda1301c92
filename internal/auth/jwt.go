package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	DefaultTokenTTL = 7 * 24 * time.Hour
	issuer          = "consult-backend"
)

type Subject struct {
	ID    string
	Email string
	Name  string
	Role  shared.Role
}

type JWTValidator struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewJWTValidator(key []byte, ttl time.Duration) *JWTValidator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTValidator{key: key, ttl: ttl, now: time.Now}
}

func (v *JWTValidator) Issue(sub Subject) (string, time.Time, error) {
	now := v.now()
	expiresAt := now.Add(v.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: sub.ID,
		Email:  sub.Email,
		Name:   sub.Name,
		Role:   sub.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate accepts either a raw token or an "Authorization: Bearer" value.
func (v *JWTValidator) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

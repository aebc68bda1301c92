package auth

import (
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"sub"`
	Email  string      `json:"email,omitempty"`
	Name   string      `json:"name,omitempty"`
	Role   shared.Role `json:"role"`
}

func (c *Claims) HasRole(roles ...shared.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

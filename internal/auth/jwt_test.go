package auth

import (
	"testing"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
)

func TestJWTValidator_IssueAndValidate(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)

	token, expiresAt, err := v.Issue(Subject{ID: "user_1", Email: "a@example.com", Name: "Ann", Role: shared.RoleExpert})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if expiresAt.Before(time.Now()) {
		t.Error("expiry should be in the future")
	}

	for _, raw := range []string{token, "Bearer " + token} {
		claims, err := v.Validate(raw)
		if err != nil {
			t.Fatalf("Validate(%q) error: %v", raw[:10], err)
		}
		if claims.UserID != "user_1" {
			t.Errorf("expected user_1, got %s", claims.UserID)
		}
		if claims.Role != shared.RoleExpert {
			t.Errorf("expected expert role, got %s", claims.Role)
		}
		if claims.Email != "a@example.com" {
			t.Errorf("expected email, got %s", claims.Email)
		}
	}
}

func TestJWTValidator_DefaultTTL(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), 0)
	if v.ttl != DefaultTokenTTL {
		t.Errorf("expected default ttl, got %v", v.ttl)
	}
}

func TestJWTValidator_Expired(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Minute)
	v.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := v.Issue(Subject{ID: "user_1", Role: shared.RoleCustomer})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	v.now = time.Now
	if _, err := v.Validate(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTValidator_Invalid(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	other := NewJWTValidator([]byte("other-secret"), time.Hour)

	foreign, _, err := other.Issue(Subject{ID: "user_1"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"bearer only", "Bearer "},
		{"garbage", "not.a.jwt"},
		{"wrong key", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestClaims_HasRole(t *testing.T) {
	c := &Claims{Role: shared.RoleAdmin}
	if !c.HasRole(shared.RoleExpert, shared.RoleAdmin) {
		t.Error("expected admin to match")
	}
	if c.HasRole(shared.RoleCustomer) {
		t.Error("did not expect customer to match")
	}
}

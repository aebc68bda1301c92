package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type stubStatus struct {
	blocked map[string]bool
	roles   map[string]shared.Role
	err     error
}

func (s *stubStatus) UserStatus(_ context.Context, userID string) (UserStatus, error) {
	if s.err != nil {
		return UserStatus{}, s.err
	}
	return UserStatus{Role: s.roles[userID], Blocked: s.blocked[userID]}, nil
}

func issueTestToken(t *testing.T, v *JWTValidator, id string, role shared.Role) string {
	t.Helper()
	token, _, err := v.Issue(Subject{ID: id, Role: role})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, GetClaims(c).UserID)
}

func TestMiddleware_Authenticate(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, &stubStatus{blocked: map[string]bool{"user_blocked": true}})
	e := echo.New()

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer garbage", http.StatusUnauthorized},
		{"blocked user", "Bearer " + issueTestToken(t, v, "user_blocked", shared.RoleCustomer), http.StatusForbidden},
		{"valid", "Bearer " + issueTestToken(t, v, "user_ok", shared.RoleCustomer), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := m.Authenticate(okHandler)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Body.String() != "user_ok" {
					t.Errorf("expected user_ok, got %s", rec.Body.String())
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, httpErr.Code)
			}
		})
	}
}

func TestMiddleware_UnknownUser(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, &stubStatus{err: shared.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, v, "user_gone", shared.RoleCustomer))

	_, err := m.FromRequest(req)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddleware_FromRequestQueryToken(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, nil)

	token := issueTestToken(t, v, "user_ws", shared.RoleExpert)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	claims, err := m.FromRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != "user_ws" {
		t.Errorf("expected user_ws, got %s", claims.UserID)
	}

	if _, err := m.FromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil)); err == nil {
		t.Error("expected error without token")
	}
}

func TestMiddleware_OptionalAuthenticate(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, nil)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	called := false
	err := m.OptionalAuthenticate(func(c echo.Context) error {
		called = true
		if GetClaims(c) != nil {
			t.Error("expected no claims")
		}
		return nil
	})(c)
	if err != nil || !called {
		t.Fatalf("expected handler to run, err=%v", err)
	}
}

func TestMiddleware_OptionalAuthenticateStatus(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, &stubStatus{blocked: map[string]bool{"user_blocked": true}})
	e := echo.New()

	tests := []struct {
		name      string
		userID    string
		wantClaim bool
	}{
		{"active user", "user_1", true},
		{"blocked user", "user_blocked", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+issueTestToken(t, v, tt.userID, shared.RoleCustomer))
			c := e.NewContext(req, httptest.NewRecorder())

			var got *Claims
			err := m.OptionalAuthenticate(func(c echo.Context) error {
				got = GetClaims(c)
				return nil
			})(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got != nil) != tt.wantClaim {
				t.Errorf("claims present = %v, want %v", got != nil, tt.wantClaim)
			}
		})
	}
}

func TestMiddleware_RoleFollowsStoredUser(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), time.Hour)
	m := NewMiddleware(v, &stubStatus{roles: map[string]shared.Role{
		"user_demoted":  shared.RoleCustomer,
		"user_promoted": shared.RoleAdmin,
	}})
	e := echo.New()
	h := m.Authenticate(RequireRole(shared.RoleAdmin)(okHandler))

	tests := []struct {
		name       string
		userID     string
		tokenRole  shared.Role
		wantStatus int
	}{
		{"demoted admin", "user_demoted", shared.RoleAdmin, http.StatusForbidden},
		{"promoted customer", "user_promoted", shared.RoleCustomer, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+issueTestToken(t, v, tt.userID, tt.tokenRole))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			status := http.StatusOK
			if err := h(c); err != nil {
				he, ok := err.(*echo.HTTPError)
				if !ok {
					t.Fatalf("unexpected error type %T", err)
				}
				status = he.Code
			}
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	mw := RequireRole(shared.RoleAdmin)

	tests := []struct {
		name     string
		claims   *Claims
		wantCode int
	}{
		{"no claims", nil, http.StatusUnauthorized},
		{"wrong role", &Claims{UserID: "u", Role: shared.RoleCustomer}, http.StatusForbidden},
		{"admin", &Claims{UserID: "u", Role: shared.RoleAdmin}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			if tt.claims != nil {
				SetClaimsForTest(c, tt.claims)
			}
			err := mw(func(c echo.Context) error { return nil })(c)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if _, err := RequireAuth(c); err == nil {
		t.Error("expected error without claims")
	}
	SetClaimsForTest(c, &Claims{UserID: "user_1"})
	id, err := RequireAuth(c)
	if err != nil || id != "user_1" {
		t.Errorf("expected user_1, got %s (%v)", id, err)
	}
}

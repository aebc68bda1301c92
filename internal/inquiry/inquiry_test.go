package inquiry

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/notify"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/validate"
	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return store
}

func TestHandler_SubmitListResolve(t *testing.T) {
	store := setupTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := notify.NewLogMailer(log)
	notifier := notify.NewNotifier(mailer, log)
	h := NewHandler(store, notifier, "ops@example.com", log)

	e := echo.New()
	e.Validator = validate.New()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Jane Doe","email":"Jane@Example.com","subject":"Verification","message":"How do I get verified?"}`, false},
		{"bad email", `{"name":"Jane Doe","email":"nope","subject":"Verification","message":"How do I get verified?"}`, true},
		{"short message", `{"name":"Jane Doe","email":"jane@example.com","subject":"Verification","message":"hi"}`, true},
	}

	var created dto.InquiryResponse
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			err := h.Create(e.NewContext(req, rec))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				json.Unmarshal(rec.Body.Bytes(), &created)
			}
		})
	}

	notifier.Wait()
	if sent := mailer.Sent(); len(sent) != 1 || sent[0].ToEmail != "ops@example.com" {
		t.Errorf("admin notification = %+v", sent)
	}
	if created.Email != "jane@example.com" || created.Status != "open" {
		t.Errorf("created = %+v", created)
	}

	list := func(status string) dto.InquiryListResponse {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?status="+status, nil), rec)
		if err := h.List(c); err != nil {
			t.Fatalf("List error: %v", err)
		}
		var resp dto.InquiryListResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		return resp
	}

	if got := list("open"); len(got.Inquiries) != 1 {
		t.Fatalf("open inquiries = %d, want 1", len(got.Inquiries))
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	auth.SetClaimsForTest(c, &auth.Claims{UserID: "user_admin", Role: shared.RoleAdmin})
	if err := h.Resolve(c); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	var resolved dto.InquiryResponse
	json.Unmarshal(rec.Body.Bytes(), &resolved)
	if resolved.Status != "resolved" || resolved.ResolvedAt == nil {
		t.Errorf("resolved = %+v", resolved)
	}

	if got := list("open"); len(got.Inquiries) != 0 {
		t.Errorf("open inquiries after resolve = %d, want 0", len(got.Inquiries))
	}
	if got := list("resolved"); len(got.Inquiries) != 1 {
		t.Errorf("resolved inquiries = %d, want 1", len(got.Inquiries))
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("inq_missing")
	err := h.Resolve(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("Resolve missing = %v, want 404", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=bogus", nil), httptest.NewRecorder())
	if err := h.List(c); err == nil {
		t.Error("expected error for invalid status")
	}
}

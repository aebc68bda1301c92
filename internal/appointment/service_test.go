package appointment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/consult-backend/internal/coupon"
	"github.com/eleven-am/consult-backend/internal/expert"
	"github.com/eleven-am/consult-backend/internal/notify"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/user"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *Store
	experts  *expert.Store
	coupons  *coupon.Store
	users    *user.Store
	mailer   *notify.LogMailer
	notifier *notify.Notifier
	clock    *time.Time

	customer *user.User
	pro      *user.User
	expert   *expert.Expert
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		store:   NewStore(db),
		experts: expert.NewStore(db, nil),
		coupons: coupon.NewStore(db),
		users:   user.NewStore(db),
		mailer:  notify.NewLogMailer(log),
	}
	for _, m := range []interface{ Migrate() error }{f.store, f.experts, f.coupons, f.users} {
		if err := m.Migrate(); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	f.notifier = notify.NewNotifier(f.mailer, log)
	f.svc = NewService(f.store, f.experts, f.coupons, f.users, f.notifier, log)
	now := baseTime
	f.clock = &now
	f.svc.now = func() time.Time { return *f.clock }

	f.customer = &user.User{Email: "cust@example.com", Name: "Cust"}
	f.pro = &user.User{Email: "pro@example.com", Name: "Pro", Role: shared.RoleExpert}
	f.users.Create(ctx, f.customer)
	f.users.Create(ctx, f.pro)

	f.expert = &expert.Expert{UserID: f.pro.ID, Headline: "Go mentor", HourlyRate: 120000, IsAvailable: true}
	if err := f.experts.Create(ctx, f.expert); err != nil {
		t.Fatalf("create expert: %v", err)
	}
	return f
}

func (f *fixture) book(t *testing.T, customerID string, start time.Time, d time.Duration, code string) (*Appointment, error) {
	t.Helper()
	return f.svc.Book(context.Background(), BookRequest{
		CustomerID: customerID,
		ExpertID:   f.expert.ID,
		StartAt:    start,
		Duration:   d,
		CouponCode: code,
	})
}

func TestPrice(t *testing.T) {
	tests := []struct {
		rate int64
		d    time.Duration
		want int64
	}{
		{120000, time.Hour, 120000},
		{120000, 30 * time.Minute, 60000},
		{100000, 45 * time.Minute, 75000},
		{0, time.Hour, 0},
	}
	for _, tt := range tests {
		if got := Price(tt.rate, tt.d); got != tt.want {
			t.Errorf("Price(%d, %v) = %d, want %d", tt.rate, tt.d, got, tt.want)
		}
	}
}

func TestService_Book(t *testing.T) {
	f := newFixture(t)

	a, err := f.book(t, f.customer.ID, baseTime.Add(24*time.Hour), 30*time.Minute, "")
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if a.Status != StatusPending || a.Price != 60000 || a.AmountDue != 60000 {
		t.Errorf("unexpected appointment: %+v", a)
	}
	if a.ExpertUserID != f.pro.ID {
		t.Errorf("expert_user_id = %s, want %s", a.ExpertUserID, f.pro.ID)
	}

	f.notifier.Wait()
	if len(f.mailer.Sent()) != 2 {
		t.Errorf("sent %d booking emails, want 2", len(f.mailer.Sent()))
	}
}

func TestService_BookRejections(t *testing.T) {
	f := newFixture(t)
	slot := baseTime.Add(24 * time.Hour)

	if _, err := f.book(t, f.customer.ID, slot, time.Hour, ""); err != nil {
		t.Fatalf("initial booking: %v", err)
	}

	other := &user.User{Email: "other@example.com"}
	f.users.Create(context.Background(), other)

	tests := []struct {
		name     string
		customer string
		start    time.Time
		duration time.Duration
		wantErr  error
	}{
		{"own profile", f.pro.ID, slot.Add(5 * time.Hour), time.Hour, ErrOwnProfile},
		{"in the past", f.customer.ID, baseTime.Add(-time.Hour), time.Hour, ErrStartInPast},
		{"too short", f.customer.ID, slot.Add(5 * time.Hour), 10 * time.Minute, ErrInvalidDuration},
		{"too long", f.customer.ID, slot.Add(5 * time.Hour), 4 * time.Hour, ErrInvalidDuration},
		{"overlaps expert", other.ID, slot.Add(30 * time.Minute), time.Hour, ErrSlotTaken},
		{"overlaps customer", f.customer.ID, slot.Add(-30 * time.Minute), time.Hour, ErrSlotTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(t, tt.customer, tt.start, tt.duration, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Book error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.book(t, other.ID, slot.Add(time.Hour), time.Hour, ""); err != nil {
		t.Errorf("adjacent slot should be free: %v", err)
	}
}

func TestService_BookUnavailableExpert(t *testing.T) {
	f := newFixture(t)
	f.expert.IsAvailable = false
	f.experts.Update(context.Background(), f.expert)

	if _, err := f.book(t, f.customer.ID, baseTime.Add(time.Hour), time.Hour, ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Book error = %v, want ErrUnavailable", err)
	}
}

func TestService_BookWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.coupons.Create(ctx, &coupon.Coupon{Code: "HALF", Kind: coupon.KindPercent, Value: 50, UsageLimit: 5, IsActive: true})
	f.coupons.Create(ctx, &coupon.Coupon{Code: "FREE", Kind: coupon.KindPercent, Value: 100, UsageLimit: 1, IsActive: true})

	a, err := f.book(t, f.customer.ID, baseTime.Add(time.Hour), time.Hour, "half")
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if a.Discount != 60000 || a.AmountDue != 60000 || a.CouponCode != "HALF" {
		t.Errorf("unexpected pricing: %+v", a)
	}

	free, err := f.book(t, f.customer.ID, baseTime.Add(5*time.Hour), time.Hour, "FREE")
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if free.Status != StatusConfirmed || free.AmountDue != 0 {
		t.Errorf("free booking should be confirmed: %+v", free)
	}

	if _, err := f.book(t, f.customer.ID, baseTime.Add(10*time.Hour), time.Hour, "FREE"); !errors.Is(err, coupon.ErrExhausted) {
		t.Errorf("exhausted coupon error = %v", err)
	}

	// a failed booking gives the coupon use back
	if _, err := f.book(t, f.customer.ID, baseTime.Add(time.Hour), time.Hour, "HALF"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected slot_taken, got %v", err)
	}
	c, _ := f.coupons.Get(ctx, "HALF")
	if c.UsedCount != 1 {
		t.Errorf("used_count = %d, want 1", c.UsedCount)
	}
}

func TestService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := Actor{UserID: f.customer.ID}
	pro := Actor{UserID: f.pro.ID}

	a, _ := f.book(t, f.customer.ID, baseTime.Add(time.Hour), time.Hour, "")

	if _, err := f.svc.Confirm(ctx, a.ID, customer); !errors.Is(err, shared.ErrForbidden) {
		t.Errorf("customer confirm error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Confirm(ctx, a.ID, pro); err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, a.ID, pro); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("double confirm error = %v, want ErrInvalidState", err)
	}

	if _, err := f.svc.Complete(ctx, a.ID, pro); !errors.Is(err, ErrNotStarted) {
		t.Errorf("early complete error = %v, want ErrNotStarted", err)
	}

	*f.clock = baseTime.Add(90 * time.Minute)
	done, err := f.svc.Complete(ctx, a.ID, pro)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Errorf("unexpected completed appointment: %+v", done)
	}

	e, _ := f.experts.GetByID(ctx, f.expert.ID)
	if e.TotalSessions != 1 {
		t.Errorf("total_sessions = %d, want 1", e.TotalSessions)
	}

	ok, _ := f.svc.HasCompletedSession(ctx, f.customer.ID, f.expert.ID)
	if !ok {
		t.Error("expected completed session")
	}

	if _, err := f.svc.Cancel(ctx, a.ID, customer, "late"); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("cancel completed error = %v, want ErrInvalidState", err)
	}
}

func TestService_CancelReleasesSlotAndCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coupons.Create(ctx, &coupon.Coupon{Code: "ONE", Kind: coupon.KindFlat, Value: 1000, UsageLimit: 1, IsActive: true})

	slot := baseTime.Add(2 * time.Hour)
	a, _ := f.book(t, f.customer.ID, slot, time.Hour, "ONE")

	stranger := Actor{UserID: "user_stranger"}
	if _, err := f.svc.Cancel(ctx, a.ID, stranger, ""); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("stranger cancel error = %v, want ErrNotFound", err)
	}

	cancelled, err := f.svc.Cancel(ctx, a.ID, Actor{UserID: f.customer.ID}, "conflict")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelled.CancelReason != "conflict" || cancelled.CancelledBy != f.customer.ID {
		t.Errorf("unexpected cancellation: %+v", cancelled)
	}

	if _, err := f.book(t, f.customer.ID, slot, time.Hour, "ONE"); err != nil {
		t.Errorf("rebooking cancelled slot with released coupon: %v", err)
	}
}

func TestService_AuthorizeCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := baseTime.Add(time.Hour)
	a, _ := f.book(t, f.customer.ID, start, time.Hour, "")

	if err := f.svc.AuthorizeCall(ctx, a.ID, f.customer.ID, f.pro.ID); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("pending appointment error = %v, want ErrNotConfirmed", err)
	}

	f.svc.Confirm(ctx, a.ID, Actor{UserID: f.pro.ID})

	tests := []struct {
		name    string
		now     time.Time
		caller  string
		callee  string
		wantErr error
	}{
		{"too early", start.Add(-11 * time.Minute), f.customer.ID, f.pro.ID, ErrOutsideWindow},
		{"early join", start.Add(-10 * time.Minute), f.customer.ID, f.pro.ID, nil},
		{"during", start.Add(30 * time.Minute), f.pro.ID, f.customer.ID, nil},
		{"grace", start.Add(89 * time.Minute), f.customer.ID, f.pro.ID, nil},
		{"too late", start.Add(91 * time.Minute), f.customer.ID, f.pro.ID, ErrOutsideWindow},
		{"stranger", start, "user_stranger", f.pro.ID, ErrNotParticipant},
		{"self", start, f.pro.ID, f.pro.ID, ErrNotParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*f.clock = tt.now
			err := f.svc.AuthorizeCall(ctx, a.ID, tt.caller, tt.callee)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("AuthorizeCall error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AuthorizeCall error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := f.svc.AuthorizeCall(ctx, "appt_missing", f.customer.ID, f.pro.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("missing appointment error = %v, want ErrNotFound", err)
	}
}

func TestStore_FindCallable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := baseTime.Add(time.Hour)
	a, _ := f.book(t, f.customer.ID, start, time.Hour, "")
	f.svc.Confirm(ctx, a.ID, Actor{UserID: f.pro.ID})

	got, err := f.store.FindCallable(ctx, f.pro.ID, f.customer.ID, start.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindCallable error: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("found %s, want %s", got.ID, a.ID)
	}

	if _, err := f.store.FindCallable(ctx, f.pro.ID, f.customer.ID, start.Add(-time.Hour)); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("outside window error = %v, want ErrNotFound", err)
	}
}

func TestService_CallableAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := baseTime.Add(time.Hour)
	a, _ := f.book(t, f.customer.ID, start, time.Hour, "")

	if _, err := f.svc.CallableAppointment(ctx, f.customer.ID, f.pro.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("unconfirmed error = %v, want ErrNotFound", err)
	}

	f.svc.Confirm(ctx, a.ID, Actor{UserID: f.pro.ID})
	*f.clock = start.Add(-5 * time.Minute)

	got, err := f.svc.CallableAppointment(ctx, f.customer.ID, f.pro.ID)
	if err != nil || got != a.ID {
		t.Errorf("CallableAppointment = %q, %v; want %q", got, err, a.ID)
	}
	if got, err := f.svc.CallableAppointment(ctx, f.pro.ID, f.customer.ID); err != nil || got != a.ID {
		t.Errorf("reversed CallableAppointment = %q, %v", got, err)
	}
	if _, err := f.svc.CallableAppointment(ctx, f.customer.ID, f.customer.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("self error = %v, want ErrNotFound", err)
	}
}

func TestService_BookConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	customers := make([]*user.User, n)
	for i := range customers {
		customers[i] = &user.User{Email: fmt.Sprintf("rush%d@example.com", i), Name: "Rush"}
		if err := f.users.Create(ctx, customers[i]); err != nil {
			t.Fatalf("create customer: %v", err)
		}
	}

	start := baseTime.Add(24 * time.Hour)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range customers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(ctx, BookRequest{
				CustomerID: customers[i].ID,
				ExpertID:   f.expert.ID,
				StartAt:    start,
				Duration:   time.Hour,
			})
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, err := range errs {
		switch {
		case err == nil:
			booked++
		case !errors.Is(err, ErrSlotTaken):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if booked != 1 {
		t.Errorf("booked = %d, want 1", booked)
	}

	var live int64
	f.store.db.Model(&Appointment{}).
		Where("expert_id = ? AND status IN ?", f.expert.ID, []Status{StatusPending, StatusConfirmed}).
		Count(&live)
	if live != 1 {
		t.Errorf("live appointments = %d, want 1", live)
	}
}

func TestLockParticipants_SQL(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=consult dbname=consult"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}

	stmt := lockParticipants(db, "user_b", "user_a", "user_b").Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "FOR UPDATE") {
		t.Errorf("sql = %q, want row lock", sql)
	}
	if !strings.Contains(sql, `ORDER BY id`) {
		t.Errorf("sql = %q, want id ordering", sql)
	}
	if len(stmt.Vars) != 2 || stmt.Vars[0] != "user_a" || stmt.Vars[1] != "user_b" {
		t.Errorf("vars = %v, want [user_a user_b]", stmt.Vars)
	}
}

func TestService_CheckParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.book(t, f.customer.ID, baseTime.Add(2*time.Hour), time.Hour, "")
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	tests := []struct {
		name    string
		id      string
		a, b    string
		wantErr error
	}{
		{"both participants", a.ID, f.customer.ID, f.pro.ID, nil},
		{"reversed", a.ID, f.pro.ID, f.customer.ID, nil},
		{"outsider", a.ID, f.customer.ID, "user_other", shared.ErrForbidden},
		{"same user", a.ID, f.customer.ID, f.customer.ID, shared.ErrForbidden},
		{"missing", "appt_missing", f.customer.ID, f.pro.ID, shared.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.CheckParticipants(ctx, tt.id, tt.a, tt.b)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckParticipants error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckParticipants error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

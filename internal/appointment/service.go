package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/consult-backend/internal/coupon"
	"github.com/eleven-am/consult-backend/internal/expert"
	"github.com/eleven-am/consult-backend/internal/notify"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/user"
)

type BookRequest struct {
	CustomerID string
	ExpertID   string
	StartAt    time.Time
	Duration   time.Duration
	CouponCode string
	Notes      string
}

// Actor is the user performing an action on an appointment.
type Actor struct {
	UserID  string
	IsAdmin bool
}

type Service struct {
	store    *Store
	experts  *expert.Store
	coupons  *coupon.Store
	users    *user.Store
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store *Store, experts *expert.Store, coupons *coupon.Store, users *user.Store, notifier *notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		experts:  experts,
		coupons:  coupons,
		users:    users,
		notifier: notifier,
		logger:   logger.With("component", "appointment"),
		now:      time.Now,
	}
}

func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.Duration < MinDuration || req.Duration > MaxDuration || req.Duration%time.Minute != 0 {
		return nil, ErrInvalidDuration
	}

	start := req.StartAt.UTC().Truncate(time.Minute)
	if !start.After(s.now()) {
		return nil, ErrStartInPast
	}

	e, err := s.experts.GetByID(ctx, req.ExpertID)
	if err != nil {
		return nil, err
	}
	if e.UserID == req.CustomerID {
		return nil, ErrOwnProfile
	}
	if !e.IsAvailable {
		return nil, ErrUnavailable
	}

	a := &Appointment{
		CustomerID:   req.CustomerID,
		ExpertID:     e.ID,
		ExpertUserID: e.UserID,
		StartAt:      start,
		EndAt:        start.Add(req.Duration),
		Price:        Price(e.HourlyRate, req.Duration),
		Currency:     e.Currency,
		Notes:        req.Notes,
	}
	a.AmountDue = a.Price

	if req.CouponCode != "" {
		q, err := s.coupons.Redeem(ctx, req.CouponCode, a.Price)
		if err != nil {
			return nil, err
		}
		a.CouponCode = q.Code
		a.Discount = q.Discount
		a.AmountDue = q.Final
	}

	a.Status = StatusPending
	if a.AmountDue == 0 {
		a.Status = StatusConfirmed
		now := s.now().UTC()
		a.ConfirmedAt = &now
	}

	if err := s.store.Create(ctx, a); err != nil {
		if a.CouponCode != "" {
			if rerr := s.coupons.Release(ctx, a.CouponCode); rerr != nil {
				s.logger.Error("failed to release coupon", "error", rerr, "code", a.CouponCode)
			}
		}
		return nil, err
	}

	s.logger.Info("appointment booked", "appointment_id", a.ID, "expert_id", a.ExpertID, "status", a.Status)
	s.notify(ctx, a, "New appointment booked", "A session has been booked for %s.", a.CustomerID, a.ExpertUserID)
	return a, nil
}

// Get returns the appointment if actor may see it.
func (s *Service) Get(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !a.IsParticipant(actor.UserID) {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, error) {
	return s.store.List(ctx, filter, limit, offset)
}

// Confirm marks a pending appointment as paid. Only the expert or an admin
// may confirm.
func (s *Service) Confirm(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	a, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && a.ExpertUserID != actor.UserID {
		return nil, shared.ErrForbidden
	}

	now := s.now().UTC()
	if err := s.store.Transition(ctx, id, []Status{StatusPending}, StatusConfirmed, map[string]any{"confirmed_at": now}); err != nil {
		return nil, err
	}

	a.Status = StatusConfirmed
	a.ConfirmedAt = &now
	s.notify(ctx, a, "Appointment confirmed", "Your session on %s is confirmed.", a.CustomerID)
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id string, actor Actor, reason string) (*Appointment, error) {
	a, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"cancel_reason": reason, "cancelled_by": actor.UserID}
	if err := s.store.Transition(ctx, id, []Status{StatusPending, StatusConfirmed}, StatusCancelled, fields); err != nil {
		return nil, err
	}

	if a.CouponCode != "" {
		if err := s.coupons.Release(ctx, a.CouponCode); err != nil {
			s.logger.Error("failed to release coupon", "error", err, "code", a.CouponCode)
		}
	}

	a.Status = StatusCancelled
	a.CancelReason = reason
	a.CancelledBy = actor.UserID

	s.logger.Info("appointment cancelled", "appointment_id", id, "by", actor.UserID)
	s.notify(ctx, a, "Appointment cancelled", "The session on %s was cancelled.", a.Peer(actor.UserID))
	return a, nil
}

// Complete closes a confirmed appointment once it has started.
func (s *Service) Complete(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	a, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && a.ExpertUserID != actor.UserID {
		return nil, shared.ErrForbidden
	}
	now := s.now().UTC()
	if now.Before(a.StartAt) {
		return nil, ErrNotStarted
	}

	if err := s.store.Transition(ctx, id, []Status{StatusConfirmed}, StatusCompleted, map[string]any{"completed_at": now}); err != nil {
		return nil, err
	}

	if err := s.experts.IncrementSessions(ctx, a.ExpertID); err != nil {
		s.logger.Error("failed to count session", "error", err, "expert_id", a.ExpertID)
	}

	a.Status = StatusCompleted
	a.CompletedAt = &now
	return a, nil
}

func (s *Service) HasCompletedSession(ctx context.Context, customerID, expertID string) (bool, error) {
	return s.store.HasCompletedSession(ctx, customerID, expertID)
}

// AuthorizeCall checks that caller and callee may hold a call now under the
// given appointment.
func (s *Service) AuthorizeCall(ctx context.Context, appointmentID, callerID, calleeID string) error {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !a.IsParticipant(callerID) || !a.IsParticipant(calleeID) || callerID == calleeID {
		return fmt.Errorf("%w: %w", shared.ErrForbidden, ErrNotParticipant)
	}
	if a.Status != StatusConfirmed {
		return fmt.Errorf("%w: %w", shared.ErrInvalidState, ErrNotConfirmed)
	}

	now := s.now()
	from, until := a.CallWindow()
	if now.Before(from) || now.After(until) {
		return fmt.Errorf("%w: %w", shared.ErrInvalidState, ErrOutsideWindow)
	}
	return nil
}

// CheckParticipants confirms that both users take part in the appointment,
// whatever its status.
func (s *Service) CheckParticipants(ctx context.Context, appointmentID, userA, userB string) error {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if userA == userB || !a.IsParticipant(userA) || !a.IsParticipant(userB) {
		return fmt.Errorf("%w: %w", shared.ErrForbidden, ErrNotParticipant)
	}
	return nil
}

// CallableAppointment returns the confirmed appointment between the two users
// whose call window is open now.
func (s *Service) CallableAppointment(ctx context.Context, callerID, calleeID string) (string, error) {
	if callerID == calleeID {
		return "", shared.ErrNotFound
	}
	a, err := s.store.FindCallable(ctx, callerID, calleeID, s.now())
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *Service) notify(ctx context.Context, a *Appointment, subject, format string, recipients ...string) {
	if s.notifier == nil || s.users == nil {
		return
	}

	users, err := s.users.GetByIDs(ctx, recipients)
	if err != nil {
		s.logger.Warn("failed to load notification recipients", "error", err)
		return
	}

	when := a.StartAt.Format("Mon, 02 Jan 2006 15:04 MST")
	msgs := make([]notify.Message, 0, len(recipients))
	for _, id := range recipients {
		u, ok := users[id]
		if !ok {
			continue
		}
		msgs = append(msgs, notify.Message{
			ToName:  u.Name,
			ToEmail: u.Email,
			Subject: subject,
			Text:    fmt.Sprintf(format, when) + "\n\nAppointment: " + a.ID,
		})
	}
	s.notifier.Dispatch(msgs...)
}

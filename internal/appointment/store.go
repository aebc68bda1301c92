package appointment

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Appointment{})
}

// Create inserts the appointment unless either participant already has a
// non-cancelled appointment overlapping it.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = shared.NewID("appt_")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		people := []string{a.CustomerID, a.ExpertUserID}
		if err := lockParticipants(tx, people...).Error; err != nil {
			return err
		}

		var count int64
		err := tx.Model(&Appointment{}).
			Where("status IN ?", []Status{StatusPending, StatusConfirmed}).
			Where("start_at < ? AND end_at > ?", a.EndAt, a.StartAt).
			Where("(customer_id IN ? OR expert_user_id IN ?)", people, people).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrSlotTaken
		}
		return tx.Create(a).Error
	})
}

// lockParticipants row-locks the users' records in id order so that two
// bookings sharing a participant run their overlap check one after the other.
func lockParticipants(tx *gorm.DB, userIDs ...string) *gorm.DB {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var locked []string
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Table("users").
		Where("id IN ?", ids).
		Order("id").
		Pluck("id", &locked)
}

func (s *Store) GetByID(ctx context.Context, id string) (*Appointment, error) {
	var a Appointment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &a, err
}

func (s *Store) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, error) {
	var appts []*Appointment
	q := s.db.WithContext(ctx).Model(&Appointment{})
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.ExpertUserID != "" {
		q = q.Where("expert_user_id = ?", filter.ExpertUserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	err := q.Order("start_at DESC").Limit(limit).Offset(offset).Find(&appts).Error
	return appts, err
}

// Transition moves an appointment to status only if it is currently in one
// of from. The guard runs in SQL so concurrent transitions cannot both win.
func (s *Store) Transition(ctx context.Context, id string, from []Status, to Status, fields map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&Appointment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return shared.ErrInvalidState
	}
	return nil
}

func (s *Store) HasCompletedSession(ctx context.Context, customerID, expertID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Appointment{}).
		Where("customer_id = ? AND expert_id = ? AND status = ?", customerID, expertID, StatusCompleted).
		Count(&count).Error
	return count > 0, err
}

// FindCallable returns a confirmed appointment between the two users whose
// call window contains now, if any.
func (s *Store) FindCallable(ctx context.Context, userA, userB string, now time.Time) (*Appointment, error) {
	var a Appointment
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusConfirmed).
		Where("((customer_id = ? AND expert_user_id = ?) OR (customer_id = ? AND expert_user_id = ?))", userA, userB, userB, userA).
		Where("start_at <= ? AND end_at >= ?", now.UTC().Add(CallEarlyJoin), now.UTC().Add(-CallGrace)).
		Order("start_at ASC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &a, err
}

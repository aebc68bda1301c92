package appointment

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

const (
	MinDuration = 15 * time.Minute
	MaxDuration = 180 * time.Minute

	// Calls may start a little before the slot and run over it.
	CallEarlyJoin = 10 * time.Minute
	CallGrace     = 30 * time.Minute
)

var (
	ErrSlotTaken        = errors.New("slot already booked")
	ErrOwnProfile       = errors.New("cannot book own profile")
	ErrUnavailable      = errors.New("expert unavailable")
	ErrStartInPast      = errors.New("start time in the past")
	ErrNotParticipant   = errors.New("not a participant")
	ErrNotConfirmed     = errors.New("appointment not confirmed")
	ErrOutsideWindow    = errors.New("outside appointment window")
	ErrNotStarted       = errors.New("appointment has not started")
	ErrInvalidDuration  = errors.New("invalid duration")
)

type Appointment struct {
	ID           string `gorm:"primaryKey" json:"id"`
	CustomerID   string `gorm:"not null;index" json:"customer_id"`
	ExpertID     string `gorm:"not null;index" json:"expert_id"`
	ExpertUserID string `gorm:"not null;index" json:"expert_user_id"`

	StartAt time.Time `gorm:"not null;index" json:"start_at"`
	EndAt   time.Time `gorm:"not null;index" json:"end_at"`
	Status  Status    `gorm:"not null;default:'pending';index" json:"status"`

	Price      int64  `gorm:"not null" json:"price"`
	Discount   int64  `gorm:"default:0" json:"discount"`
	AmountDue  int64  `gorm:"not null" json:"amount_due"`
	Currency   string `json:"currency"`
	CouponCode string `json:"coupon_code,omitempty"`

	Notes        string `json:"notes,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a *Appointment) IsParticipant(userID string) bool {
	return userID != "" && (a.CustomerID == userID || a.ExpertUserID == userID)
}

// Peer returns the other participant.
func (a *Appointment) Peer(userID string) string {
	if a.CustomerID == userID {
		return a.ExpertUserID
	}
	return a.CustomerID
}

// CallWindow is when the participants may call each other.
func (a *Appointment) CallWindow() (time.Time, time.Time) {
	return a.StartAt.Add(-CallEarlyJoin), a.EndAt.Add(CallGrace)
}

// Price is hourlyRate prorated to the minute.
func Price(hourlyRate int64, d time.Duration) int64 {
	return hourlyRate * int64(d/time.Minute) / 60
}

type ListFilter struct {
	CustomerID   string
	ExpertUserID string
	Status       Status
}

package calllog

import (
	"fmt"
	"time"
)

// Outcome values mirror the end reasons reported by signaling.
const (
	ReasonHangup       = "hangup"
	ReasonRejected     = "rejected"
	ReasonBusy         = "busy"
	ReasonCancelled    = "cancelled"
	ReasonNoAnswer     = "no_answer"
	ReasonDisconnected = "disconnected"
)

type Record struct {
	CallID        string     `json:"call_id"`
	CallerID      string     `json:"caller_id"`
	CalleeID      string     `json:"callee_id"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Media         string     `json:"media"`
	EndReason     string     `json:"end_reason"`
	StartedAt     time.Time  `json:"started_at"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	EndedAt       time.Time  `json:"ended_at"`
}

func (r *Record) Answered() bool {
	return r.AnsweredAt != nil
}

// Duration is the connected time; unanswered calls have none.
func (r *Record) Duration() time.Duration {
	if r.AnsweredAt == nil || r.EndedAt.Before(*r.AnsweredAt) {
		return 0
	}
	return r.EndedAt.Sub(*r.AnsweredAt)
}

func (r *Record) Participants() []string {
	return []string{r.CallerID, r.CalleeID}
}

type Metrics struct {
	UserID       string
	Date         string
	Hour         int
	Calls        int64
	Answered     int64
	Missed       int64
	Rejected     int64
	DurationSecs int64
}

type Summary struct {
	UserID       string
	Period       string
	TotalCalls   int64
	Answered     int64
	Missed       int64
	Rejected     int64
	DurationSecs int64
}

func (s *Summary) AnswerRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.Answered) / float64(s.TotalCalls) * 100
}

func RecordKey(callID string) string {
	return "calllog:" + callID
}

func UserKey(userID string) string {
	return "calllog:user:" + userID
}

func MetricsKey(userID, date string, hour int) string {
	return fmt.Sprintf("metrics:%s:%s:%d", userID, date, hour)
}

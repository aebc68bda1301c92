package signaling

import (
	"fmt"
	"time"
)

type State string

const (
	StateRinging State = "ringing"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

type Media string

const (
	MediaAudio Media = "audio"
	MediaVideo Media = "video"
)

func (m Media) Valid() bool {
	return m == MediaAudio || m == MediaVideo
}

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionReject     Action = "reject"
	ActionEnd        Action = "end"
	ActionTimeout    Action = "timeout"
	ActionDisconnect Action = "disconnect"
)

const (
	ReasonHangup            = "hangup"
	ReasonRejected          = "rejected"
	ReasonBusy              = "busy"
	ReasonCancelled         = "cancelled"
	ReasonNoAnswer          = "no_answer"
	ReasonDisconnected      = "disconnected"
	ReasonAnsweredElsewhere = "answered_elsewhere"
)

type Call struct {
	ID            string     `json:"id"`
	CallerID      string     `json:"caller_id"`
	CalleeID      string     `json:"callee_id"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Media         Media      `json:"media"`
	State         State      `json:"state"`
	EndReason     string     `json:"end_reason,omitempty"`
	EndedBy       string     `json:"ended_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RingDeadline  time.Time  `json:"ring_deadline"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

func (c *Call) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.CalleeID)
}

func (c *Call) Peer(userID string) string {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

func (c *Call) Participants() []string {
	return []string{c.CallerID, c.CalleeID}
}

// Live reports whether the call still occupies its participants. A ringing
// call whose deadline passed long ago is treated as abandoned.
func (c *Call) Live(now time.Time) bool {
	switch c.State {
	case StateActive:
		return true
	case StateRinging:
		return now.Before(c.RingDeadline.Add(staleRingGrace))
	default:
		return false
	}
}

// Apply runs one transition of the call state machine. actor is the user
// performing it; timeouts have no actor.
//
//	ringing --answer(callee)--> active
//	ringing --reject(callee)--> ended(rejected)
//	ringing --end(caller)-----> ended(cancelled)
//	ringing --end(callee)-----> ended(rejected)
//	ringing --timeout---------> ended(no_answer)
//	active  --end(either)-----> ended(hangup)
//	any     --disconnect------> ended(disconnected)
func (c *Call) Apply(action Action, actor string, now time.Time) error {
	if action != ActionTimeout && !c.IsParticipant(actor) {
		return ErrNotParticipant
	}
	if c.State == StateEnded {
		return fmt.Errorf("%w: call already ended", ErrInvalidState)
	}

	switch action {
	case ActionAnswer:
		if c.State != StateRinging || actor != c.CalleeID {
			return fmt.Errorf("%w: only the callee can answer a ringing call", ErrInvalidState)
		}
		c.State = StateActive
		c.AnsweredAt = &now
		return nil

	case ActionReject:
		if c.State != StateRinging || actor != c.CalleeID {
			return fmt.Errorf("%w: only the callee can reject a ringing call", ErrInvalidState)
		}
		c.end(ReasonRejected, actor, now)

	case ActionEnd:
		switch {
		case c.State == StateActive:
			c.end(ReasonHangup, actor, now)
		case actor == c.CallerID:
			c.end(ReasonCancelled, actor, now)
		default:
			c.end(ReasonRejected, actor, now)
		}

	case ActionTimeout:
		if c.State != StateRinging {
			return fmt.Errorf("%w: call is not ringing", ErrInvalidState)
		}
		c.end(ReasonNoAnswer, "", now)

	case ActionDisconnect:
		c.end(ReasonDisconnected, actor, now)

	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidState, action)
	}
	return nil
}

func (c *Call) end(reason, actor string, now time.Time) {
	c.State = StateEnded
	c.EndReason = reason
	c.EndedBy = actor
	c.EndedAt = &now
}

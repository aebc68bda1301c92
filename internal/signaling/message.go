package signaling

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

type EventType string

const (
	EventCallUser     EventType = "call-user"
	EventAnswerCall   EventType = "answer-call"
	EventRejectCall   EventType = "reject-call"
	EventICECandidate EventType = "ice-candidate"
	EventEndCall      EventType = "end-call"
	EventChatMessage  EventType = "chat-message"
	EventPing         EventType = "ping"

	EventIncomingCall EventType = "incoming-call"
	EventCallRinging  EventType = "call-ringing"
	EventCallAccepted EventType = "call-accepted"
	EventCallRejected EventType = "call-rejected"
	EventCallEnded    EventType = "call-ended"
	EventPong         EventType = "pong"
	EventError        EventType = "error"
)

// Envelope is one WebSocket text frame. From is always set by the server.
type Envelope struct {
	Type      EventType       `json:"type"`
	CallID    string          `json:"call_id,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(t EventType, callID, from, to string, payload any) (*Envelope, error) {
	env := &Envelope{
		Type:      t,
		CallID:    callID,
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return env, nil
}

func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(e.Payload, v)
}

type CallUserPayload struct {
	To            string                    `json:"to"`
	Media         Media                     `json:"media"`
	AppointmentID string                    `json:"appointment_id,omitempty"`
	SDP           webrtc.SessionDescription `json:"sdp"`
}

type AnswerCallPayload struct {
	CallID string                    `json:"call_id"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type RejectCallPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type ICECandidatePayload struct {
	CallID    string                  `json:"call_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type EndCallPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type ChatMessagePayload struct {
	To            string `json:"to"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Body          string `json:"body"`
}

type IncomingCallPayload struct {
	CallID        string                    `json:"call_id"`
	CallerID      string                    `json:"caller_id"`
	Media         Media                     `json:"media"`
	AppointmentID string                    `json:"appointment_id,omitempty"`
	SDP           webrtc.SessionDescription `json:"sdp"`
}

type CallRingingPayload struct {
	CallID   string `json:"call_id"`
	CalleeID string `json:"callee_id"`
}

type CallAcceptedPayload struct {
	CallID string                    `json:"call_id"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type CallRejectedPayload struct {
	CallID string `json:"call_id,omitempty"`
	Reason string `json:"reason"`
}

type CallEndedPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	RefType EventType `json:"ref_type,omitempty"`
}

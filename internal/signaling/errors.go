package signaling

import "errors"

var (
	ErrCallNotFound   = errors.New("call not found")
	ErrInvalidState   = errors.New("invalid call state")
	ErrNotParticipant = errors.New("not a call participant")
	ErrBusy           = errors.New("user busy")
	ErrQueueFull      = errors.New("candidate queue full")
	ErrInvalidSDP     = errors.New("invalid session description")
	ErrInvalidICE     = errors.New("invalid ice candidate")

	errEmptyPayload = errors.New("payload required")
)

// Error codes sent in error envelopes.
const (
	CodeInvalidMessage      = "invalid_message"
	CodeInvalidPayload      = "invalid_payload"
	CodeUnknownType         = "unknown_type"
	CodeRateLimited         = "rate_limited"
	CodeForbidden           = "forbidden"
	CodeCallNotFound        = "call_not_found"
	CodeInvalidState        = "invalid_state"
	CodePeerUnavailable     = "peer_unavailable"
	CodeSelfCall            = "invalid_target"
	CodeInvalidSDP          = "invalid_sdp"
	CodeInvalidCandidate    = "invalid_candidate"
	CodeQueueFull           = "candidate_queue_full"
	CodeAppointmentRequired = "appointment_required"
	CodeAppointmentNotFound = "appointment_not_found"
	CodeAppointmentInactive = "appointment_not_active"
	CodeInternal            = "internal_error"
)

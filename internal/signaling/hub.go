package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/consult-backend/internal/calllog"
	"github.com/eleven-am/consult-backend/internal/chat"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/pion/webrtc/v4"
)

// CallAuthorizer checks that two users may call each other under an
// appointment. Errors wrap shared.ErrNotFound, shared.ErrForbidden or
// shared.ErrInvalidState. CallableAppointment returns the id of the
// appointment currently open for a call between the two users, or
// shared.ErrNotFound.
type CallAuthorizer interface {
	AuthorizeCall(ctx context.Context, appointmentID, callerID, calleeID string) error
	CallableAppointment(ctx context.Context, callerID, calleeID string) (string, error)
}

type ChatPoster interface {
	PostMessage(ctx context.Context, senderID, recipientID, appointmentID, body string) (dto.ChatMessageResponse, error)
}

type CallRecorder interface {
	Save(ctx context.Context, rec *calllog.Record) error
}

type Config struct {
	RingTimeout        time.Duration
	RequireAppointment bool
	MessagesPerSecond  float64
	MessageBurst       int
}

func DefaultConfig() Config {
	return Config{
		RingTimeout:       45 * time.Second,
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

type Option func(*Hub)

func WithAuthorizer(a CallAuthorizer) Option { return func(h *Hub) { h.authorizer = a } }
func WithChat(c ChatPoster) Option           { return func(h *Hub) { h.chat = c } }
func WithRecorder(r CallRecorder) Option     { return func(h *Hub) { h.recorder = r } }
func WithMetrics(m *Metrics) Option          { return func(h *Hub) { h.metrics = m } }

const backgroundTimeout = 5 * time.Second

// Hub applies signaling events: it validates them, moves calls through their
// state machine in Redis and relays the results through the bridge.
type Hub struct {
	store      *CallStore
	bridge     *Bridge
	authorizer CallAuthorizer
	chat       ChatPoster
	recorder   CallRecorder
	metrics    *Metrics
	cfg        Config
	logger     *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(store *CallStore, bridge *Bridge, cfg Config, logger *slog.Logger, opts ...Option) *Hub {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = DefaultConfig().RingTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		store:  store,
		bridge: bridge,
		cfg:    cfg,
		logger: logger.With("component", "signaling"),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Config() Config {
	return h.cfg
}

func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	h.mu.Unlock()
}

// Connect registers a socket for delivery and marks its user present.
func (h *Hub) Connect(ctx context.Context, c Conn) error {
	if err := h.bridge.Register(c); err != nil {
		return err
	}
	h.touch(ctx, c)
	h.metrics.connOpened()
	return nil
}

// Disconnect drops a socket. When it was the user's last socket anywhere,
// the user's live call ends as disconnected.
func (h *Hub) Disconnect(c Conn) {
	ctx, cancel := context.WithTimeout(h.ctx, backgroundTimeout)
	defer cancel()

	h.bridge.Unregister(c)
	h.metrics.connClosed()
	if err := h.store.Leave(ctx, c.UserID(), c.ID()); err != nil {
		h.logger.Warn("failed to clear presence", "error", err, "user_id", c.UserID())
	}

	online, err := h.store.Online(ctx, c.UserID())
	if err != nil || online {
		return
	}

	call, err := h.store.ActiveCall(ctx, c.UserID())
	if err != nil {
		return
	}
	ended, err := h.store.Transition(ctx, call.ID, ActionDisconnect, c.UserID())
	if err != nil {
		return
	}
	h.finish(ctx, ended, nil, "")
}

func (h *Hub) touch(ctx context.Context, c Conn) {
	if err := h.store.Touch(ctx, c.UserID(), c.ID()); err != nil {
		h.logger.Warn("failed to refresh presence", "error", err, "user_id", c.UserID())
	}
}

type sender interface {
	Conn
	SendEnvelope(env *Envelope) bool
}

// Handle applies one inbound envelope from socket c.
func (h *Hub) Handle(ctx context.Context, c sender, env *Envelope) {
	env.From = c.UserID()
	h.metrics.message(env.Type)

	var err error
	switch env.Type {
	case EventPing:
		pong, _ := NewEnvelope(EventPong, "", "", c.UserID(), nil)
		c.SendEnvelope(pong)
	case EventCallUser:
		err = h.callUser(ctx, c, env)
	case EventAnswerCall:
		err = h.answerCall(ctx, c, env)
	case EventRejectCall:
		err = h.rejectCall(ctx, c, env)
	case EventICECandidate:
		err = h.iceCandidate(ctx, c, env)
	case EventEndCall:
		err = h.endCall(ctx, c, env)
	case EventChatMessage:
		err = h.chatMessage(ctx, c, env)
	default:
		err = newSignalError(CodeUnknownType, "unknown event type")
	}

	if err != nil {
		h.replyError(c, env, err)
	}
}

func (h *Hub) callUser(ctx context.Context, c sender, env *Envelope) error {
	var p CallUserPayload
	if err := env.Decode(&p); err != nil {
		return invalidPayload(err)
	}

	callerID := c.UserID()
	calleeID := p.To
	if calleeID == "" {
		calleeID = env.To
	}
	if calleeID == "" {
		return newSignalError(CodeInvalidPayload, "to is required")
	}
	if calleeID == callerID {
		return newSignalError(CodeSelfCall, "cannot call yourself")
	}
	if p.Media == "" {
		p.Media = MediaVideo
	}
	if !p.Media.Valid() {
		return newSignalError(CodeInvalidPayload, "media must be audio or video")
	}
	if err := validateSDP(p.SDP, webrtc.SDPTypeOffer); err != nil {
		return err
	}

	appointmentID, err := h.authorizeAppointment(ctx, p.AppointmentID, callerID, calleeID)
	if err != nil {
		return err
	}
	p.AppointmentID = appointmentID

	online, err := h.store.Online(ctx, calleeID)
	if err != nil {
		return err
	}
	if !online {
		return newSignalError(CodePeerUnavailable, "user is not online")
	}

	call, err := h.store.Create(ctx, callerID, calleeID, p.Media, p.AppointmentID, h.cfg.RingTimeout)
	if errors.Is(err, ErrBusy) {
		h.refuseBusy(c, h.store.Refused(callerID, calleeID, p.Media, p.AppointmentID))
		return nil
	}
	if err != nil {
		return err
	}
	h.metrics.callStarted()
	h.startRingTimer(call.ID)

	h.publish(ctx, calleeID, EventIncomingCall, call.ID, callerID, IncomingCallPayload{
		CallID:        call.ID,
		CallerID:      callerID,
		Media:         call.Media,
		AppointmentID: call.AppointmentID,
		SDP:           p.SDP,
	})
	h.publish(ctx, callerID, EventCallRinging, call.ID, "", CallRingingPayload{
		CallID:   call.ID,
		CalleeID: calleeID,
	})

	h.logger.Info("call ringing", "call_id", call.ID, "caller_id", callerID, "callee_id", calleeID)
	return nil
}

// authorizeAppointment returns the appointment the call runs under. When the
// caller names none and appointments are required, the open appointment
// between the two users is looked up.
func (h *Hub) authorizeAppointment(ctx context.Context, appointmentID, callerID, calleeID string) (string, error) {
	if appointmentID == "" {
		if !h.cfg.RequireAppointment {
			return "", nil
		}
		if h.authorizer == nil {
			return "", newSignalError(CodeAppointmentRequired, "calls require an appointment")
		}
		id, err := h.authorizer.CallableAppointment(ctx, callerID, calleeID)
		switch {
		case err == nil:
			return id, nil
		case errors.Is(err, shared.ErrNotFound):
			return "", newSignalError(CodeAppointmentRequired, "calls require an appointment")
		default:
			return "", err
		}
	}
	if h.authorizer == nil {
		return appointmentID, nil
	}

	err := h.authorizer.AuthorizeCall(ctx, appointmentID, callerID, calleeID)
	switch {
	case err == nil:
		return appointmentID, nil
	case errors.Is(err, shared.ErrNotFound):
		return "", newSignalError(CodeAppointmentNotFound, "appointment not found")
	case errors.Is(err, shared.ErrForbidden):
		return "", newSignalError(CodeForbidden, "not a participant of this appointment")
	case errors.Is(err, shared.ErrInvalidState):
		return "", newSignalError(CodeAppointmentInactive, "appointment is not open for calls")
	default:
		return "", err
	}
}

func (h *Hub) answerCall(ctx context.Context, c sender, env *Envelope) error {
	var p AnswerCallPayload
	if err := env.Decode(&p); err != nil {
		return invalidPayload(err)
	}
	if p.CallID == "" {
		p.CallID = env.CallID
	}
	if p.CallID == "" {
		return newSignalError(CodeInvalidPayload, "call_id is required")
	}
	if err := validateSDP(p.SDP, webrtc.SDPTypeAnswer); err != nil {
		return err
	}

	call, err := h.store.Transition(ctx, p.CallID, ActionAnswer, c.UserID())
	if err != nil {
		return err
	}
	h.stopRingTimer(call.ID)

	h.publish(ctx, call.CallerID, EventCallAccepted, call.ID, call.CalleeID, CallAcceptedPayload{
		CallID: call.ID,
		SDP:    p.SDP,
	})
	h.publishExcept(ctx, call.CalleeID, c.ID(), EventCallEnded, call.ID, "", CallEndedPayload{
		CallID: call.ID,
		Reason: ReasonAnsweredElsewhere,
	})

	pending, err := h.store.DrainCandidates(ctx, call.ID)
	if err != nil {
		h.logger.Error("failed to drain queued candidates", "error", err, "call_id", call.ID)
	}
	for _, raw := range pending {
		c.SendEnvelope(&Envelope{
			Type:      EventICECandidate,
			CallID:    call.ID,
			From:      call.CallerID,
			To:        call.CalleeID,
			Timestamp: time.Now().UTC(),
			Payload:   raw,
		})
	}

	h.logger.Info("call answered", "call_id", call.ID, "flushed_candidates", len(pending))
	return nil
}

func (h *Hub) rejectCall(ctx context.Context, c sender, env *Envelope) error {
	var p RejectCallPayload
	if err := env.Decode(&p); err != nil {
		return invalidPayload(err)
	}
	if p.CallID == "" {
		p.CallID = env.CallID
	}
	if p.CallID == "" {
		return newSignalError(CodeInvalidPayload, "call_id is required")
	}

	call, err := h.store.Transition(ctx, p.CallID, ActionReject, c.UserID())
	if err != nil {
		return err
	}
	h.finish(ctx, call, c, p.Reason)
	return nil
}

func (h *Hub) endCall(ctx context.Context, c sender, env *Envelope) error {
	var p EndCallPayload
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			return invalidPayload(err)
		}
	}
	if p.CallID == "" {
		p.CallID = env.CallID
	}
	if p.CallID == "" {
		return newSignalError(CodeInvalidPayload, "call_id is required")
	}

	call, err := h.store.Transition(ctx, p.CallID, ActionEnd, c.UserID())
	if err != nil {
		return err
	}
	h.finish(ctx, call, c, "")
	return nil
}

func (h *Hub) iceCandidate(ctx context.Context, c sender, env *Envelope) error {
	var p ICECandidatePayload
	if err := env.Decode(&p); err != nil {
		return invalidPayload(err)
	}
	if p.CallID == "" {
		return newSignalError(CodeInvalidPayload, "call_id is required")
	}
	if err := validateCandidate(p.Candidate); err != nil {
		return err
	}

	userID := c.UserID()
	call, err := h.store.Get(ctx, p.CallID)
	if err != nil {
		return err
	}
	if !call.IsParticipant(userID) {
		return ErrNotParticipant
	}

	switch call.State {
	case StateEnded:
		return ErrInvalidState
	case StateRinging:
		if userID != call.CallerID {
			return newSignalError(CodeInvalidState, "answer the call before sending candidates")
		}
		err := h.store.QueueCandidate(ctx, call.ID, env.Payload)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrInvalidState) {
			return err
		}
		if call, err = h.store.Get(ctx, p.CallID); err != nil {
			return err
		}
		if call.State != StateActive {
			return ErrInvalidState
		}
	}

	peer := call.Peer(userID)
	out := &Envelope{
		Type:      EventICECandidate,
		CallID:    call.ID,
		From:      userID,
		To:        peer,
		Timestamp: time.Now().UTC(),
		Payload:   env.Payload,
	}
	if err := h.bridge.Publish(ctx, peer, out, ""); err != nil {
		h.logger.Error("failed to relay candidate", "error", err, "call_id", call.ID)
	}
	return nil
}

func (h *Hub) chatMessage(ctx context.Context, c sender, env *Envelope) error {
	if h.chat == nil {
		return newSignalError(CodeUnknownType, "chat is not enabled")
	}

	var p ChatMessagePayload
	if err := env.Decode(&p); err != nil {
		return invalidPayload(err)
	}
	if p.To == "" {
		p.To = env.To
	}

	msg, err := h.chat.PostMessage(ctx, c.UserID(), p.To, p.AppointmentID, p.Body)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrSelfMessage), errors.Is(err, chat.ErrUnknownRecipient):
		return newSignalError(CodeSelfCall, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		return newSignalError(CodeAppointmentNotFound, "appointment not found")
	case errors.Is(err, shared.ErrForbidden):
		return newSignalError(CodeForbidden, "not a participant of this appointment")
	case errors.Is(err, chat.ErrEmptyBody), errors.Is(err, chat.ErrBodyTooLong), errors.Is(err, chat.ErrNoRecipient):
		return newSignalError(CodeInvalidPayload, err.Error())
	default:
		return err
	}

	h.publish(ctx, p.To, EventChatMessage, "", c.UserID(), msg)
	h.publishExcept(ctx, c.UserID(), c.ID(), EventChatMessage, "", c.UserID(), msg)
	return nil
}

// finish relays the end of a call and records it. origin is the socket that
// caused the transition, if any; it already knows the outcome.
func (h *Hub) finish(ctx context.Context, call *Call, origin Conn, reason string) {
	h.stopRingTimer(call.ID)

	exclude := ""
	if origin != nil {
		exclude = origin.ID()
	}
	if reason == "" {
		reason = call.EndReason
	}

	if call.EndReason == ReasonRejected {
		h.publish(ctx, call.CallerID, EventCallRejected, call.ID, call.CalleeID, CallRejectedPayload{
			CallID: call.ID,
			Reason: reason,
		})
		h.publishExcept(ctx, call.CalleeID, exclude, EventCallEnded, call.ID, "", CallEndedPayload{
			CallID: call.ID,
			Reason: call.EndReason,
		})
	} else {
		ended := CallEndedPayload{CallID: call.ID, Reason: reason}
		for _, userID := range call.Participants() {
			skip := ""
			if origin != nil && origin.UserID() == userID {
				skip = exclude
			}
			h.publishExcept(ctx, userID, skip, EventCallEnded, call.ID, call.EndedBy, ended)
		}
	}

	h.metrics.callEnded(call)
	h.record(call)
	h.logger.Info("call ended", "call_id", call.ID, "reason", call.EndReason)
}

// refuseBusy answers the caller and records the attempt as a busy outcome
// for both users.
func (h *Hub) refuseBusy(c sender, call *Call) {
	rejected, err := NewEnvelope(EventCallRejected, call.ID, call.CalleeID, call.CallerID, CallRejectedPayload{
		CallID: call.ID,
		Reason: ReasonBusy,
	})
	if err == nil {
		c.SendEnvelope(rejected)
	}
	h.metrics.callEnded(call)
	h.record(call)
}

func (h *Hub) record(call *Call) {
	if h.recorder == nil || call.EndedAt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, backgroundTimeout)
	defer cancel()

	rec := &calllog.Record{
		CallID:        call.ID,
		CallerID:      call.CallerID,
		CalleeID:      call.CalleeID,
		AppointmentID: call.AppointmentID,
		Media:         string(call.Media),
		EndReason:     call.EndReason,
		StartedAt:     call.CreatedAt,
		AnsweredAt:    call.AnsweredAt,
		EndedAt:       *call.EndedAt,
	}
	if err := h.recorder.Save(ctx, rec); err != nil {
		h.logger.Error("failed to record call", "error", err, "call_id", call.ID)
	}
}

func (h *Hub) startRingTimer(callID string) {
	t := time.AfterFunc(h.cfg.RingTimeout, func() { h.ringTimeout(callID) })
	h.mu.Lock()
	h.timers[callID] = t
	h.mu.Unlock()
}

func (h *Hub) stopRingTimer(callID string) {
	h.mu.Lock()
	if t, ok := h.timers[callID]; ok {
		t.Stop()
		delete(h.timers, callID)
	}
	h.mu.Unlock()
}

func (h *Hub) ringTimeout(callID string) {
	h.mu.Lock()
	delete(h.timers, callID)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(h.ctx, backgroundTimeout)
	defer cancel()

	call, err := h.store.Transition(ctx, callID, ActionTimeout, "")
	if err != nil {
		if !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrCallNotFound) {
			h.logger.Error("ring timeout transition failed", "error", err, "call_id", callID)
		}
		return
	}
	h.finish(ctx, call, nil, "")
}

func (h *Hub) publish(ctx context.Context, userID string, t EventType, callID, from string, payload any) {
	h.publishExcept(ctx, userID, "", t, callID, from, payload)
}

// publishExcept delivers to every socket of userID but exclude.
func (h *Hub) publishExcept(ctx context.Context, userID, exclude string, t EventType, callID, from string, payload any) {
	env, err := NewEnvelope(t, callID, from, userID, payload)
	if err != nil {
		h.logger.Error("failed to build envelope", "error", err, "type", t)
		return
	}
	if err := h.bridge.Publish(ctx, userID, env, exclude); err != nil {
		h.logger.Error("failed to publish", "error", err, "type", t, "user_id", userID)
	}
}

func (h *Hub) replyError(c sender, env *Envelope, err error) {
	se := toSignalError(err)
	if se.code == CodeInternal {
		h.logger.Error("signaling handler failed", "error", err, "type", env.Type, "user_id", c.UserID())
	}
	h.metrics.errorSent(se.code)
	c.SendEnvelope(errorEnvelope(env.CallID, se.code, se.message, env.Type))
}

type signalError struct {
	code    string
	message string
}

func (e *signalError) Error() string {
	return e.code + ": " + e.message
}

func newSignalError(code, message string) error {
	return &signalError{code: code, message: message}
}

func invalidPayload(err error) error {
	return newSignalError(CodeInvalidPayload, err.Error())
}

func toSignalError(err error) *signalError {
	var se *signalError
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, ErrCallNotFound):
		return &signalError{CodeCallNotFound, "call not found"}
	case errors.Is(err, ErrNotParticipant):
		return &signalError{CodeForbidden, "not a participant of this call"}
	case errors.Is(err, ErrInvalidState):
		return &signalError{CodeInvalidState, err.Error()}
	case errors.Is(err, ErrQueueFull):
		return &signalError{CodeQueueFull, "too many pending candidates"}
	case errors.Is(err, ErrInvalidSDP):
		return &signalError{CodeInvalidSDP, err.Error()}
	case errors.Is(err, ErrInvalidICE):
		return &signalError{CodeInvalidCandidate, err.Error()}
	default:
		return &signalError{CodeInternal, "internal error"}
	}
}

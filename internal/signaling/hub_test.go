package signaling

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eleven-am/consult-backend/internal/calllog"
	"github.com/eleven-am/consult-backend/internal/chat"
	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func startCall(t *testing.T, env *testEnv, caller, callee *fakeConn) string {
	t.Helper()
	send(t, env.hub, caller, EventCallUser, "", CallUserPayload{To: callee.userID, Media: MediaVideo, SDP: testOffer()})
	incoming := decode[IncomingCallPayload](t, callee.waitFor(t, EventIncomingCall))
	ringing := decode[CallRingingPayload](t, caller.waitFor(t, EventCallRinging))
	if incoming.CallID != ringing.CallID {
		t.Fatalf("call ids differ: %s vs %s", incoming.CallID, ringing.CallID)
	}
	return ringing.CallID
}

func TestHub_CallLifecycle(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	recorder := calllog.NewStore(env.redis)
	env.hub.recorder = recorder

	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")

	send(t, env.hub, alice, EventCallUser, "", CallUserPayload{To: "bob", Media: MediaAudio, SDP: testOffer()})

	incomingEnv := bob.waitFor(t, EventIncomingCall)
	if incomingEnv.From != "alice" {
		t.Errorf("incoming From = %q, want alice", incomingEnv.From)
	}
	incoming := decode[IncomingCallPayload](t, incomingEnv)
	if incoming.CallerID != "alice" || incoming.Media != MediaAudio || incoming.SDP.SDP != testOfferSDP {
		t.Errorf("incoming = %+v", incoming)
	}
	callID := decode[CallRingingPayload](t, alice.waitFor(t, EventCallRinging)).CallID

	send(t, env.hub, alice, EventICECandidate, callID, candidateJSON(callID, testCandidate))
	bob.expectNone(t, EventICECandidate)

	send(t, env.hub, bob, EventAnswerCall, callID, AnswerCallPayload{CallID: callID, SDP: testAnswer()})
	accepted := decode[CallAcceptedPayload](t, alice.waitFor(t, EventCallAccepted))
	if accepted.CallID != callID || accepted.SDP.Type.String() != "answer" {
		t.Errorf("accepted = %+v", accepted)
	}

	flushed := bob.waitFor(t, EventICECandidate)
	if got := decode[ICECandidatePayload](t, flushed); got.Candidate.Candidate != testCandidate {
		t.Errorf("flushed candidate = %+v", got)
	}

	send(t, env.hub, bob, EventICECandidate, callID, candidateJSON(callID, ""))
	relayed := alice.waitFor(t, EventICECandidate)
	if relayed.From != "bob" || relayed.CallID != callID {
		t.Errorf("relayed = %+v", relayed)
	}

	active, err := env.store.ActiveCall(context.Background(), "alice")
	if err != nil || active.State != StateActive {
		t.Fatalf("ActiveCall = %+v, %v", active, err)
	}

	send(t, env.hub, alice, EventEndCall, callID, EndCallPayload{CallID: callID})
	ended := decode[CallEndedPayload](t, bob.waitFor(t, EventCallEnded))
	if ended.Reason != ReasonHangup {
		t.Errorf("ended reason = %q, want hangup", ended.Reason)
	}

	if _, err := env.store.ActiveCall(context.Background(), "alice"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("ActiveCall after end = %v, want ErrCallNotFound", err)
	}

	history, err := recorder.History(context.Background(), "bob", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v", history, err)
	}
	if !history[0].Answered() || history[0].EndReason != ReasonHangup {
		t.Errorf("record = %+v", history[0])
	}

	send(t, env.hub, bob, EventEndCall, callID, EndCallPayload{CallID: callID})
	bob.waitError(t, CodeInvalidState)
}

func TestHub_RejectAndBusy(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")
	carol := env.connect(t, "c1", "carol")

	callID := startCall(t, env, alice, bob)

	send(t, env.hub, carol, EventCallUser, "", CallUserPayload{To: "bob", SDP: testOffer()})
	busy := decode[CallRejectedPayload](t, carol.waitFor(t, EventCallRejected))
	if busy.Reason != ReasonBusy {
		t.Errorf("busy reason = %q", busy.Reason)
	}

	send(t, env.hub, bob, EventCallUser, "", CallUserPayload{To: "carol", SDP: testOffer()})
	if got := decode[CallRejectedPayload](t, bob.waitFor(t, EventCallRejected)); got.Reason != ReasonBusy {
		t.Errorf("busy callee calling out = %q", got.Reason)
	}

	send(t, env.hub, alice, EventRejectCall, callID, RejectCallPayload{CallID: callID})
	alice.waitError(t, CodeInvalidState)

	send(t, env.hub, bob, EventRejectCall, callID, RejectCallPayload{CallID: callID, Reason: "declined"})
	rejected := decode[CallRejectedPayload](t, alice.waitFor(t, EventCallRejected))
	if rejected.Reason != "declined" || rejected.CallID != callID {
		t.Errorf("rejected = %+v", rejected)
	}

	send(t, env.hub, carol, EventCallUser, "", CallUserPayload{To: "bob", SDP: testOffer()})
	bob.waitFor(t, EventIncomingCall)
}

func TestHub_BusyIsRecorded(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	env := newTestEnv(t, DefaultConfig(), WithMetrics(m))
	recorder := calllog.NewStore(env.redis)
	env.hub.recorder = recorder

	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")
	carol := env.connect(t, "c1", "carol")
	startCall(t, env, alice, bob)

	send(t, env.hub, carol, EventCallUser, "", CallUserPayload{To: "bob", SDP: testOffer()})
	busy := decode[CallRejectedPayload](t, carol.waitFor(t, EventCallRejected))
	if busy.Reason != ReasonBusy || busy.CallID == "" {
		t.Fatalf("busy = %+v", busy)
	}

	if got := testutil.ToFloat64(m.callsEnded.WithLabelValues(ReasonBusy)); got != 1 {
		t.Errorf("busy calls ended = %v, want 1", got)
	}

	ctx := context.Background()
	for _, userID := range []string{"carol", "bob"} {
		history, err := recorder.History(ctx, userID, 10)
		if err != nil || len(history) != 1 {
			t.Fatalf("%s history = %v, %v", userID, history, err)
		}
		rec := history[0]
		if rec.CallID != busy.CallID || rec.EndReason != ReasonBusy || rec.CallerID != "carol" || rec.CalleeID != "bob" {
			t.Errorf("%s record = %+v", userID, rec)
		}

		sum, err := recorder.GetSummary(ctx, userID)
		if err != nil {
			t.Fatalf("GetSummary(%s) error: %v", userID, err)
		}
		if sum.TotalCalls != 1 || sum.Rejected != 1 || sum.Missed != 0 {
			t.Errorf("%s summary = %+v", userID, sum)
		}
	}

	if _, err := env.store.Get(ctx, busy.CallID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("refused call stored: %v", err)
	}
}

func TestHub_CallerCancels(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")

	callID := startCall(t, env, alice, bob)
	send(t, env.hub, alice, EventEndCall, callID, EndCallPayload{CallID: callID})

	if got := decode[CallEndedPayload](t, bob.waitFor(t, EventCallEnded)); got.Reason != ReasonCancelled {
		t.Errorf("reason = %q, want cancelled", got.Reason)
	}
}

func TestHub_MultiTab(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	bobPhone := env.connect(t, "b1", "bob")
	bobLaptop := env.connect(t, "b2", "bob")

	send(t, env.hub, alice, EventCallUser, "", CallUserPayload{To: "bob", SDP: testOffer()})
	callID := decode[IncomingCallPayload](t, bobPhone.waitFor(t, EventIncomingCall)).CallID
	bobLaptop.waitFor(t, EventIncomingCall)

	send(t, env.hub, bobPhone, EventAnswerCall, callID, AnswerCallPayload{CallID: callID, SDP: testAnswer()})
	alice.waitFor(t, EventCallAccepted)

	other := decode[CallEndedPayload](t, bobLaptop.waitFor(t, EventCallEnded))
	if other.Reason != ReasonAnsweredElsewhere {
		t.Errorf("other tab reason = %q", other.Reason)
	}
	bobPhone.expectNone(t, EventCallEnded)
}

func TestHub_Errors(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")
	eve := env.connect(t, "e1", "eve")

	tests := []struct {
		name    string
		from    *fakeConn
		typ     EventType
		payload any
		code    string
	}{
		{"self call", alice, EventCallUser, CallUserPayload{To: "alice", SDP: testOffer()}, CodeSelfCall},
		{"missing target", alice, EventCallUser, CallUserPayload{SDP: testOffer()}, CodeInvalidPayload},
		{"offline peer", alice, EventCallUser, CallUserPayload{To: "zed", SDP: testOffer()}, CodePeerUnavailable},
		{"bad media", alice, EventCallUser, CallUserPayload{To: "bob", Media: "hologram", SDP: testOffer()}, CodeInvalidPayload},
		{"answer as offer", alice, EventCallUser, CallUserPayload{To: "bob", SDP: testAnswer()}, CodeInvalidSDP},
		{"garbage sdp", alice, EventCallUser, map[string]any{"to": "bob", "sdp": map[string]string{"type": "offer", "sdp": "hello"}}, CodeInvalidSDP},
		{"unknown type", alice, "dance", nil, CodeUnknownType},
		{"missing call", bob, EventAnswerCall, AnswerCallPayload{CallID: "call_missing", SDP: testAnswer()}, CodeCallNotFound},
		{"end without id", bob, EventEndCall, EndCallPayload{}, CodeInvalidPayload},
		{"bad candidate", alice, EventICECandidate, candidateJSON("call_x", "candidate:nonsense"), CodeInvalidCandidate},
		{"chat disabled", alice, EventChatMessage, ChatMessagePayload{To: "bob", Body: "hi"}, CodeUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, env.hub, tt.from, tt.typ, "", tt.payload)
			p := tt.from.waitError(t, tt.code)
			if p.RefType != tt.typ {
				t.Errorf("ref_type = %q, want %q", p.RefType, tt.typ)
			}
		})
	}

	oversized := testOffer()
	oversized.SDP = testOfferSDP + fmt.Sprintf("a=x:%0*d\r\n", maxSDPSize, 0)
	send(t, env.hub, alice, EventCallUser, "", CallUserPayload{To: "bob", SDP: oversized})
	alice.waitError(t, CodeInvalidSDP)

	callID := startCall(t, env, alice, bob)

	send(t, env.hub, eve, EventICECandidate, callID, candidateJSON(callID, testCandidate))
	eve.waitError(t, CodeForbidden)

	send(t, env.hub, eve, EventEndCall, callID, EndCallPayload{CallID: callID})
	eve.waitError(t, CodeForbidden)

	send(t, env.hub, bob, EventICECandidate, callID, candidateJSON(callID, testCandidate))
	bob.waitError(t, CodeInvalidState)
}

func TestHub_CandidateQueueBounded(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")
	callID := startCall(t, env, alice, bob)

	for range maxPendingICE {
		send(t, env.hub, alice, EventICECandidate, callID, candidateJSON(callID, testCandidate))
	}
	send(t, env.hub, alice, EventICECandidate, callID, candidateJSON(callID, testCandidate))
	alice.waitError(t, CodeQueueFull)

	send(t, env.hub, bob, EventAnswerCall, callID, AnswerCallPayload{CallID: callID, SDP: testAnswer()})
	for range maxPendingICE {
		bob.waitFor(t, EventICECandidate)
	}
}

func TestHub_RingTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RingTimeout = 100 * time.Millisecond
	env := newTestEnv(t, cfg)
	alice := env.connect(t, "a1", "alice")
	bob := env.connect(t, "b1", "bob")

	callID := startCall(t, env, alice, bob)

	for _, c := range []*fakeConn{alice, bob} {
		ended := decode[CallEndedPayload](t, c.waitFor(t, EventCallEnded))
		if ended.Reason != ReasonNoAnswer || ended.CallID != callID {
			t.Errorf("%s ended = %+v", c.id, ended)
		}
	}

	send(t, env.hub, bob, EventAnswerCall, callID, AnswerCallPayload{CallID: callID, SDP: testAnswer()})
	bob.waitError(t, CodeInvalidState)
}

func TestHub_DisconnectEndsCall(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	aliceTab := env.connect(t, "a2", "alice")
	bob := env.connect(t, "b1", "bob")

	callID := startCall(t, env, alice, bob)
	send(t, env.hub, bob, EventAnswerCall, callID, AnswerCallPayload{CallID: callID, SDP: testAnswer()})
	alice.waitFor(t, EventCallAccepted)

	env.hub.Disconnect(alice)
	bob.expectNone(t, EventCallEnded)

	env.hub.Disconnect(aliceTab)
	ended := decode[CallEndedPayload](t, bob.waitFor(t, EventCallEnded))
	if ended.Reason != ReasonDisconnected {
		t.Errorf("reason = %q, want disconnected", ended.Reason)
	}

	online, _ := env.store.Online(context.Background(), "alice")
	if online {
		t.Error("alice should be offline")
	}
}

func TestHub_Ping(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	alice := env.connect(t, "a1", "alice")
	send(t, env.hub, alice, EventPing, "", nil)
	alice.waitFor(t, EventPong)
}

type stubAuthorizer struct {
	err      error
	callable string
	calls    int
}

func (s *stubAuthorizer) AuthorizeCall(_ context.Context, appointmentID, callerID, calleeID string) error {
	s.calls++
	return s.err
}

func (s *stubAuthorizer) CallableAppointment(_ context.Context, callerID, calleeID string) (string, error) {
	if s.callable == "" {
		return "", shared.ErrNotFound
	}
	return s.callable, nil
}

func TestHub_AppointmentGating(t *testing.T) {
	tests := []struct {
		name        string
		require     bool
		appointment string
		callable    string
		authErr     error
		wantCode    string
		wantAppt    string
	}{
		{"required but none open", true, "", "", nil, CodeAppointmentRequired, ""},
		{"required and resolved", true, "", "appt_open", nil, "", "appt_open"},
		{"not found", false, "appt_1", "", shared.ErrNotFound, CodeAppointmentNotFound, ""},
		{"not participant", false, "appt_1", "", fmt.Errorf("%w: nope", shared.ErrForbidden), CodeForbidden, ""},
		{"outside window", false, "appt_1", "", fmt.Errorf("%w: too early", shared.ErrInvalidState), CodeAppointmentInactive, ""},
		{"authorized", true, "appt_1", "", nil, "", "appt_1"},
		{"optional and missing", false, "", "appt_open", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RequireAppointment = tt.require
			authz := &stubAuthorizer{err: tt.authErr, callable: tt.callable}
			env := newTestEnv(t, cfg, WithAuthorizer(authz))
			alice := env.connect(t, "a1", "alice")
			bob := env.connect(t, "b1", "bob")

			send(t, env.hub, alice, EventCallUser, "", CallUserPayload{To: "bob", AppointmentID: tt.appointment, SDP: testOffer()})
			if tt.wantCode != "" {
				alice.waitError(t, tt.wantCode)
				return
			}
			incoming := decode[IncomingCallPayload](t, bob.waitFor(t, EventIncomingCall))
			if incoming.AppointmentID != tt.wantAppt {
				t.Errorf("appointment = %q, want %q", incoming.AppointmentID, tt.wantAppt)
			}
			if tt.wantAppt != "" {
				active, err := env.store.ActiveCall(context.Background(), "alice")
				if err != nil || active.AppointmentID != tt.wantAppt {
					t.Errorf("stored call = %+v, %v", active, err)
				}
			}
		})
	}
}

type stubChat struct {
	err error
}

func (s *stubChat) PostMessage(_ context.Context, senderID, recipientID, appointmentID, body string) (dto.ChatMessageResponse, error) {
	if s.err != nil {
		return dto.ChatMessageResponse{}, s.err
	}
	return dto.ChatMessageResponse{
		ID:          "msg_1",
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
	}, nil
}

func TestHub_ChatMessage(t *testing.T) {
	poster := &stubChat{}
	env := newTestEnv(t, DefaultConfig(), WithChat(poster))
	alice := env.connect(t, "a1", "alice")
	aliceTab := env.connect(t, "a2", "alice")
	bob := env.connect(t, "b1", "bob")

	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "bob", Body: "hello"})

	got := decode[dto.ChatMessageResponse](t, bob.waitFor(t, EventChatMessage))
	if got.Body != "hello" || got.SenderID != "alice" {
		t.Errorf("bob got %+v", got)
	}
	aliceTab.waitFor(t, EventChatMessage)
	alice.expectNone(t, EventChatMessage)

	poster.err = chat.ErrBodyTooLong
	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "bob", Body: "x"})
	alice.waitError(t, CodeInvalidPayload)

	poster.err = chat.ErrSelfMessage
	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "alice", Body: "x"})
	alice.waitError(t, CodeSelfCall)

	poster.err = chat.ErrUnknownRecipient
	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "user_ghost", Body: "x"})
	alice.waitError(t, CodeSelfCall)

	poster.err = fmt.Errorf("%w: not a participant", shared.ErrForbidden)
	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "bob", AppointmentID: "appt_9", Body: "x"})
	alice.waitError(t, CodeForbidden)

	poster.err = shared.ErrNotFound
	send(t, env.hub, alice, EventChatMessage, "", ChatMessagePayload{To: "bob", AppointmentID: "appt_missing", Body: "x"})
	alice.waitError(t, CodeAppointmentNotFound)
}

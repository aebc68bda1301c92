package signaling

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
)

const testOfferSDP = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

const testCandidate = "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host"

func testOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testOfferSDP}
}

func testAnswer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testOfferSDP}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// fakeConn records envelopes delivered to one socket.
type fakeConn struct {
	id     string
	userID string
	ch     chan *Envelope

	mu      sync.Mutex
	pending []*Envelope
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID, ch: make(chan *Envelope, 256)}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	select {
	case f.ch <- &env:
		return true
	default:
		return false
	}
}

func (f *fakeConn) SendEnvelope(env *Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return f.Send(data)
}

// waitFor returns the first envelope of type t, keeping others for later
// calls.
func (f *fakeConn) waitFor(tb testing.TB, t EventType) *Envelope {
	tb.Helper()
	f.mu.Lock()
	for i, env := range f.pending {
		if env.Type == t {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			f.mu.Unlock()
			return env
		}
	}
	f.mu.Unlock()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.ch:
			if env.Type == t {
				return env
			}
			f.mu.Lock()
			f.pending = append(f.pending, env)
			f.mu.Unlock()
		case <-timeout:
			tb.Fatalf("%s: timed out waiting for %s", f.id, t)
			return nil
		}
	}
}

// expectNone asserts no envelope of type t arrives within a short window.
func (f *fakeConn) expectNone(tb testing.TB, t EventType) {
	tb.Helper()
	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case env := <-f.ch:
			if env.Type == t {
				tb.Fatalf("%s: unexpected %s: %s", f.id, t, env.Payload)
			}
			f.mu.Lock()
			f.pending = append(f.pending, env)
			f.mu.Unlock()
		case <-deadline:
			return
		}
	}
}

func (f *fakeConn) waitError(tb testing.TB, code string) ErrorPayload {
	tb.Helper()
	env := f.waitFor(tb, EventError)
	var p ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		tb.Fatalf("decode error payload: %v", err)
	}
	if p.Code != code {
		tb.Fatalf("%s: error code = %q (%s), want %q", f.id, p.Code, p.Message, code)
	}
	return p
}

type testEnv struct {
	redis  *redis.Client
	mr     *miniredis.Miniredis
	store  *CallStore
	bridge *Bridge
	hub    *Hub
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	client, mr := setupRedis(t)
	store := NewCallStore(client)
	bridge := NewBridge(client, discardLogger())
	hub := NewHub(store, bridge, cfg, discardLogger(), opts...)
	t.Cleanup(func() {
		hub.Close()
		bridge.Close()
	})
	return &testEnv{redis: client, mr: mr, store: store, bridge: bridge, hub: hub}
}

// connect registers a socket and waits until its user channel subscription
// is live in Redis.
func (e *testEnv) connect(t *testing.T, id, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id, userID)
	if err := e.hub.Connect(context.Background(), conn); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	waitSubscribed(t, e.redis, userChannel(userID))
	return conn
}

func waitSubscribed(t *testing.T, client *redis.Client, channel string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := client.PubSubNumSub(context.Background(), channel).Result()
		if err == nil && counts[channel] > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription to %s never became active", channel)
}

func send(t *testing.T, hub *Hub, c *fakeConn, typ EventType, callID string, payload any) {
	t.Helper()
	env, err := NewEnvelope(typ, callID, "", "", payload)
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	env.From = "spoofed"
	hub.Handle(context.Background(), c, env)
}

func decode[T any](t *testing.T, env *Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return v
}

func candidateJSON(callID, candidate string) ICECandidatePayload {
	mid := "0"
	idx := uint16(0)
	return ICECandidatePayload{
		CallID: callID,
		Candidate: webrtc.ICECandidateInit{
			Candidate:     candidate,
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		},
	}
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

func sleepBrief() {
	time.Sleep(10 * time.Millisecond)
}

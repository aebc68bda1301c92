package signaling

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCallStore(t *testing.T) (*CallStore, time.Time) {
	t.Helper()
	client, _ := setupRedis(t)
	store := NewCallStore(client)
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, now
}

func TestCallStore_CreateAndBusy(t *testing.T) {
	store, now := newTestCallStore(t)
	ctx := context.Background()

	call, err := store.Create(ctx, "alice", "bob", MediaVideo, "appt_1", 30*time.Second)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !hasPrefix(call.ID, "call_") {
		t.Errorf("ID = %q, want call_ prefix", call.ID)
	}
	if call.State != StateRinging || !call.RingDeadline.Equal(now.Add(30*time.Second)) {
		t.Errorf("call = %+v", call)
	}

	got, err := store.Get(ctx, call.ID)
	if err != nil || got.AppointmentID != "appt_1" || got.CalleeID != "bob" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	for _, pair := range [][2]string{{"carol", "bob"}, {"bob", "carol"}, {"alice", "carol"}} {
		if _, err := store.Create(ctx, pair[0], pair[1], MediaAudio, "", 30*time.Second); !errors.Is(err, ErrBusy) {
			t.Errorf("Create(%s -> %s) error = %v, want ErrBusy", pair[0], pair[1], err)
		}
	}

	if _, err := store.Create(ctx, "carol", "dave", MediaAudio, "", 30*time.Second); err != nil {
		t.Errorf("unrelated call error: %v", err)
	}
}

func TestCallStore_StaleRingingIsNotBusy(t *testing.T) {
	store, now := newTestCallStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "alice", "bob", MediaVideo, "", 30*time.Second); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	store.now = func() time.Time { return now.Add(30*time.Second + staleRingGrace + time.Second) }

	if _, err := store.ActiveCall(ctx, "alice"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("ActiveCall error = %v, want ErrCallNotFound", err)
	}
	if _, err := store.Create(ctx, "carol", "bob", MediaVideo, "", 30*time.Second); err != nil {
		t.Errorf("Create over stale call error: %v", err)
	}
}

func TestCallStore_TransitionReleasesIndex(t *testing.T) {
	store, _ := newTestCallStore(t)
	ctx := context.Background()

	call, err := store.Create(ctx, "alice", "bob", MediaVideo, "", time.Minute)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	active, err := store.Transition(ctx, call.ID, ActionAnswer, "bob")
	if err != nil || active.State != StateActive || active.AnsweredAt == nil {
		t.Fatalf("answer = %+v, %v", active, err)
	}
	if got, err := store.ActiveCall(ctx, "bob"); err != nil || got.ID != call.ID {
		t.Errorf("ActiveCall(bob) = %+v, %v", got, err)
	}

	if _, err := store.Transition(ctx, call.ID, ActionAnswer, "bob"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second answer error = %v, want ErrInvalidState", err)
	}
	if _, err := store.Transition(ctx, call.ID, ActionEnd, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("stranger end error = %v, want ErrNotParticipant", err)
	}

	ended, err := store.Transition(ctx, call.ID, ActionEnd, "alice")
	if err != nil || ended.EndReason != ReasonHangup || ended.EndedBy != "alice" {
		t.Fatalf("end = %+v, %v", ended, err)
	}

	for _, user := range []string{"alice", "bob"} {
		if _, err := store.ActiveCall(ctx, user); !errors.Is(err, ErrCallNotFound) {
			t.Errorf("ActiveCall(%s) error = %v, want ErrCallNotFound", user, err)
		}
	}

	stored, err := store.Get(ctx, call.ID)
	if err != nil || stored.State != StateEnded {
		t.Errorf("ended call should remain readable: %+v, %v", stored, err)
	}
	if ttl := store.redis.TTL(ctx, callKey(call.ID)).Val(); ttl > endedCallTTL {
		t.Errorf("ended TTL = %v, want <= %v", ttl, endedCallTTL)
	}

	if _, err := store.Create(ctx, "bob", "alice", MediaAudio, "", time.Minute); err != nil {
		t.Errorf("Create after end error: %v", err)
	}
}

func TestCallStore_TransitionKeepsNewerIndex(t *testing.T) {
	store, now := newTestCallStore(t)
	ctx := context.Background()

	old, err := store.Create(ctx, "alice", "bob", MediaVideo, "", time.Second)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	store.now = func() time.Time { return now.Add(time.Second + staleRingGrace + time.Second) }
	fresh, err := store.Create(ctx, "carol", "bob", MediaVideo, "", time.Minute)
	if err != nil {
		t.Fatalf("Create fresh error: %v", err)
	}

	if _, err := store.Transition(ctx, old.ID, ActionTimeout, ""); err != nil {
		t.Fatalf("timeout error: %v", err)
	}

	got, err := store.ActiveCall(ctx, "bob")
	if err != nil || got.ID != fresh.ID {
		t.Errorf("ActiveCall(bob) = %+v, %v, want %s", got, err, fresh.ID)
	}
}

func TestCallStore_CandidateQueue(t *testing.T) {
	store, _ := newTestCallStore(t)
	ctx := context.Background()

	call, err := store.Create(ctx, "alice", "bob", MediaVideo, "", time.Minute)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for i := range maxPendingICE {
		if err := store.QueueCandidate(ctx, call.ID, []byte{byte('a' + i%26)}); err != nil {
			t.Fatalf("QueueCandidate %d error: %v", i, err)
		}
	}
	if err := store.QueueCandidate(ctx, call.ID, []byte("x")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("overflow error = %v, want ErrQueueFull", err)
	}

	drained, err := store.DrainCandidates(ctx, call.ID)
	if err != nil || len(drained) != maxPendingICE {
		t.Fatalf("DrainCandidates = %d, %v", len(drained), err)
	}
	if string(drained[0]) != "a" || string(drained[1]) != "b" {
		t.Errorf("order = %q, %q", drained[0], drained[1])
	}
	if again, _ := store.DrainCandidates(ctx, call.ID); len(again) != 0 {
		t.Errorf("second drain = %d items, want 0", len(again))
	}

	if _, err := store.Transition(ctx, call.ID, ActionAnswer, "bob"); err != nil {
		t.Fatalf("answer error: %v", err)
	}
	if err := store.QueueCandidate(ctx, call.ID, []byte("late")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("queue after answer error = %v, want ErrInvalidState", err)
	}
	if err := store.QueueCandidate(ctx, "call_missing", []byte("x")); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("queue on missing call error = %v, want ErrCallNotFound", err)
	}
}

func TestCallStore_Presence(t *testing.T) {
	store, now := newTestCallStore(t)
	ctx := context.Background()

	online, err := store.Online(ctx, "alice")
	if err != nil || online {
		t.Fatalf("Online before touch = %v, %v", online, err)
	}

	if err := store.Touch(ctx, "alice", "tab1"); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if err := store.Touch(ctx, "alice", "tab2"); err != nil {
		t.Fatalf("Touch error: %v", err)
	}

	if err := store.Leave(ctx, "alice", "tab1"); err != nil {
		t.Fatalf("Leave error: %v", err)
	}
	if online, _ := store.Online(ctx, "alice"); !online {
		t.Error("alice should still be online through tab2")
	}

	store.now = func() time.Time { return now.Add(presenceTTL + time.Second) }
	if online, _ := store.Online(ctx, "alice"); online {
		t.Error("presence should lapse without pongs")
	}

	store.now = func() time.Time { return now }
	if err := store.Leave(ctx, "alice", "tab2"); err != nil {
		t.Fatalf("Leave error: %v", err)
	}
	if online, _ := store.Online(ctx, "alice"); online {
		t.Error("alice should be offline after last tab leaves")
	}
}

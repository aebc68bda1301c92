package signaling

import (
	"context"
	"testing"
)

func TestBridge_CrossInstanceDelivery(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	east := NewBridge(client, discardLogger())
	west := NewBridge(client, discardLogger())
	t.Cleanup(func() {
		east.Close()
		west.Close()
	})

	phone := newFakeConn("c1", "bob")
	laptop := newFakeConn("c2", "bob")
	if err := east.Register(phone); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := west.Register(laptop); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	waitNumSub(t, east, "bob", 2)

	env, _ := NewEnvelope(EventChatMessage, "", "alice", "bob", map[string]string{"body": "hi"})
	if err := east.Publish(ctx, "bob", env, ""); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	phone.waitFor(t, EventChatMessage)
	laptop.waitFor(t, EventChatMessage)

	if err := west.Publish(ctx, "bob", env, "c1"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	laptop.waitFor(t, EventChatMessage)
	phone.expectNone(t, EventChatMessage)
}

func TestBridge_UnregisterCounts(t *testing.T) {
	client, _ := setupRedis(t)
	b := NewBridge(client, discardLogger())
	t.Cleanup(func() { b.Close() })

	a := newFakeConn("c1", "alice")
	a2 := newFakeConn("c2", "alice")
	bob := newFakeConn("c3", "bob")
	for _, c := range []*fakeConn{a, a2, bob} {
		if err := b.Register(c); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}

	if users, sockets := b.LocalCount(); users != 2 || sockets != 3 {
		t.Errorf("LocalCount = %d, %d, want 2, 3", users, sockets)
	}
	if left := b.Unregister(a); left != 1 {
		t.Errorf("Unregister left = %d, want 1", left)
	}
	if left := b.Unregister(a2); left != 0 {
		t.Errorf("Unregister left = %d, want 0", left)
	}
	if left := b.Unregister(a2); left != 0 {
		t.Errorf("repeat Unregister left = %d, want 0", left)
	}
	if users, sockets := b.LocalCount(); users != 1 || sockets != 1 {
		t.Errorf("LocalCount = %d, %d, want 1, 1", users, sockets)
	}
}

func waitNumSub(t *testing.T, b *Bridge, userID string, want int64) {
	t.Helper()
	channel := userChannel(userID)
	for range 200 {
		counts, err := b.redis.PubSubNumSub(context.Background(), channel).Result()
		if err == nil && counts[channel] >= want {
			return
		}
		sleepBrief()
	}
	t.Fatalf("%s never reached %d subscribers", channel, want)
}

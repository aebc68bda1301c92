package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const userChannelPrefix = "signal:user:"

func userChannel(userID string) string {
	return userChannelPrefix + userID
}

// Conn is one live socket as seen by the bridge.
type Conn interface {
	ID() string
	UserID() string
	Send(data []byte) bool
}

type delivery struct {
	Exclude  string          `json:"exclude,omitempty"`
	Envelope json.RawMessage `json:"envelope"`
}

// Bridge fans envelopes out to every socket of a user across instances. Each
// instance subscribes to signal:user:<id> for the users it holds sockets for,
// and every publish goes through Redis so local and remote sockets see the
// same order.
type Bridge struct {
	redis  *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]map[string]Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBridge(redisClient *redis.Client, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		redis:  redisClient,
		pubsub: redisClient.Subscribe(ctx),
		logger: logger.With("component", "bridge"),
		conns:  make(map[string]map[string]Conn),
		ctx:    ctx,
		cancel: cancel,
	}

	b.wg.Add(1)
	go b.receiveLoop()
	return b
}

func (b *Bridge) Register(conn Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	userConns, ok := b.conns[conn.UserID()]
	if !ok {
		if err := b.pubsub.Subscribe(b.ctx, userChannel(conn.UserID())); err != nil {
			return fmt.Errorf("subscribe user channel: %w", err)
		}
		userConns = make(map[string]Conn)
		b.conns[conn.UserID()] = userConns
	}
	userConns[conn.ID()] = conn
	return nil
}

// Unregister removes the socket and reports how many sockets of the same user
// remain on this instance.
func (b *Bridge) Unregister(conn Conn) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	userConns, ok := b.conns[conn.UserID()]
	if !ok {
		return 0
	}
	delete(userConns, conn.ID())
	if len(userConns) > 0 {
		return len(userConns)
	}

	delete(b.conns, conn.UserID())
	if err := b.pubsub.Unsubscribe(b.ctx, userChannel(conn.UserID())); err != nil {
		b.logger.Warn("unsubscribe user channel", "error", err, "user_id", conn.UserID())
	}
	return 0
}

// Publish delivers env to every socket of userID except the one named by
// exclude.
func (b *Bridge) Publish(ctx context.Context, userID string, env *Envelope, exclude string) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	payload, err := json.Marshal(delivery{Exclude: exclude, Envelope: data})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	if err := b.redis.Publish(ctx, userChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish to user: %w", err)
	}
	return nil
}

func (b *Bridge) LocalCount() (users, sockets int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	users = len(b.conns)
	for _, userConns := range b.conns {
		sockets += len(userConns)
	}
	return users, sockets
}

func (b *Bridge) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

func (b *Bridge) receiveLoop() {
	defer b.wg.Done()

	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.deliver(msg)
		}
	}
}

func (b *Bridge) deliver(msg *redis.Message) {
	userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)

	var d delivery
	if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
		b.logger.Error("unmarshal delivery", "error", err, "user_id", userID)
		return
	}

	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns[userID]))
	for id, conn := range b.conns[userID] {
		if id != d.Exclude {
			targets = append(targets, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range targets {
		if !conn.Send(d.Envelope) {
			b.logger.Warn("socket send buffer full, dropping message", "user_id", userID, "conn_id", conn.ID())
		}
	}
}

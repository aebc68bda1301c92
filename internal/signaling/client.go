package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 128 * 1024
	sendBuffer     = 128
)

// Client is one authenticated WebSocket. Reads and writes run on their own
// goroutines; Send never blocks.
type Client struct {
	id      string
	userID  string
	ws      *websocket.Conn
	limiter *rate.Limiter
	logger  *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(ws *websocket.Conn, userID string, limiter *rate.Limiter, logger *slog.Logger) *Client {
	id := "conn_" + uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		ws:      ws,
		limiter: limiter,
		logger:  logger.With("user_id", userID, "conn_id", id),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) SendEnvelope(env *Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("failed to marshal envelope", "error", err)
		return false
	}
	return c.Send(data)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump decodes frames and hands them to the hub until the socket fails.
func (c *Client) readPump(ctx context.Context, hub *Hub) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		hub.touch(ctx, c)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			hub.metrics.rateLimited()
			c.SendEnvelope(errorEnvelope("", CodeRateLimited, "too many messages", ""))
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.SendEnvelope(errorEnvelope("", CodeInvalidMessage, "malformed envelope", ""))
			continue
		}

		hub.Handle(ctx, c, &env)
	}
}

func (c *Client) writePump(ctx context.Context, hub *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			hub.touch(ctx, c)
		}
	}
}

func errorEnvelope(callID, code, message string, ref EventType) *Envelope {
	env, _ := NewEnvelope(EventError, callID, "", "", ErrorPayload{Code: code, Message: message, RefType: ref})
	return env
}

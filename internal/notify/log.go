package notify

import (
	"context"
	"log/slog"
	"sync"
)

// LogMailer writes messages to the log instead of sending them. It keeps the
// sent messages so callers can inspect them.
type LogMailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email", "to", msg.ToEmail, "subject", msg.Subject)
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

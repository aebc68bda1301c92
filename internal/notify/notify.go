package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

func (m Message) HasRecipient() bool {
	return m.ToEmail != ""
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

const sendTimeout = 15 * time.Second

// Notifier delivers messages in the background. Failures are logged and
// never reach the request that triggered them.
type Notifier struct {
	mailer Mailer
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(mailer Mailer, logger *slog.Logger) *Notifier {
	return &Notifier{
		mailer: mailer,
		logger: logger.With("component", "notify"),
	}
}

func (n *Notifier) Dispatch(messages ...Message) {
	for _, msg := range messages {
		if !msg.HasRecipient() {
			continue
		}
		n.wg.Add(1)
		go func(msg Message) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := n.mailer.Send(ctx, msg); err != nil {
				n.logger.Warn("failed to send email", "error", err, "subject", msg.Subject)
			}
		}(msg)
	}
}

// Wait blocks until every dispatched message has been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

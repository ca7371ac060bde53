// Package mail delivers customer-facing notifications for the billing
// jobs. Delivery is behind the Sender interface so deployments can plug
// in a real provider.
package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/ldg-erp/duework/logger"
)

// Message is a single outbound email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages. Implementations must be safe for
// concurrent use by multiple workers.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// LogSender writes messages to the structured log instead of
// delivering them. Default sender for development and tests.
type LogSender struct {
	log *zap.SugaredLogger
}

// NewLogSender creates a sender that logs deliveries
func NewLogSender() *LogSender {
	return &LogSender{log: logger.ComponentLogger("mail")}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Infow("Email delivery",
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.Body),
	)
	return nil
}

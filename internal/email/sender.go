package email

import (
	"context"

	"github.com/nexusoptimizer/nexus/internal/logger"
)

// Sender is the interface that all email providers must implement.
// This abstraction allows swapping email providers without changing
// business logic.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// LogSender is a Sender that performs no delivery and logs the message
// instead. It is the default provider, used in development and tests.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email")}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("email not delivered (log provider)")
	return nil
}

package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// LogSender accepts every message and logs it instead of transmitting.
// Used in development and as the default when no provider is configured.
type LogSender struct{}

// NewLogSender creates a log-only sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send pretends to deliver the message.
func (s *LogSender) Send(_ context.Context, msg *Message) (*Result, error) {
	id := "dev-" + uuid.New().String()
	logger.Info("logsender: message accepted",
		"job_id", msg.JobID,
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", id,
	)
	return &Result{Success: true, MessageID: id, SentAt: time.Now()}, nil
}

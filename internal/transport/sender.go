// Package transport is the pluggable delivery boundary. The core decides
// whether and when to attempt a send; a Sender performs the actual
// transmission.
package transport

import (
	"context"
	"time"
)

// Message is one outbound email, fully rendered and addressed.
type Message struct {
	JobID      string
	CampaignID string
	MailboxID  string

	FromName  string
	FromEmail string
	ReplyTo   string
	To        string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// Result is the outcome of one transmission attempt. A failed attempt is
// reported through Err, not through the error return of Send, which is
// reserved for misconfiguration (no client, bad credentials).
type Result struct {
	Success   bool
	MessageID string
	Err       error
	SentAt    time.Time
}

// Sender delivers one message. Implementations must honor ctx so a stuck
// provider cannot stall the processing batch.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}

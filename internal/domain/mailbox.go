package domain

import "time"

// MailboxStatus enumerates the operational states of a sender identity.
type MailboxStatus string

const (
	MailboxActive  MailboxStatus = "active"
	MailboxWarming MailboxStatus = "warming"
	MailboxPaused  MailboxStatus = "paused"
)

// Mailbox is a sender identity: one email account used for outbound sends,
// with its own counters, limits, and reputation.
type Mailbox struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	Email          string        `json:"email" db:"email"`
	DisplayName    string        `json:"display_name" db:"display_name"`
	ESPType        string        `json:"esp_type" db:"esp_type"`
	Status         MailboxStatus `json:"status" db:"status"`
	Timezone       string        `json:"timezone" db:"timezone"`

	SchedulePolicyID string `json:"schedule_policy_id" db:"schedule_policy_id"`

	SendingState SendingState   `json:"sending_state"`
	Throttle     ThrottleConfig `json:"throttle"`
}

// SendingState holds the live counters for one sender identity. The
// authoritative values live in Redis; the Postgres columns are a mirrored
// snapshot refreshed periodically for selectors and dashboards.
type SendingState struct {
	MailboxID    string     `json:"mailbox_id" db:"mailbox_id"`
	SentToday    int        `json:"sent_today" db:"sent_today"`
	SentThisHour int        `json:"sent_this_hour" db:"sent_this_hour"`
	LastSentAt   *time.Time `json:"last_sent_at" db:"last_sent_at"`
	DailyLimit   int        `json:"daily_limit" db:"daily_limit"`
	HourlyLimit  int        `json:"hourly_limit" db:"hourly_limit"`

	// Manual override: operators can freeze a mailbox until a given time.
	IsThrottled    bool       `json:"is_throttled" db:"is_throttled"`
	ThrottledUntil *time.Time `json:"throttled_until" db:"throttled_until"`
}

// DailyHeadroom returns how many more sends the mailbox may make today.
func (s SendingState) DailyHeadroom() int {
	h := s.DailyLimit - s.SentToday
	if h < 0 {
		return 0
	}
	return h
}

// HourlyHeadroom returns how many more sends the mailbox may make this hour.
func (s SendingState) HourlyHeadroom() int {
	h := s.HourlyLimit - s.SentThisHour
	if h < 0 {
		return 0
	}
	return h
}

// UsableCapacity is the binding constraint across both windows.
func (s SendingState) UsableCapacity() int {
	d, h := s.DailyHeadroom(), s.HourlyHeadroom()
	if h < d {
		return h
	}
	return d
}

// ThrottleConfig is the send-pacing policy for one mailbox. Immutable per
// evaluation; warmup feeds a ramping config, mature mailboxes a static one.
type ThrottleConfig struct {
	MaxPerHour         int `json:"max_per_hour" yaml:"max_per_hour"`
	MaxPerDay          int `json:"max_per_day" yaml:"max_per_day"`
	MinDelaySeconds    int `json:"min_delay_seconds" yaml:"min_delay_seconds"`
	MaxDelaySeconds    int `json:"max_delay_seconds" yaml:"max_delay_seconds"`
	BurstLimit         int `json:"burst_limit" yaml:"burst_limit"`
	BurstWindowSeconds int `json:"burst_window_seconds" yaml:"burst_window_seconds"`
}

// DefaultThrottleConfig is the policy applied to mature mailboxes with no
// explicit configuration.
var DefaultThrottleConfig = ThrottleConfig{
	MaxPerHour:         20,
	MaxPerDay:          100,
	MinDelaySeconds:    90,
	MaxDelaySeconds:    300,
	BurstLimit:         5,
	BurstWindowSeconds: 300,
}

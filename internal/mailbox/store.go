package mailbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
)

// Store persists sender identities and their mirrored counters in Postgres.
// The live counters are authoritative in Redis; the columns here are a
// periodically refreshed snapshot so selectors and dashboards can query
// the pool without fanning out to Redis per mailbox.
type Store struct {
	db *sql.DB
}

// NewStore creates a mailbox store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const mailboxColumns = `
	m.id, m.organization_id, m.email, COALESCE(m.display_name, ''),
	COALESCE(m.esp_type, 'ses'), m.status, COALESCE(m.timezone, 'UTC'),
	COALESCE(m.schedule_policy_id::text, ''),
	COALESCE(m.sent_today, 0), COALESCE(m.sent_this_hour, 0), m.last_sent_at,
	COALESCE(m.daily_limit, 0), COALESCE(m.hourly_limit, 0),
	COALESCE(m.is_throttled, false), m.throttled_until,
	COALESCE(m.max_per_hour, 0), COALESCE(m.max_per_day, 0),
	COALESCE(m.min_delay_seconds, 0), COALESCE(m.max_delay_seconds, 0),
	COALESCE(m.burst_limit, 0), COALESCE(m.burst_window_seconds, 0)`

func scanMailbox(row interface{ Scan(...interface{}) error }) (domain.Mailbox, error) {
	var m domain.Mailbox
	var lastSent, throttledUntil sql.NullTime

	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.Email, &m.DisplayName,
		&m.ESPType, &m.Status, &m.Timezone,
		&m.SchedulePolicyID,
		&m.SendingState.SentToday, &m.SendingState.SentThisHour, &lastSent,
		&m.SendingState.DailyLimit, &m.SendingState.HourlyLimit,
		&m.SendingState.IsThrottled, &throttledUntil,
		&m.Throttle.MaxPerHour, &m.Throttle.MaxPerDay,
		&m.Throttle.MinDelaySeconds, &m.Throttle.MaxDelaySeconds,
		&m.Throttle.BurstLimit, &m.Throttle.BurstWindowSeconds,
	)
	if err != nil {
		return domain.Mailbox{}, err
	}

	m.SendingState.MailboxID = m.ID
	if lastSent.Valid {
		t := lastSent.Time
		m.SendingState.LastSentAt = &t
	}
	if throttledUntil.Valid {
		t := throttledUntil.Time
		m.SendingState.ThrottledUntil = &t
	}
	return m, nil
}

// Get loads one mailbox by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.Mailbox, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mailboxColumns+`
		FROM outreach_mailboxes m
		WHERE m.id = $1
	`, id)

	m, err := scanMailbox(row)
	if err == sql.ErrNoRows {
		return domain.Mailbox{}, fmt.Errorf("mailbox %s not found", id)
	}
	if err != nil {
		return domain.Mailbox{}, fmt.Errorf("load mailbox: %w", err)
	}
	return m, nil
}

// ListSendable returns the organization's pool of identities eligible for
// selection: active or warming, never paused.
func (s *Store) ListSendable(ctx context.Context, organizationID string) ([]domain.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mailboxColumns+`
		FROM outreach_mailboxes m
		WHERE m.organization_id = $1
		  AND m.status = ANY($2)
		ORDER BY m.id ASC
	`, organizationID, pq.Array([]string{string(domain.MailboxActive), string(domain.MailboxWarming)}))
	if err != nil {
		return nil, fmt.Errorf("list sendable mailboxes: %w", err)
	}
	defer rows.Close()

	var pool []domain.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mailbox: %w", err)
		}
		pool = append(pool, m)
	}
	return pool, rows.Err()
}

// ListActiveIDs returns every mailbox ID in a sendable status, across all
// organizations. Used by the counter mirror sweep.
func (s *Store) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM outreach_mailboxes
		WHERE status = ANY($1)
		ORDER BY id ASC
	`, pq.Array([]string{string(domain.MailboxActive), string(domain.MailboxWarming)}))
	if err != nil {
		return nil, fmt.Errorf("list active mailbox ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mailbox id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MirrorCounters writes the live Redis counters into the mailbox row.
// Called periodically so pool listings stay approximately current.
func (s *Store) MirrorCounters(ctx context.Context, mailboxID string, sentToday, sentThisHour int, lastSentAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_mailboxes
		SET sent_today = $2,
		    sent_this_hour = $3,
		    last_sent_at = COALESCE($4, last_sent_at),
		    updated_at = NOW()
		WHERE id = $1
	`, mailboxID, sentToday, sentThisHour, lastSentAt)
	if err != nil {
		return fmt.Errorf("mirror counters for %s: %w", mailboxID, err)
	}
	return nil
}

// SetManualThrottle freezes a mailbox until the given time. A nil until
// freezes it indefinitely.
func (s *Store) SetManualThrottle(ctx context.Context, mailboxID string, until *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_mailboxes
		SET is_throttled = true,
		    throttled_until = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, mailboxID, until)
	if err != nil {
		return fmt.Errorf("set manual throttle for %s: %w", mailboxID, err)
	}
	return nil
}

// ClearManualThrottle lifts a manual freeze.
func (s *Store) ClearManualThrottle(ctx context.Context, mailboxID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_mailboxes
		SET is_throttled = false,
		    throttled_until = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, mailboxID)
	if err != nil {
		return fmt.Errorf("clear manual throttle for %s: %w", mailboxID, err)
	}
	return nil
}

// SetDailyLimit updates the mirrored daily cap, used by warmup to push the
// current stage's volume into the pool view.
func (s *Store) SetDailyLimit(ctx context.Context, mailboxID string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_mailboxes
		SET daily_limit = $2, updated_at = NOW()
		WHERE id = $1
	`, mailboxID, limit)
	if err != nil {
		return fmt.Errorf("set daily limit for %s: %w", mailboxID, err)
	}
	return nil
}

// SetStatus moves a mailbox between active/warming/paused.
func (s *Store) SetStatus(ctx context.Context, mailboxID string, status domain.MailboxStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_mailboxes
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, mailboxID, string(status))
	if err != nil {
		return fmt.Errorf("set status for %s: %w", mailboxID, err)
	}
	return nil
}

// ReputationFactors loads the aggregated stat counters for one mailbox.
// A mailbox with no stats row reads as all-zero factors.
func (s *Store) ReputationFactors(ctx context.Context, mailboxID string) (domain.ReputationFactors, error) {
	var f domain.ReputationFactors
	err := s.db.QueryRowContext(ctx, `
		SELECT sent_count, delivered_count, bounced_count,
		       opened_count, clicked_count, replied_count,
		       spam_report_count, unsubscribe_count,
		       GREATEST(0, EXTRACT(DAY FROM NOW() - first_sent_at))::int
		FROM outreach_mailbox_stats
		WHERE mailbox_id = $1
	`, mailboxID).Scan(
		&f.SentCount, &f.DeliveredCount, &f.BouncedCount,
		&f.OpenedCount, &f.ClickedCount, &f.RepliedCount,
		&f.SpamReportCount, &f.UnsubscribeCount,
		&f.DaysSinceFirstSend,
	)
	if err == sql.ErrNoRows {
		return domain.ReputationFactors{}, nil
	}
	if err != nil {
		return domain.ReputationFactors{}, fmt.Errorf("load reputation factors for %s: %w", mailboxID, err)
	}
	return f, nil
}

// RecordSend bumps the aggregate sent counter after a successful delivery
// attempt, creating the stats row on first send.
func (s *Store) RecordSend(ctx context.Context, mailboxID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_mailbox_stats (mailbox_id, sent_count, first_sent_at, updated_at)
		VALUES ($1, 1, NOW(), NOW())
		ON CONFLICT (mailbox_id) DO UPDATE
		SET sent_count = outreach_mailbox_stats.sent_count + 1,
		    updated_at = NOW()
	`, mailboxID)
	if err != nil {
		return fmt.Errorf("record send for %s: %w", mailboxID, err)
	}
	return nil
}

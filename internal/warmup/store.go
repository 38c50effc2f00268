package warmup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/domain"
)

// Store persists warmup sessions in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a warmup session store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `
	id, mailbox_id, status, target_volume, profile, stage, progress_percent,
	started_at, completed_at, COALESCE(pause_reason, ''), updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (domain.WarmupSession, error) {
	var s domain.WarmupSession
	var started, completed sql.NullTime

	err := row.Scan(
		&s.ID, &s.MailboxID, &s.Status, &s.TargetVolume, &s.Profile,
		&s.Stage, &s.ProgressPercent,
		&started, &completed, &s.PauseReason, &s.UpdatedAt,
	)
	if err != nil {
		return domain.WarmupSession{}, err
	}
	if started.Valid {
		t := started.Time
		s.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return s, nil
}

// Create inserts a new session.
func (s *Store) Create(ctx context.Context, session *domain.WarmupSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_warmup_sessions
			(id, mailbox_id, status, target_volume, profile, stage,
			 progress_percent, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, session.ID, session.MailboxID, string(session.Status), session.TargetVolume,
		string(session.Profile), session.Stage, session.ProgressPercent, session.StartedAt)
	if err != nil {
		return fmt.Errorf("create warmup session: %w", err)
	}
	return nil
}

// ActiveByMailbox loads the mailbox's current non-terminal session, or nil
// if none exists.
func (s *Store) ActiveByMailbox(ctx context.Context, mailboxID string) (*domain.WarmupSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM outreach_warmup_sessions
		WHERE mailbox_id = $1
		  AND status IN ('not_started', 'in_progress', 'paused')
		ORDER BY updated_at DESC
		LIMIT 1
	`, mailboxID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load warmup session for %s: %w", mailboxID, err)
	}
	return &session, nil
}

// LatestByMailbox loads the mailbox's most recent session regardless of
// status, or nil if the mailbox has never been warmed. Terminal sessions
// stay visible to operators this way.
func (s *Store) LatestByMailbox(ctx context.Context, mailboxID string) (*domain.WarmupSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM outreach_warmup_sessions
		WHERE mailbox_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, mailboxID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest warmup session for %s: %w", mailboxID, err)
	}
	return &session, nil
}

// ListInProgress returns every session the daily maintenance tick must
// advance.
func (s *Store) ListInProgress(ctx context.Context) ([]domain.WarmupSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM outreach_warmup_sessions
		WHERE status = 'in_progress'
		ORDER BY mailbox_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list in-progress sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.WarmupSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warmup session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Update writes a session's mutable fields back.
func (s *Store) Update(ctx context.Context, session *domain.WarmupSession) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_warmup_sessions
		SET status = $2,
		    stage = $3,
		    progress_percent = $4,
		    pause_reason = NULLIF($5, ''),
		    completed_at = $6,
		    updated_at = NOW()
		WHERE id = $1
	`, session.ID, string(session.Status), session.Stage, session.ProgressPercent,
		session.PauseReason, session.CompletedAt)
	if err != nil {
		return fmt.Errorf("update warmup session %s: %w", session.ID, err)
	}
	session.UpdatedAt = time.Now()
	return nil
}

// Package scheduler owns the delivery loop: job persistence, atomic
// claiming, and the processing state machine that takes a claimed job
// through window, throttle, and transport checks to a terminal state.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
)

// Sentinel conditions the processor treats as fatal for a job: no amount
// of retrying conjures up a missing lead, variant, or address. Any other
// content-load error (a flaky connection, a statement timeout) is
// transient and retried.
var (
	ErrContentMissing = errors.New("lead or content variant missing")
	ErrNoRecipient    = errors.New("lead has no email address")
)

// JobStore persists email jobs in Postgres.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a job store.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `
	id, organization_id, campaign_id, lead_id, COALESCE(mailbox_id::text, ''),
	COALESCE(sequence_step_id::text, ''), COALESCE(variant_id::text, ''),
	status, priority, scheduled_at, attempts, max_attempts,
	last_attempt_at, completed_at, COALESCE(error, ''), COALESCE(provider_message_id, ''),
	created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (domain.EmailJob, error) {
	var j domain.EmailJob
	var lastAttempt, completed sql.NullTime

	err := row.Scan(
		&j.ID, &j.OrganizationID, &j.CampaignID, &j.LeadID, &j.MailboxID,
		&j.SequenceStepID, &j.VariantID,
		&j.Status, &j.Priority, &j.ScheduledAt, &j.Attempts, &j.MaxAttempts,
		&lastAttempt, &completed, &j.Error, &j.ProviderMessageID,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return domain.EmailJob{}, err
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		j.LastAttemptAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return j, nil
}

// Create inserts one job, assigning an ID and default attempt budget when
// the caller leaves them empty.
func (s *JobStore) Create(ctx context.Context, job *domain.EmailJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = domain.DefaultMaxAttempts
	}
	if job.Status == "" {
		job.Status = domain.JobScheduled
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_email_jobs
			(id, organization_id, campaign_id, lead_id, mailbox_id,
			 sequence_step_id, variant_id, status, priority, scheduled_at,
			 attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
		        $8, $9, $10, 0, $11, NOW(), NOW())
	`, job.ID, job.OrganizationID, job.CampaignID, job.LeadID, job.MailboxID,
		job.SequenceStepID, job.VariantID, string(job.Status), job.Priority,
		job.ScheduledAt, job.MaxAttempts)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateBatch inserts jobs spread evenly across the given window starting
// at the first job's scheduledAt, so a large batch does not land on the
// wire as one burst. A zero window schedules everything at startAt.
func (s *JobStore) CreateBatch(ctx context.Context, jobs []*domain.EmailJob, startAt time.Time, spread time.Duration) error {
	if len(jobs) == 0 {
		return nil
	}

	var step time.Duration
	if spread > 0 && len(jobs) > 1 {
		step = spread / time.Duration(len(jobs)-1)
	}

	for i, job := range jobs {
		job.ScheduledAt = startAt.Add(step * time.Duration(i))
		if err := s.Create(ctx, job); err != nil {
			return fmt.Errorf("batch job %d: %w", i, err)
		}
	}
	return nil
}

// ClaimDue atomically claims up to limit due jobs: status flips to
// processing, attempts increments, lastAttemptAt is stamped. SKIP LOCKED
// keeps concurrent workers from fighting over the same rows; urgent,
// overdue, and fresh jobs win ties over retried ones.
func (s *JobStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]domain.EmailJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE outreach_email_jobs
			SET status = 'processing',
			    attempts = attempts + 1,
			    last_attempt_at = $2,
			    updated_at = NOW()
			WHERE id IN (
				SELECT j.id FROM outreach_email_jobs j
				WHERE j.status = ANY($3)
				  AND j.scheduled_at <= $2
				ORDER BY j.priority DESC, j.scheduled_at ASC, j.attempts ASC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed
	`, limit, now, pq.Array([]string{string(domain.JobPending), string(domain.JobScheduled)}))
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.EmailJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Claim attempts to claim a single job by ID. The conditional status check
// makes concurrent claims race-safe: exactly one caller sees claimed=true.
func (s *JobStore) Claim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    last_attempt_at = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($3)
	`, jobID, now, pq.Array([]string{string(domain.JobPending), string(domain.JobScheduled)}))
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSent finishes a job successfully.
func (s *JobStore) MarkSent(ctx context.Context, jobID, providerMessageID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'sent',
		    provider_message_id = $2,
		    completed_at = $3,
		    error = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, jobID, providerMessageID, now)
	if err != nil {
		return fmt.Errorf("mark job %s sent: %w", jobID, err)
	}
	return nil
}

// MarkFailed finishes a job as failed with a reason.
func (s *JobStore) MarkFailed(ctx context.Context, jobID, reason string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'failed',
		    error = $2,
		    completed_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, jobID, reason, now)
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

// Cancel finishes a job whose parent campaign is no longer active.
func (s *JobStore) Cancel(ctx context.Context, jobID, reason string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'cancelled',
		    error = $2,
		    completed_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, jobID, reason, now)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// Reschedule returns a processing job to the queue at a later instant,
// used for window/throttle deferrals and transient failures. The note is
// stored in the error column for operator visibility but the job is not
// failed.
func (s *JobStore) Reschedule(ctx context.Context, jobID string, at time.Time, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'scheduled',
		    scheduled_at = $2,
		    error = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, jobID, at, note)
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", jobID, err)
	}
	return nil
}

// ReclaimStuck returns jobs stranded in processing (a worker died between
// claim and completion) to the queue. Returns how many were reclaimed.
func (s *JobStore) ReclaimStuck(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_email_jobs
		SET status = 'scheduled',
		    error = 'reclaimed: worker lost claim',
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND last_attempt_at < $1
	`, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Get loads one job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (domain.EmailJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM outreach_email_jobs
		WHERE id = $1
	`, jobID)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return domain.EmailJob{}, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return domain.EmailJob{}, fmt.Errorf("load job: %w", err)
	}
	return j, nil
}

// CampaignActive reports whether the job's parent campaign still wants
// sends. Missing campaigns read as inactive.
func (s *JobStore) CampaignActive(ctx context.Context, campaignID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM outreach_campaigns WHERE id = $1
	`, campaignID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check campaign %s: %w", campaignID, err)
	}
	return status == "active", nil
}

// JobContent is everything the processor needs to render and address one
// message: the recipient, the variant's templates, and the lead's
// substitution variables.
type JobContent struct {
	RecipientEmail string
	Subject        string
	Body           string
	Vars           map[string]interface{}
}

// LoadContent joins the job's lead and content variant. Missing rows and
// a blank address surface as ErrContentMissing/ErrNoRecipient; everything
// else is an ordinary query error.
func (s *JobStore) LoadContent(ctx context.Context, job domain.EmailJob) (JobContent, error) {
	var c JobContent
	var firstName, lastName, company string

	err := s.db.QueryRowContext(ctx, `
		SELECT l.email, COALESCE(l.first_name, ''), COALESCE(l.last_name, ''),
		       COALESCE(l.company, ''), v.subject, v.body
		FROM outreach_leads l, outreach_step_variants v
		WHERE l.id = $1 AND v.id = $2
	`, job.LeadID, job.VariantID).Scan(
		&c.RecipientEmail, &firstName, &lastName, &company, &c.Subject, &c.Body,
	)
	if err == sql.ErrNoRows {
		return JobContent{}, fmt.Errorf("job %s: %w", job.ID, ErrContentMissing)
	}
	if err != nil {
		return JobContent{}, fmt.Errorf("load content for job %s: %w", job.ID, err)
	}
	if c.RecipientEmail == "" {
		return JobContent{}, fmt.Errorf("job %s: %w", job.ID, ErrNoRecipient)
	}

	c.Vars = map[string]interface{}{
		"email":      c.RecipientEmail,
		"first_name": firstName,
		"last_name":  lastName,
		"company":    company,
	}
	return c, nil
}

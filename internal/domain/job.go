package domain

import "time"

// JobStatus enumerates the lifecycle states of an email job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScheduled  JobStatus = "scheduled"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for states a job can never leave.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSent, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsClaimable returns true if a processor may claim a job in this state.
func (s JobStatus) IsClaimable() bool {
	return s == JobPending || s == JobScheduled
}

// CanTransition reports whether the job state machine permits moving from
// s to next. Terminal states never transition; processing may move to any
// outcome including back to scheduled (deferral/retry edge).
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobPending, JobScheduled:
		return next == JobProcessing || next == JobCancelled
	case JobProcessing:
		return next == JobSent || next == JobFailed || next == JobCancelled || next == JobScheduled
	}
	return false
}

// EmailJob is one queued attempt to deliver a single email to a single
// recipient. Campaign dispatch (external) creates jobs; the processor owns
// them from claim to terminal state.
type EmailJob struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	CampaignID     string    `json:"campaign_id" db:"campaign_id"`
	LeadID         string    `json:"lead_id" db:"lead_id"`
	MailboxID      string    `json:"mailbox_id" db:"mailbox_id"`
	SequenceStepID string    `json:"sequence_step_id" db:"sequence_step_id"`
	VariantID      string    `json:"variant_id" db:"variant_id"`
	Status         JobStatus `json:"status" db:"status"`
	Priority       int       `json:"priority" db:"priority"`
	ScheduledAt    time.Time `json:"scheduled_at" db:"scheduled_at"`
	Attempts       int       `json:"attempts" db:"attempts"`
	MaxAttempts    int       `json:"max_attempts" db:"max_attempts"`

	LastAttemptAt     *time.Time `json:"last_attempt_at" db:"last_attempt_at"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
	Error             string     `json:"error,omitempty" db:"error"`
	ProviderMessageID string     `json:"provider_message_id,omitempty" db:"provider_message_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AttemptsExhausted returns true when the job has consumed its retry budget.
func (j *EmailJob) AttemptsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// DefaultMaxAttempts is applied when intake does not specify a retry budget.
const DefaultMaxAttempts = 5

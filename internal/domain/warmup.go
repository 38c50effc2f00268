package domain

import "time"

// WarmupStatus enumerates the states of a warmup session.
type WarmupStatus string

const (
	WarmupNotStarted WarmupStatus = "not_started"
	WarmupInProgress WarmupStatus = "in_progress"
	WarmupPaused     WarmupStatus = "paused"
	WarmupCompleted  WarmupStatus = "completed"
	WarmupStopped    WarmupStatus = "stopped"
)

// IsTerminal returns true for states a session can never leave.
func (s WarmupStatus) IsTerminal() bool {
	return s == WarmupCompleted || s == WarmupStopped
}

// WarmupProfile controls how fast a session ramps.
type WarmupProfile string

const (
	ProfileSlow       WarmupProfile = "slow"
	ProfileModerate   WarmupProfile = "moderate"
	ProfileAggressive WarmupProfile = "aggressive"
)

// Valid reports whether p is one of the known profiles.
func (p WarmupProfile) Valid() bool {
	switch p {
	case ProfileSlow, ProfileModerate, ProfileAggressive:
		return true
	}
	return false
}

// WarmupStageCount is the number of ramp stages a session passes through.
const WarmupStageCount = 6

// WarmupStageForProgress maps a 0-100 progress counter to a 1-6 stage.
// Six stages spanning ~17 points each.
func WarmupStageForProgress(progress int) int {
	stage := progress/17 + 1
	if stage > WarmupStageCount {
		stage = WarmupStageCount
	}
	if stage < 1 {
		stage = 1
	}
	return stage
}

// WarmupSession tracks the volume ramp of one mailbox.
type WarmupSession struct {
	ID              string        `json:"id" db:"id"`
	MailboxID       string        `json:"mailbox_id" db:"mailbox_id"`
	Status          WarmupStatus  `json:"status" db:"status"`
	TargetVolume    int           `json:"target_volume" db:"target_volume"`
	Profile         WarmupProfile `json:"profile" db:"profile"`
	Stage           int           `json:"stage" db:"stage"`
	ProgressPercent int           `json:"progress_percent" db:"progress_percent"`
	StartedAt       *time.Time    `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at" db:"completed_at"`
	PauseReason     string        `json:"pause_reason,omitempty" db:"pause_reason"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// WarmupSnapshot is the operator-facing view of one mailbox's warmup and
// throttle position.
type WarmupSnapshot struct {
	MailboxID          string       `json:"mailbox_id"`
	Status             WarmupStatus `json:"status"`
	Stage              int          `json:"stage"`
	ProgressPercent    int          `json:"progress_percent"`
	HealthStatus       HealthStatus `json:"health_status"`
	ReputationScore    float64      `json:"reputation_score"`
	DailyLimit         int          `json:"daily_limit"`
	SentToday          int          `json:"sent_today"`
	UtilizationPercent float64      `json:"utilization_percent"`
}

// MaintenanceReport summarizes one daily warmup maintenance run.
type MaintenanceReport struct {
	Advanced  int       `json:"advanced"`
	Paused    int       `json:"paused"`
	Completed int       `json:"completed"`
	RanAt     time.Time `json:"ran_at"`
}

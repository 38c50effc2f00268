package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/reputation"
)

// sessionStore is the persistence surface the orchestrator needs.
type sessionStore interface {
	Create(ctx context.Context, session *domain.WarmupSession) error
	ActiveByMailbox(ctx context.Context, mailboxID string) (*domain.WarmupSession, error)
	LatestByMailbox(ctx context.Context, mailboxID string) (*domain.WarmupSession, error)
	ListInProgress(ctx context.Context) ([]domain.WarmupSession, error)
	Update(ctx context.Context, session *domain.WarmupSession) error
}

// mailboxDirectory is the slice of the mailbox store the orchestrator
// touches: status, mirrored limits, and reputation counters.
type mailboxDirectory interface {
	Get(ctx context.Context, id string) (domain.Mailbox, error)
	SetStatus(ctx context.Context, id string, status domain.MailboxStatus) error
	SetDailyLimit(ctx context.Context, id string, limit int) error
	ReputationFactors(ctx context.Context, id string) (domain.ReputationFactors, error)
}

// usageReader reads live send counters for snapshots.
type usageReader interface {
	Usage(ctx context.Context, mailboxID string, now time.Time) (sentToday, sentThisHour int, lastSentAt *time.Time, err error)
}

// Orchestrator drives warmup sessions: starting, pausing on reputation
// degradation, advancing progress on the daily maintenance tick, and
// feeding the ramping daily cap into throttle evaluation.
type Orchestrator struct {
	sessions  sessionStore
	mailboxes mailboxDirectory
	usage     usageReader

	now func() time.Time
}

// NewOrchestrator wires a warmup orchestrator.
func NewOrchestrator(sessions *Store, mailboxes mailboxDirectory, usage usageReader) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		mailboxes: mailboxes,
		usage:     usage,
		now:       time.Now,
	}
}

// capFor is the daily limit a session imposes: the stage's cap, never
// above the session's own target volume.
func capFor(session *domain.WarmupSession) int {
	limit := StageDailyCap(session.Stage)
	if session.TargetVolume > 0 && limit > session.TargetVolume {
		limit = session.TargetVolume
	}
	return limit
}

// Start begins warming a mailbox. Fails if a non-terminal session already
// exists for it.
func (o *Orchestrator) Start(ctx context.Context, mailboxID string, targetVolume int, profile domain.WarmupProfile) (*domain.WarmupSession, error) {
	if !profile.Valid() {
		return nil, fmt.Errorf("unknown warmup profile %q", profile)
	}
	if _, err := o.mailboxes.Get(ctx, mailboxID); err != nil {
		return nil, err
	}

	existing, err := o.sessions.ActiveByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("mailbox %s already has a %s warmup session", mailboxID, existing.Status)
	}

	now := o.now()
	session := &domain.WarmupSession{
		MailboxID:       mailboxID,
		Status:          domain.WarmupInProgress,
		TargetVolume:    targetVolume,
		Profile:         profile,
		Stage:           1,
		ProgressPercent: 0,
		StartedAt:       &now,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := o.mailboxes.SetStatus(ctx, mailboxID, domain.MailboxWarming); err != nil {
		return nil, err
	}
	if err := o.mailboxes.SetDailyLimit(ctx, mailboxID, capFor(session)); err != nil {
		return nil, err
	}

	logger.Info("warmup started",
		"mailbox_id", mailboxID, "profile", string(profile),
		"target_volume", targetVolume, "daily_cap", capFor(session))
	return session, nil
}

// Stop terminates a session for good. The mailbox returns to active and
// is governed only by its standing throttle policy.
func (o *Orchestrator) Stop(ctx context.Context, mailboxID, reason string) error {
	session, err := o.requireActive(ctx, mailboxID)
	if err != nil {
		return err
	}

	session.Status = domain.WarmupStopped
	session.PauseReason = reason
	now := o.now()
	session.CompletedAt = &now
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}

	if err := o.mailboxes.SetStatus(ctx, mailboxID, domain.MailboxActive); err != nil {
		return err
	}
	logger.Info("warmup stopped", "mailbox_id", mailboxID, "reason", reason)
	return nil
}

// Pause suspends an in-progress session. The daily cap freezes at the
// current stage until resume.
func (o *Orchestrator) Pause(ctx context.Context, mailboxID, reason string) error {
	session, err := o.requireActive(ctx, mailboxID)
	if err != nil {
		return err
	}
	if session.Status != domain.WarmupInProgress {
		return fmt.Errorf("warmup session for %s is %s, not in_progress", mailboxID, session.Status)
	}

	session.Status = domain.WarmupPaused
	session.PauseReason = reason
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}
	logger.Warn("warmup paused", "mailbox_id", mailboxID, "reason", reason)
	return nil
}

// Resume restarts a paused session from where it froze.
func (o *Orchestrator) Resume(ctx context.Context, mailboxID string) error {
	session, err := o.requireActive(ctx, mailboxID)
	if err != nil {
		return err
	}
	if session.Status != domain.WarmupPaused {
		return fmt.Errorf("warmup session for %s is %s, not paused", mailboxID, session.Status)
	}

	session.Status = domain.WarmupInProgress
	session.PauseReason = ""
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}
	logger.Info("warmup resumed", "mailbox_id", mailboxID, "stage", session.Stage)
	return nil
}

func (o *Orchestrator) requireActive(ctx context.Context, mailboxID string) (*domain.WarmupSession, error) {
	session, err := o.sessions.ActiveByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("no active warmup session for mailbox %s", mailboxID)
	}
	return session, nil
}

// RunDailyMaintenance advances every in-progress session by its profile's
// increment, pauses the ones whose reputation turned critical, and
// completes the ones that saturated stage 6 while healthy. One session's
// failure does not stop the sweep.
func (o *Orchestrator) RunDailyMaintenance(ctx context.Context) (domain.MaintenanceReport, error) {
	now := o.now()
	report := domain.MaintenanceReport{RanAt: now}

	sessions, err := o.sessions.ListInProgress(ctx)
	if err != nil {
		return report, fmt.Errorf("maintenance: %w", err)
	}

	for i := range sessions {
		session := &sessions[i]
		if err := o.maintainSession(ctx, session, &report, now); err != nil {
			logger.Error("warmup maintenance error",
				"mailbox_id", session.MailboxID, "error", err.Error())
		}
	}

	logger.Info("warmup maintenance complete",
		"advanced", report.Advanced, "paused", report.Paused, "completed", report.Completed)
	return report, nil
}

func (o *Orchestrator) maintainSession(ctx context.Context, session *domain.WarmupSession, report *domain.MaintenanceReport, now time.Time) error {
	factors, err := o.mailboxes.ReputationFactors(ctx, session.MailboxID)
	if err != nil {
		return err
	}
	score := reputation.Score(factors)

	if score.Health == domain.HealthCritical {
		session.Status = domain.WarmupPaused
		session.PauseReason = fmt.Sprintf("reputation critical (score %.0f)", score.Overall)
		if err := o.sessions.Update(ctx, session); err != nil {
			return err
		}
		report.Paused++
		logger.Warn("warmup auto-paused",
			"mailbox_id", session.MailboxID, "score", fmt.Sprintf("%.0f", score.Overall))
		return nil
	}

	session.ProgressPercent += ProgressIncrement(session.Profile)
	if session.ProgressPercent > 100 {
		session.ProgressPercent = 100
	}
	session.Stage = domain.WarmupStageForProgress(session.ProgressPercent)

	if session.ProgressPercent >= 100 && session.Stage == domain.WarmupStageCount &&
		score.Health == domain.HealthHealthy {
		session.Status = domain.WarmupCompleted
		session.CompletedAt = &now
		if err := o.sessions.Update(ctx, session); err != nil {
			return err
		}
		if err := o.mailboxes.SetStatus(ctx, session.MailboxID, domain.MailboxActive); err != nil {
			return err
		}
		if session.TargetVolume > 0 {
			if err := o.mailboxes.SetDailyLimit(ctx, session.MailboxID, session.TargetVolume); err != nil {
				return err
			}
		}
		report.Completed++
		logger.Info("warmup completed", "mailbox_id", session.MailboxID)
		return nil
	}

	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}
	if err := o.mailboxes.SetDailyLimit(ctx, session.MailboxID, capFor(session)); err != nil {
		return err
	}
	report.Advanced++
	return nil
}

// EffectiveDailyLimit is what the processor feeds into throttle
// evaluation: the warmup cap while a session is ramping or frozen by a
// pause, the standing limit otherwise. Never above the standing limit.
func (o *Orchestrator) EffectiveDailyLimit(ctx context.Context, mailboxID string, standing int) int {
	session, err := o.sessions.ActiveByMailbox(ctx, mailboxID)
	if err != nil {
		logger.Warn("warmup limit lookup failed", "mailbox_id", mailboxID, "error", err.Error())
		return standing
	}
	if session == nil {
		return standing
	}

	limit := capFor(session)
	if standing > 0 && standing < limit {
		return standing
	}
	return limit
}

// Snapshot is the operator-facing view of one mailbox's warmup and
// throttle position.
func (o *Orchestrator) Snapshot(ctx context.Context, mailboxID string) (domain.WarmupSnapshot, error) {
	mbox, err := o.mailboxes.Get(ctx, mailboxID)
	if err != nil {
		return domain.WarmupSnapshot{}, err
	}

	factors, err := o.mailboxes.ReputationFactors(ctx, mailboxID)
	if err != nil {
		return domain.WarmupSnapshot{}, err
	}
	score := reputation.Score(factors)

	now := o.now()
	sentToday, _, _, err := o.usage.Usage(ctx, mailboxID, now)
	if err != nil {
		return domain.WarmupSnapshot{}, err
	}

	snap := domain.WarmupSnapshot{
		MailboxID:       mailboxID,
		Status:          domain.WarmupNotStarted,
		HealthStatus:    score.Health,
		ReputationScore: score.Overall,
		DailyLimit:      mbox.SendingState.DailyLimit,
		SentToday:       sentToday,
	}

	// Most recent session regardless of status: a completed or stopped
	// warmup still shows its terminal state instead of not_started.
	session, err := o.sessions.LatestByMailbox(ctx, mailboxID)
	if err != nil {
		return domain.WarmupSnapshot{}, err
	}
	if session != nil {
		snap.Status = session.Status
		snap.Stage = session.Stage
		snap.ProgressPercent = session.ProgressPercent
		// The warmup cap only binds while the session is live.
		if session.Status == domain.WarmupInProgress || session.Status == domain.WarmupPaused {
			snap.DailyLimit = capFor(session)
		}
	}

	if snap.DailyLimit > 0 {
		snap.UtilizationPercent = float64(sentToday) / float64(snap.DailyLimit) * 100
	}
	return snap, nil
}

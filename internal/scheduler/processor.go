package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/mailbox"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/schedule"
	"github.com/ignite/outreach-core/internal/throttle"
	"github.com/ignite/outreach-core/internal/transport"
)

// RetryBackoff is the fixed delay before a transient failure is retried.
const RetryBackoff = 5 * time.Minute

// DefaultSendTimeout bounds a single transport call so one stuck provider
// cannot stall the rest of the batch.
const DefaultSendTimeout = 30 * time.Second

// jobQueue is the slice of JobStore the processor needs. Narrowed to an
// interface so scenario tests can run against in-memory fakes.
type jobQueue interface {
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]domain.EmailJob, error)
	CampaignActive(ctx context.Context, campaignID string) (bool, error)
	LoadContent(ctx context.Context, job domain.EmailJob) (JobContent, error)
	MarkSent(ctx context.Context, jobID, providerMessageID string, now time.Time) error
	MarkFailed(ctx context.Context, jobID, reason string, now time.Time) error
	Cancel(ctx context.Context, jobID, reason string, now time.Time) error
	Reschedule(ctx context.Context, jobID string, at time.Time, note string) error
}

// mailboxDirectory resolves sender identities and their pool.
type mailboxDirectory interface {
	Get(ctx context.Context, id string) (domain.Mailbox, error)
	ListSendable(ctx context.Context, organizationID string) ([]domain.Mailbox, error)
	RecordSend(ctx context.Context, mailboxID string) error
}

// policySource loads schedule policies.
type policySource interface {
	Policy(ctx context.Context, policyID string) (domain.SchedulePolicy, error)
}

// counterGate is the atomic counter store guarding per-sender pacing.
type counterGate interface {
	State(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) (domain.SendingState, error)
	Claim(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) (throttle.ClaimResult, error)
	Release(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) error
}

// limitSource lets warmup override a mailbox's standing daily cap while it
// is still ramping.
type limitSource interface {
	EffectiveDailyLimit(ctx context.Context, mailboxID string, standing int) int
}

// Processor drives claimed jobs through the delivery state machine. Each
// invocation is short-lived: claim a bounded batch, walk every job to its
// next state, return. Overlapping invocations are safe because claiming is
// atomic and counters are guarded by the counter gate.
type Processor struct {
	jobs      jobQueue
	mailboxes mailboxDirectory
	policies  policySource
	counters  counterGate
	limits    limitSource
	renderer  *Renderer
	sender    transport.Sender

	batchSize       int
	sendTimeout     time.Duration
	defaultThrottle domain.ThrottleConfig
	now             func() time.Time
}

// Options tunes a processor. Zero values fall back to sane defaults.
type Options struct {
	// BatchSize bounds how many jobs one run claims.
	BatchSize int
	// SendTimeout bounds each transport call.
	SendTimeout time.Duration
	// DefaultThrottle is the pacing policy for mailboxes with no
	// per-identity configuration.
	DefaultThrottle domain.ThrottleConfig
}

// NewProcessor wires a processor. limits may be nil when no warmup
// orchestrator is running.
func NewProcessor(jobs *JobStore, mailboxes *mailbox.Store, policies *schedule.Store,
	counters *throttle.CounterStore, limits limitSource, sender transport.Sender, opts Options) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.DefaultThrottle == (domain.ThrottleConfig{}) {
		opts.DefaultThrottle = domain.DefaultThrottleConfig
	}
	return &Processor{
		jobs:            jobs,
		mailboxes:       mailboxes,
		policies:        policies,
		counters:        counters,
		limits:          limits,
		renderer:        NewRenderer(),
		sender:          sender,
		batchSize:       opts.BatchSize,
		sendTimeout:     opts.SendTimeout,
		defaultThrottle: opts.DefaultThrottle,
		now:             time.Now,
	}
}

// Report summarizes one processing run.
type Report struct {
	Claimed   int `json:"claimed"`
	Sent      int `json:"sent"`
	Deferred  int `json:"deferred"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDeferred
	outcomeCancelled
	outcomeFailed
)

// RunOnce claims one batch of due jobs and processes each to its next
// state. One job's failure never aborts the batch: errors and panics are
// contained per job and converted to a transient retry.
func (p *Processor) RunOnce(ctx context.Context) (Report, error) {
	now := p.now()

	jobs, err := p.jobs.ClaimDue(ctx, p.batchSize, now)
	if err != nil {
		return Report{}, fmt.Errorf("claim batch: %w", err)
	}

	report := Report{Claimed: len(jobs)}
	for _, job := range jobs {
		out, err := p.processSafely(ctx, job, now)
		if err != nil {
			report.Errors++
			logger.Error("job processing error", "job_id", job.ID, "error", err.Error())
			continue
		}
		switch out {
		case outcomeSent:
			report.Sent++
		case outcomeDeferred:
			report.Deferred++
		case outcomeCancelled:
			report.Cancelled++
		case outcomeFailed:
			report.Failed++
		}
	}

	if report.Claimed > 0 {
		logger.Info("processing run complete",
			"claimed", report.Claimed, "sent", report.Sent,
			"deferred", report.Deferred, "cancelled", report.Cancelled,
			"failed", report.Failed, "errors", report.Errors)
	}
	return report, nil
}

// processSafely contains panics from a single job.
func (p *Processor) processSafely(ctx context.Context, job domain.EmailJob, now time.Time) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = p.transientFailure(ctx, job, fmt.Sprintf("panic: %v", r), now)
		}
	}()
	return p.process(ctx, job, now)
}

func (p *Processor) process(ctx context.Context, job domain.EmailJob, now time.Time) (outcome, error) {
	// Campaign liveness is checked lazily, per claim. A campaign paused
	// after this point still completes the in-flight job.
	active, err := p.jobs.CampaignActive(ctx, job.CampaignID)
	if err != nil {
		return p.transientFailure(ctx, job, fmt.Sprintf("campaign check: %v", err), now)
	}
	if !active {
		if err := p.jobs.Cancel(ctx, job.ID, "campaign inactive", now); err != nil {
			return 0, err
		}
		return outcomeCancelled, nil
	}

	mbox, ok, err := p.resolveMailbox(ctx, job, now)
	if err != nil {
		return p.transientFailure(ctx, job, fmt.Sprintf("resolve mailbox: %v", err), now)
	}
	if !ok {
		if err := p.jobs.Reschedule(ctx, job.ID, now.Add(RetryBackoff), "no sendable mailbox in pool"); err != nil {
			return 0, err
		}
		return outcomeDeferred, nil
	}

	policy, err := p.policies.Policy(ctx, mbox.SchedulePolicyID)
	if err != nil {
		return p.transientFailure(ctx, job, fmt.Sprintf("load schedule policy: %v", err), now)
	}
	tzName := policy.Timezone
	if tzName == "" {
		tzName = mbox.Timezone
	}
	loc := schedule.LoadLocation(tzName)

	cfg := mbox.Throttle
	if cfg == (domain.ThrottleConfig{}) {
		cfg = p.defaultThrottle
		if cfg == (domain.ThrottleConfig{}) {
			cfg = domain.DefaultThrottleConfig
		}
	}
	if p.limits != nil {
		cfg.MaxPerDay = p.limits.EffectiveDailyLimit(ctx, mbox.ID, cfg.MaxPerDay)
	}

	if !schedule.IsWithinWindow(policy.Windows, loc, now) {
		minDelay := time.Duration(cfg.MinDelaySeconds) * time.Second
		at := schedule.NextWindowStart(policy.Windows, loc, now, minDelay)
		if err := p.jobs.Reschedule(ctx, job.ID, at, "outside schedule window"); err != nil {
			return 0, err
		}
		return outcomeDeferred, nil
	}

	state, err := p.counters.State(ctx, mbox.ID, cfg, now)
	if err != nil {
		return p.transientFailure(ctx, job, fmt.Sprintf("read counters: %v", err), now)
	}
	state.IsThrottled = mbox.SendingState.IsThrottled
	state.ThrottledUntil = mbox.SendingState.ThrottledUntil

	if d := throttle.Evaluate(state, cfg, now); d.Throttled {
		if err := p.jobs.Reschedule(ctx, job.ID, now.Add(d.RetryAfter), "throttled: "+d.Reason); err != nil {
			return 0, err
		}
		return outcomeDeferred, nil
	}

	// A missing recipient or variant is fatal: retrying cannot fix it.
	// Any other load error is a storage hiccup and retried.
	content, err := p.jobs.LoadContent(ctx, job)
	if err != nil {
		if !errors.Is(err, ErrContentMissing) && !errors.Is(err, ErrNoRecipient) {
			return p.transientFailure(ctx, job, fmt.Sprintf("load content: %v", err), now)
		}
		if err := p.jobs.MarkFailed(ctx, job.ID, err.Error(), now); err != nil {
			return 0, err
		}
		return outcomeFailed, nil
	}

	subject, body, err := p.renderer.RenderMessage(content.Subject, content.Body, content.Vars)
	if err != nil {
		if err := p.jobs.MarkFailed(ctx, job.ID, fmt.Sprintf("render: %v", err), now); err != nil {
			return 0, err
		}
		return outcomeFailed, nil
	}

	// Atomic gate: the pure evaluation above can race with other workers,
	// this claim cannot. A denial here is just another deferral.
	claim, err := p.counters.Claim(ctx, mbox.ID, cfg, now)
	if err != nil {
		return p.transientFailure(ctx, job, fmt.Sprintf("counter claim: %v", err), now)
	}
	if !claim.Allowed {
		d := throttle.Evaluate(domain.SendingState{
			SentToday:    int(claim.Current),
			SentThisHour: int(claim.Current),
			DailyLimit:   cfg.MaxPerDay,
			HourlyLimit:  cfg.MaxPerHour,
		}, cfg, now)
		retry := d.RetryAfter
		if retry <= 0 {
			retry = time.Duration(cfg.BurstWindowSeconds) * time.Second
		}
		if retry <= 0 {
			retry = RetryBackoff
		}
		if err := p.jobs.Reschedule(ctx, job.ID, now.Add(retry), "throttled: "+claim.Reason); err != nil {
			return 0, err
		}
		return outcomeDeferred, nil
	}

	msg := &transport.Message{
		JobID:      job.ID,
		CampaignID: job.CampaignID,
		MailboxID:  mbox.ID,
		FromName:   mbox.DisplayName,
		FromEmail:  mbox.Email,
		To:         content.RecipientEmail,
		Subject:    subject,
		HTMLBody:   body,
	}

	timeout := p.sendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	sendCtx, cancelSend := context.WithTimeout(ctx, timeout)
	res, err := p.sender.Send(sendCtx, msg)
	cancelSend()
	if err != nil || !res.Success {
		// The claimed slot was not used on the wire; give it back so a
		// failed attempt does not burn pacing budget.
		if relErr := p.counters.Release(ctx, mbox.ID, cfg, now); relErr != nil {
			logger.Warn("counter release failed", "mailbox_id", mbox.ID, "error", relErr.Error())
		}
		reason := "transport error"
		if err != nil {
			reason = err.Error()
		} else if res.Err != nil {
			reason = res.Err.Error()
		}
		return p.transientFailure(ctx, job, reason, now)
	}

	if err := p.jobs.MarkSent(ctx, job.ID, res.MessageID, now); err != nil {
		return 0, err
	}
	if err := p.mailboxes.RecordSend(ctx, mbox.ID); err != nil {
		logger.Warn("record send failed", "mailbox_id", mbox.ID, "error", err.Error())
	}
	return outcomeSent, nil
}

// resolveMailbox loads the job's assigned sender, or greedily picks one
// from the organization's pool when intake left the job unassigned.
func (p *Processor) resolveMailbox(ctx context.Context, job domain.EmailJob, now time.Time) (domain.Mailbox, bool, error) {
	if job.MailboxID != "" {
		m, err := p.mailboxes.Get(ctx, job.MailboxID)
		if err != nil {
			return domain.Mailbox{}, false, err
		}
		return m, true, nil
	}

	pool, err := p.mailboxes.ListSendable(ctx, job.OrganizationID)
	if err != nil {
		return domain.Mailbox{}, false, err
	}
	picked := mailbox.SelectMailbox(pool, now)
	if picked == nil {
		return domain.Mailbox{}, false, nil
	}
	return *picked, true, nil
}

// transientFailure retries with fixed backoff until the attempt budget is
// exhausted, then fails the job for good.
func (p *Processor) transientFailure(ctx context.Context, job domain.EmailJob, reason string, now time.Time) (outcome, error) {
	if job.AttemptsExhausted() {
		if err := p.jobs.MarkFailed(ctx, job.ID, reason, now); err != nil {
			return 0, err
		}
		return outcomeFailed, nil
	}
	if err := p.jobs.Reschedule(ctx, job.ID, now.Add(RetryBackoff), reason); err != nil {
		return 0, err
	}
	return outcomeDeferred, nil
}

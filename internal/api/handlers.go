// Package api exposes the administrative request/response boundary: job
// intake, warmup control, throttle overrides, and operational triggers.
// Authorization is enforced upstream by the deployment's gateway.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/scheduler"
)

// JobIntake accepts jobs into the queue.
type JobIntake interface {
	Create(ctx context.Context, job *domain.EmailJob) error
	CreateBatch(ctx context.Context, jobs []*domain.EmailJob, startAt time.Time, spread time.Duration) error
	Get(ctx context.Context, jobID string) (domain.EmailJob, error)
}

// WarmupControl is the orchestrator's administrative surface.
type WarmupControl interface {
	Start(ctx context.Context, mailboxID string, targetVolume int, profile domain.WarmupProfile) (*domain.WarmupSession, error)
	Stop(ctx context.Context, mailboxID, reason string) error
	Pause(ctx context.Context, mailboxID, reason string) error
	Resume(ctx context.Context, mailboxID string) error
	RunDailyMaintenance(ctx context.Context) (domain.MaintenanceReport, error)
	Snapshot(ctx context.Context, mailboxID string) (domain.WarmupSnapshot, error)
}

// ThrottleAdmin manages manual throttle overrides.
type ThrottleAdmin interface {
	SetManualThrottle(ctx context.Context, mailboxID string, until *time.Time) error
	ClearManualThrottle(ctx context.Context, mailboxID string) error
}

// UsageReader reads live send counters.
type UsageReader interface {
	Usage(ctx context.Context, mailboxID string, now time.Time) (sentToday, sentThisHour int, lastSentAt *time.Time, err error)
}

// ProcessorRunner triggers one processing pass on demand.
type ProcessorRunner interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
}

// Handlers holds the API dependencies.
type Handlers struct {
	Jobs      JobIntake
	Warmup    WarmupControl
	Throttle  ThrottleAdmin
	Usage     UsageReader
	Processor ProcessorRunner
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createJobRequest struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	LeadID         string `json:"lead_id"`
	MailboxID      string `json:"mailbox_id,omitempty"`
	SequenceStepID string `json:"sequence_step_id,omitempty"`
	VariantID      string `json:"variant_id"`
	Priority       int    `json:"priority"`
	ScheduledAt    string `json:"scheduled_at,omitempty"`
}

func (req createJobRequest) toJob() (*domain.EmailJob, error) {
	job := &domain.EmailJob{
		OrganizationID: req.OrganizationID,
		CampaignID:     req.CampaignID,
		LeadID:         req.LeadID,
		MailboxID:      req.MailboxID,
		SequenceStepID: req.SequenceStepID,
		VariantID:      req.VariantID,
		Priority:       req.Priority,
	}
	if req.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return nil, err
		}
		job.ScheduledAt = at
	}
	return job, nil
}

// CreateJob enqueues one job.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganizationID == "" || req.CampaignID == "" || req.LeadID == "" {
		respondError(w, http.StatusBadRequest, "organization_id, campaign_id and lead_id are required")
		return
	}

	job, err := req.toJob()
	if err != nil {
		respondError(w, http.StatusBadRequest, "scheduled_at must be RFC3339")
		return
	}
	if err := h.Jobs.Create(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

type createBatchRequest struct {
	Jobs          []createJobRequest `json:"jobs"`
	StartAt       string             `json:"start_at,omitempty"`
	SpreadSeconds int                `json:"spread_seconds,omitempty"`
}

// CreateJobBatch enqueues a batch, spreading scheduled times across the
// requested window to avoid a single burst.
func (h *Handlers) CreateJobBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Jobs) == 0 {
		respondError(w, http.StatusBadRequest, "jobs must not be empty")
		return
	}

	startAt := time.Now()
	if req.StartAt != "" {
		at, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start_at must be RFC3339")
			return
		}
		startAt = at
	}

	jobs := make([]*domain.EmailJob, 0, len(req.Jobs))
	for _, jr := range req.Jobs {
		if jr.OrganizationID == "" || jr.CampaignID == "" || jr.LeadID == "" {
			respondError(w, http.StatusBadRequest, "each job needs organization_id, campaign_id and lead_id")
			return
		}
		job, err := jr.toJob()
		if err != nil {
			respondError(w, http.StatusBadRequest, "scheduled_at must be RFC3339")
			return
		}
		jobs = append(jobs, job)
	}

	spread := time.Duration(req.SpreadSeconds) * time.Second
	if err := h.Jobs.CreateBatch(r.Context(), jobs, startAt, spread); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"created": len(jobs)})
}

// GetJob returns one job's current state.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, job)
}

type warmupStartRequest struct {
	TargetVolume int    `json:"target_volume"`
	Profile      string `json:"profile"`
}

// StartWarmup begins warming a mailbox.
func (h *Handlers) StartWarmup(w http.ResponseWriter, r *http.Request) {
	var req warmupStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.Warmup.Start(r.Context(), chi.URLParam(r, "id"),
		req.TargetVolume, domain.WarmupProfile(req.Profile))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// StopWarmup terminates a warmup session.
func (h *Handlers) StopWarmup(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Warmup.Stop(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// PauseWarmup suspends a warmup session.
func (h *Handlers) PauseWarmup(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Warmup.Pause(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeWarmup restarts a paused session.
func (h *Handlers) ResumeWarmup(w http.ResponseWriter, r *http.Request) {
	if err := h.Warmup.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "in_progress"})
}

// GetWarmupSnapshot returns the operator view of one mailbox's warmup.
func (h *Handlers) GetWarmupSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Warmup.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// RunMaintenance triggers the daily warmup sweep on demand.
func (h *Handlers) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := h.Warmup.RunDailyMaintenance(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GetThrottleUsage returns a mailbox's live counters.
func (h *Handlers) GetThrottleUsage(w http.ResponseWriter, r *http.Request) {
	mailboxID := chi.URLParam(r, "id")
	sentToday, sentThisHour, lastSentAt, err := h.Usage.Usage(r.Context(), mailboxID, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mailbox_id":     mailboxID,
		"sent_today":     sentToday,
		"sent_this_hour": sentThisHour,
		"last_sent_at":   lastSentAt,
	})
}

type manualThrottleRequest struct {
	Until string `json:"until,omitempty"`
}

// SetManualThrottle freezes a mailbox, optionally until a given instant.
func (h *Handlers) SetManualThrottle(w http.ResponseWriter, r *http.Request) {
	var req manualThrottleRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	var until *time.Time
	if req.Until != "" {
		at, err := time.Parse(time.RFC3339, req.Until)
		if err != nil {
			respondError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		until = &at
	}

	if err := h.Throttle.SetManualThrottle(r.Context(), chi.URLParam(r, "id"), until); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "throttled"})
}

// ClearManualThrottle lifts a manual freeze.
func (h *Handlers) ClearManualThrottle(w http.ResponseWriter, r *http.Request) {
	if err := h.Throttle.ClearManualThrottle(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// RunProcessor triggers one processing pass and returns its report.
func (h *Handlers) RunProcessor(w http.ResponseWriter, r *http.Request) {
	report, err := h.Processor.RunOnce(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/scheduler"
)

type fakeIntake struct {
	created []*domain.EmailJob
	batches [][]*domain.EmailJob
	spread  time.Duration
}

func (f *fakeIntake) Create(_ context.Context, job *domain.EmailJob) error {
	job.ID = "job-1"
	job.Status = domain.JobScheduled
	f.created = append(f.created, job)
	return nil
}

func (f *fakeIntake) CreateBatch(_ context.Context, jobs []*domain.EmailJob, _ time.Time, spread time.Duration) error {
	f.batches = append(f.batches, jobs)
	f.spread = spread
	return nil
}

func (f *fakeIntake) Get(_ context.Context, id string) (domain.EmailJob, error) {
	if id != "job-1" {
		return domain.EmailJob{}, fmt.Errorf("job %s not found", id)
	}
	return domain.EmailJob{ID: "job-1", Status: domain.JobSent}, nil
}

type fakeWarmup struct {
	started map[string]domain.WarmupProfile
	paused  map[string]string
	resumed []string
	stopped map[string]string
}

func newFakeWarmup() *fakeWarmup {
	return &fakeWarmup{
		started: map[string]domain.WarmupProfile{},
		paused:  map[string]string{},
		stopped: map[string]string{},
	}
}

func (f *fakeWarmup) Start(_ context.Context, id string, target int, profile domain.WarmupProfile) (*domain.WarmupSession, error) {
	if !profile.Valid() {
		return nil, fmt.Errorf("unknown warmup profile %q", profile)
	}
	f.started[id] = profile
	return &domain.WarmupSession{ID: "ws-1", MailboxID: id, Status: domain.WarmupInProgress,
		TargetVolume: target, Profile: profile, Stage: 1}, nil
}

func (f *fakeWarmup) Stop(_ context.Context, id, reason string) error {
	f.stopped[id] = reason
	return nil
}

func (f *fakeWarmup) Pause(_ context.Context, id, reason string) error {
	f.paused[id] = reason
	return nil
}

func (f *fakeWarmup) Resume(_ context.Context, id string) error {
	f.resumed = append(f.resumed, id)
	return nil
}

func (f *fakeWarmup) RunDailyMaintenance(_ context.Context) (domain.MaintenanceReport, error) {
	return domain.MaintenanceReport{Advanced: 2, Paused: 1}, nil
}

func (f *fakeWarmup) Snapshot(_ context.Context, id string) (domain.WarmupSnapshot, error) {
	return domain.WarmupSnapshot{MailboxID: id, Status: domain.WarmupInProgress, Stage: 2}, nil
}

type fakeThrottleAdmin struct {
	set     map[string]*time.Time
	cleared []string
}

func (f *fakeThrottleAdmin) SetManualThrottle(_ context.Context, id string, until *time.Time) error {
	if f.set == nil {
		f.set = map[string]*time.Time{}
	}
	f.set[id] = until
	return nil
}

func (f *fakeThrottleAdmin) ClearManualThrottle(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeUsage struct{}

func (fakeUsage) Usage(_ context.Context, _ string, _ time.Time) (int, int, *time.Time, error) {
	return 12, 3, nil, nil
}

type fakeRunner struct{}

func (fakeRunner) RunOnce(_ context.Context) (scheduler.Report, error) {
	return scheduler.Report{Claimed: 5, Sent: 4, Deferred: 1}, nil
}

func testServer() (*httptest.Server, *fakeIntake, *fakeWarmup, *fakeThrottleAdmin) {
	intake := &fakeIntake{}
	warm := newFakeWarmup()
	admin := &fakeThrottleAdmin{}
	h := &Handlers{
		Jobs:      intake,
		Warmup:    warm,
		Throttle:  admin,
		Usage:     fakeUsage{},
		Processor: fakeRunner{},
	}
	return httptest.NewServer(SetupRoutes(h)), intake, warm, admin
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestCreateJob(t *testing.T) {
	srv, intake, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{
		"organization_id": "org-1",
		"campaign_id":     "cmp-1",
		"lead_id":         "lead-1",
		"variant_id":      "var-1",
		"priority":        5,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var job domain.EmailJob
	decode(t, resp, &job)
	assert.Equal(t, "job-1", job.ID)
	require.Len(t, intake.created, 1)
	assert.Equal(t, 5, intake.created[0].Priority)
}

func TestCreateJob_MissingFields(t *testing.T) {
	srv, intake, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/jobs", map[string]interface{}{
		"campaign_id": "cmp-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, intake.created)
}

func TestCreateJobBatch(t *testing.T) {
	srv, intake, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/jobs/batch", map[string]interface{}{
		"spread_seconds": 3600,
		"jobs": []map[string]interface{}{
			{"organization_id": "org-1", "campaign_id": "cmp-1", "lead_id": "lead-1", "variant_id": "var-1"},
			{"organization_id": "org-1", "campaign_id": "cmp-1", "lead_id": "lead-2", "variant_id": "var-1"},
		},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, intake.batches, 1)
	assert.Len(t, intake.batches[0], 2)
	assert.Equal(t, time.Hour, intake.spread)
}

func TestGetJob(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/job-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var job domain.EmailJob
	decode(t, resp, &job)
	assert.Equal(t, domain.JobSent, job.Status)

	resp, err = http.Get(srv.URL + "/api/jobs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWarmupLifecycleRoutes(t *testing.T) {
	srv, _, warm, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/mailboxes/mbx-1/warmup/start", map[string]interface{}{
		"target_volume": 75,
		"profile":       "moderate",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, domain.ProfileModerate, warm.started["mbx-1"])

	resp = postJSON(t, srv.URL+"/api/mailboxes/mbx-1/warmup/pause", map[string]interface{}{
		"reason": "operator hold",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "operator hold", warm.paused["mbx-1"])

	resp = postJSON(t, srv.URL+"/api/mailboxes/mbx-1/warmup/resume", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Contains(t, warm.resumed, "mbx-1")

	resp = postJSON(t, srv.URL+"/api/mailboxes/mbx-1/warmup/stop", map[string]interface{}{
		"reason": "domain retired",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "domain retired", warm.stopped["mbx-1"])
}

func TestStartWarmup_InvalidProfile(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/mailboxes/mbx-1/warmup/start", map[string]interface{}{
		"profile": "turbo",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestGetWarmupSnapshot(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/mailboxes/mbx-1/warmup/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap domain.WarmupSnapshot
	decode(t, resp, &snap)
	assert.Equal(t, "mbx-1", snap.MailboxID)
	assert.Equal(t, 2, snap.Stage)
}

func TestRunMaintenance(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/warmup/maintenance", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report domain.MaintenanceReport
	decode(t, resp, &report)
	assert.Equal(t, 2, report.Advanced)
	assert.Equal(t, 1, report.Paused)
}

func TestThrottleRoutes(t *testing.T) {
	srv, _, _, admin := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/mailboxes/mbx-1/throttle/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var usage map[string]interface{}
	decode(t, resp, &usage)
	assert.Equal(t, float64(12), usage["sent_today"])

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/mailboxes/mbx-1/throttle/",
		bytes.NewReader([]byte(`{"until":"2026-03-02T18:00:00Z"}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, admin.set, "mbx-1")
	require.NotNil(t, admin.set["mbx-1"])

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/mailboxes/mbx-1/throttle/", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, admin.cleared, "mbx-1")
}

func TestRunProcessor(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/processor/run", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report scheduler.Report
	decode(t, resp, &report)
	assert.Equal(t, 5, report.Claimed)
	assert.Equal(t, 4, report.Sent)
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

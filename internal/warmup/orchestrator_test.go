package warmup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
)

// --- in-memory fakes ---

type fakeSessions struct {
	byMailbox map[string]*domain.WarmupSession
	nextID    int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byMailbox: map[string]*domain.WarmupSession{}}
}

func (f *fakeSessions) Create(_ context.Context, s *domain.WarmupSession) error {
	f.nextID++
	s.ID = fmt.Sprintf("ws-%d", f.nextID)
	clone := *s
	f.byMailbox[s.MailboxID] = &clone
	return nil
}

func (f *fakeSessions) ActiveByMailbox(_ context.Context, mailboxID string) (*domain.WarmupSession, error) {
	s, ok := f.byMailbox[mailboxID]
	if !ok || s.Status.IsTerminal() {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (f *fakeSessions) LatestByMailbox(_ context.Context, mailboxID string) (*domain.WarmupSession, error) {
	s, ok := f.byMailbox[mailboxID]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (f *fakeSessions) ListInProgress(_ context.Context) ([]domain.WarmupSession, error) {
	var out []domain.WarmupSession
	for _, s := range f.byMailbox {
		if s.Status == domain.WarmupInProgress {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Update(_ context.Context, s *domain.WarmupSession) error {
	clone := *s
	f.byMailbox[s.MailboxID] = &clone
	return nil
}

type fakeMailboxes struct {
	factors     map[string]domain.ReputationFactors
	statuses    map[string]domain.MailboxStatus
	dailyLimits map[string]int
}

func newFakeMailboxes() *fakeMailboxes {
	return &fakeMailboxes{
		factors:     map[string]domain.ReputationFactors{},
		statuses:    map[string]domain.MailboxStatus{},
		dailyLimits: map[string]int{},
	}
}

func (f *fakeMailboxes) Get(_ context.Context, id string) (domain.Mailbox, error) {
	if _, ok := f.statuses[id]; !ok {
		return domain.Mailbox{}, fmt.Errorf("mailbox %s not found", id)
	}
	return domain.Mailbox{
		ID:     id,
		Status: f.statuses[id],
		SendingState: domain.SendingState{
			MailboxID:  id,
			DailyLimit: f.dailyLimits[id],
		},
	}, nil
}

func (f *fakeMailboxes) SetStatus(_ context.Context, id string, status domain.MailboxStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeMailboxes) SetDailyLimit(_ context.Context, id string, limit int) error {
	f.dailyLimits[id] = limit
	return nil
}

func (f *fakeMailboxes) ReputationFactors(_ context.Context, id string) (domain.ReputationFactors, error) {
	return f.factors[id], nil
}

type fakeUsage struct {
	sentToday map[string]int
}

func (f *fakeUsage) Usage(_ context.Context, id string, _ time.Time) (int, int, *time.Time, error) {
	return f.sentToday[id], 0, nil, nil
}

// healthyFactors keeps the reputation scorer in the healthy band.
func healthyFactors() domain.ReputationFactors {
	return domain.ReputationFactors{
		SentCount:          500,
		DeliveredCount:     495,
		BouncedCount:       2,
		OpenedCount:        250,
		ClickedCount:       60,
		RepliedCount:       30,
		DaysSinceFirstSend: 40,
	}
}

// criticalFactors trips the severe bounce threshold.
func criticalFactors() domain.ReputationFactors {
	return domain.ReputationFactors{
		SentCount:          500,
		BouncedCount:       100,
		DaysSinceFirstSend: 40,
	}
}

type warmupFixture struct {
	sessions *fakeSessions
	boxes    *fakeMailboxes
	usage    *fakeUsage
	orch     *Orchestrator
}

func newWarmupFixture() *warmupFixture {
	sessions := newFakeSessions()
	boxes := newFakeMailboxes()
	boxes.statuses["mbx-1"] = domain.MailboxActive
	boxes.factors["mbx-1"] = healthyFactors()
	usage := &fakeUsage{sentToday: map[string]int{}}

	orch := &Orchestrator{
		sessions:  sessions,
		mailboxes: boxes,
		usage:     usage,
		now:       func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) },
	}
	return &warmupFixture{sessions: sessions, boxes: boxes, usage: usage, orch: orch}
}

// --- tests ---

func TestStart(t *testing.T) {
	f := newWarmupFixture()

	session, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)

	assert.Equal(t, domain.WarmupInProgress, session.Status)
	assert.Equal(t, 1, session.Stage)
	assert.Zero(t, session.ProgressPercent)
	assert.Equal(t, domain.MailboxWarming, f.boxes.statuses["mbx-1"])
	assert.Equal(t, 5, f.boxes.dailyLimits["mbx-1"], "stage 1 cap applies immediately")
}

func TestStart_RejectsDuplicateSession(t *testing.T) {
	f := newWarmupFixture()

	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileSlow)
	require.NoError(t, err)

	_, err = f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileSlow)
	assert.ErrorContains(t, err, "already has")
}

func TestStart_RejectsUnknownProfile(t *testing.T) {
	f := newWarmupFixture()

	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.WarmupProfile("turbo"))
	assert.ErrorContains(t, err, "unknown warmup profile")
}

func TestStart_TargetVolumeCapsStage(t *testing.T) {
	f := newWarmupFixture()

	_, err := f.orch.Start(context.Background(), "mbx-1", 3, domain.ProfileSlow)
	require.NoError(t, err)
	assert.Equal(t, 3, f.boxes.dailyLimits["mbx-1"], "target volume below stage cap binds")
}

// Stage 3 session (progress 40) on a moderate profile: one healthy tick
// adds the profile increment and recomputes the stage.
func TestMaintenance_AdvancesHealthySession(t *testing.T) {
	f := newWarmupFixture()
	f.sessions.byMailbox["mbx-1"] = &domain.WarmupSession{
		ID: "ws-1", MailboxID: "mbx-1", Status: domain.WarmupInProgress,
		Profile: domain.ProfileModerate, Stage: 3, ProgressPercent: 40, TargetVolume: 75,
	}

	report, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Advanced)
	assert.Zero(t, report.Paused)

	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, 46, s.ProgressPercent)
	assert.Equal(t, domain.WarmupStageForProgress(46), s.Stage)
	assert.Equal(t, 3, s.Stage, "46 points is still stage 3")
	assert.Equal(t, StageDailyCap(3), f.boxes.dailyLimits["mbx-1"])
}

func TestMaintenance_StageBoundaryCrossing(t *testing.T) {
	f := newWarmupFixture()
	f.sessions.byMailbox["mbx-1"] = &domain.WarmupSession{
		ID: "ws-1", MailboxID: "mbx-1", Status: domain.WarmupInProgress,
		Profile: domain.ProfileAggressive, Stage: 3, ProgressPercent: 45, TargetVolume: 75,
	}

	_, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)

	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, 55, s.ProgressPercent)
	assert.Equal(t, 4, s.Stage, "crossing 51 points moves to stage 4")
	assert.Equal(t, StageDailyCap(4), f.boxes.dailyLimits["mbx-1"])
}

// Critical reputation pauses the session with a recorded reason and
// freezes the daily limit instead of advancing it.
func TestMaintenance_AutoPausesOnCriticalHealth(t *testing.T) {
	f := newWarmupFixture()
	f.boxes.factors["mbx-1"] = criticalFactors()
	f.boxes.dailyLimits["mbx-1"] = StageDailyCap(3)
	f.sessions.byMailbox["mbx-1"] = &domain.WarmupSession{
		ID: "ws-1", MailboxID: "mbx-1", Status: domain.WarmupInProgress,
		Profile: domain.ProfileModerate, Stage: 3, ProgressPercent: 40, TargetVolume: 75,
	}

	report, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Paused)
	assert.Zero(t, report.Advanced)

	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, domain.WarmupPaused, s.Status)
	assert.Contains(t, s.PauseReason, "reputation critical")
	assert.Equal(t, 40, s.ProgressPercent, "progress frozen")
	assert.Equal(t, StageDailyCap(3), f.boxes.dailyLimits["mbx-1"], "limit frozen")

	// The frozen limit keeps feeding throttle evaluation until resume.
	limit := f.orch.EffectiveDailyLimit(context.Background(), "mbx-1", 100)
	assert.Equal(t, StageDailyCap(3), limit)
}

func TestMaintenance_CompletesAtStageSixSaturation(t *testing.T) {
	f := newWarmupFixture()
	f.sessions.byMailbox["mbx-1"] = &domain.WarmupSession{
		ID: "ws-1", MailboxID: "mbx-1", Status: domain.WarmupInProgress,
		Profile: domain.ProfileAggressive, Stage: 6, ProgressPercent: 95, TargetVolume: 120,
	}

	report, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Completed)

	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, domain.WarmupCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, domain.MailboxActive, f.boxes.statuses["mbx-1"])
	assert.Equal(t, 120, f.boxes.dailyLimits["mbx-1"], "completion hands off to the target volume")

	// Completed sessions no longer cap throttle evaluation.
	limit := f.orch.EffectiveDailyLimit(context.Background(), "mbx-1", 100)
	assert.Equal(t, 100, limit)
}

func TestMaintenance_SaturatedButUnhealthyStaysInProgress(t *testing.T) {
	f := newWarmupFixture()
	// Elevated (not severe) bounce rate: warning, not critical.
	factors := healthyFactors()
	factors.BouncedCount = 35 // 7%
	f.boxes.factors["mbx-1"] = factors

	f.sessions.byMailbox["mbx-1"] = &domain.WarmupSession{
		ID: "ws-1", MailboxID: "mbx-1", Status: domain.WarmupInProgress,
		Profile: domain.ProfileAggressive, Stage: 6, ProgressPercent: 100, TargetVolume: 120,
	}

	report, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Advanced, "warning health holds completion back")
	assert.Equal(t, domain.WarmupInProgress, f.sessions.byMailbox["mbx-1"].Status)
}

func TestPauseAndResume(t *testing.T) {
	f := newWarmupFixture()
	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)

	require.NoError(t, f.orch.Pause(context.Background(), "mbx-1", "operator hold"))
	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, domain.WarmupPaused, s.Status)
	assert.Equal(t, "operator hold", s.PauseReason)

	// Paused sessions are skipped by maintenance.
	report, err := f.orch.RunDailyMaintenance(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Advanced)

	require.NoError(t, f.orch.Resume(context.Background(), "mbx-1"))
	s = f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, domain.WarmupInProgress, s.Status)
	assert.Empty(t, s.PauseReason)
}

func TestResume_RequiresPausedSession(t *testing.T) {
	f := newWarmupFixture()
	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)

	err = f.orch.Resume(context.Background(), "mbx-1")
	assert.ErrorContains(t, err, "not paused")
}

func TestStop(t *testing.T) {
	f := newWarmupFixture()
	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)

	require.NoError(t, f.orch.Stop(context.Background(), "mbx-1", "domain retired"))

	s := f.sessions.byMailbox["mbx-1"]
	assert.Equal(t, domain.WarmupStopped, s.Status)
	assert.Equal(t, domain.MailboxActive, f.boxes.statuses["mbx-1"])

	// Terminal: no further control operations.
	assert.Error(t, f.orch.Pause(context.Background(), "mbx-1", "x"))
	assert.Error(t, f.orch.Stop(context.Background(), "mbx-1", "x"))
}

func TestEffectiveDailyLimit(t *testing.T) {
	f := newWarmupFixture()

	// No session: standing limit passes through.
	assert.Equal(t, 100, f.orch.EffectiveDailyLimit(context.Background(), "mbx-1", 100))

	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)

	assert.Equal(t, 5, f.orch.EffectiveDailyLimit(context.Background(), "mbx-1", 100),
		"stage 1 cap overrides the standing limit")

	// A standing limit tighter than the warmup cap still binds.
	f.sessions.byMailbox["mbx-1"].Stage = 6
	assert.Equal(t, 50, f.orch.EffectiveDailyLimit(context.Background(), "mbx-1", 50))
}

func TestSnapshot(t *testing.T) {
	f := newWarmupFixture()
	f.usage.sentToday["mbx-1"] = 3

	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)
	f.sessions.byMailbox["mbx-1"].Stage = 2
	f.sessions.byMailbox["mbx-1"].ProgressPercent = 20

	snap, err := f.orch.Snapshot(context.Background(), "mbx-1")
	require.NoError(t, err)

	assert.Equal(t, domain.WarmupInProgress, snap.Status)
	assert.Equal(t, 2, snap.Stage)
	assert.Equal(t, 20, snap.ProgressPercent)
	assert.Equal(t, StageDailyCap(2), snap.DailyLimit)
	assert.Equal(t, 3, snap.SentToday)
	assert.InDelta(t, 30.0, snap.UtilizationPercent, 0.01)
	assert.Equal(t, domain.HealthHealthy, snap.HealthStatus)
	assert.Greater(t, snap.ReputationScore, 70.0)
}

// A finished or stopped warmup is still reported with its terminal state,
// and the warmup cap no longer overrides the standing limit.
func TestSnapshot_TerminalSessionStaysVisible(t *testing.T) {
	f := newWarmupFixture()

	_, err := f.orch.Start(context.Background(), "mbx-1", 75, domain.ProfileModerate)
	require.NoError(t, err)
	require.NoError(t, f.orch.Stop(context.Background(), "mbx-1", "domain retired"))

	// Operator restores the standing limit after the stop.
	f.boxes.dailyLimits["mbx-1"] = 200

	snap, err := f.orch.Snapshot(context.Background(), "mbx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WarmupStopped, snap.Status)
	assert.Equal(t, 200, snap.DailyLimit, "terminal session does not cap the limit")

	s := f.sessions.byMailbox["mbx-1"]
	s.Status = domain.WarmupCompleted
	s.Stage = 6
	s.ProgressPercent = 100

	snap, err = f.orch.Snapshot(context.Background(), "mbx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WarmupCompleted, snap.Status)
	assert.Equal(t, 6, snap.Stage)
	assert.Equal(t, 100, snap.ProgressPercent)
}

func TestStageCapTable(t *testing.T) {
	assert.Equal(t, 5, StageDailyCap(1))
	assert.Equal(t, 75, StageDailyCap(6))
	assert.Equal(t, 5, StageDailyCap(0), "clamps below range")
	assert.Equal(t, 75, StageDailyCap(9), "clamps above range")
}

func TestStageForProgress(t *testing.T) {
	tests := []struct {
		progress, stage int
	}{
		{0, 1}, {16, 1}, {17, 2}, {33, 2}, {34, 3},
		{40, 3}, {51, 4}, {68, 5}, {85, 6}, {100, 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.stage, domain.WarmupStageForProgress(tt.progress),
			"progress %d", tt.progress)
	}
}

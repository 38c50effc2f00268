package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/outreach-core/internal/domain"
)

// matureFactors is a healthy identity with a month of history.
func matureFactors() domain.ReputationFactors {
	return domain.ReputationFactors{
		SentCount:          1000,
		DeliveredCount:     980,
		BouncedCount:       10,
		OpenedCount:        450,
		ClickedCount:       80,
		RepliedCount:       40,
		SpamReportCount:    0,
		UnsubscribeCount:   5,
		DaysSinceFirstSend: 45,
	}
}

func TestScore_HealthyMatureIdentity(t *testing.T) {
	s := Score(matureFactors())

	assert.GreaterOrEqual(t, s.Overall, 70.0)
	assert.Equal(t, domain.HealthHealthy, s.Health)
	assert.Equal(t, 1.0, s.Confidence, "45 days of history is full confidence")
	assert.InDelta(t, 99.0, s.Deliverability, 0.5)
}

func TestScore_NoHistoryIsNeutral(t *testing.T) {
	s := Score(domain.ReputationFactors{})

	assert.Equal(t, 50.0, s.Overall)
	assert.Zero(t, s.Confidence)
	assert.Equal(t, domain.HealthHealthy, s.Health)
}

func TestScore_NewIdentityCannotClaimPerfectScore(t *testing.T) {
	f := domain.ReputationFactors{
		SentCount:          10,
		DeliveredCount:     10,
		OpenedCount:        10,
		ClickedCount:       10,
		RepliedCount:       10,
		DaysSinceFirstSend: 0,
	}
	s := Score(f)

	assert.Less(t, s.Overall, 70.0, "day-one identity is dampened toward neutral")
	assert.Less(t, s.Confidence, 0.1)

	// The same flawless counters with full history score far higher.
	f.DaysSinceFirstSend = 60
	assert.Greater(t, Score(f).Overall, 90.0)
}

func TestScore_HighBounceRateIsCritical(t *testing.T) {
	f := matureFactors()
	f.BouncedCount = 150 // 15% bounce rate

	s := Score(f)
	assert.Equal(t, domain.HealthCritical, s.Health)
}

func TestScore_ElevatedBounceRateIsWarning(t *testing.T) {
	f := matureFactors()
	f.BouncedCount = 70 // 7% bounce rate

	s := Score(f)
	assert.Equal(t, domain.HealthWarning, s.Health)
}

func TestScore_SpamReportsAreSevere(t *testing.T) {
	f := matureFactors()
	f.SpamReportCount = 5 // 0.5% spam rate

	s := Score(f)
	assert.Equal(t, domain.HealthCritical, s.Health)
	assert.Less(t, s.ComplaintSafety, 60.0)
}

func TestScore_DegradedIdentityIsCritical(t *testing.T) {
	f := domain.ReputationFactors{
		SentCount:          1000,
		BouncedCount:       400,
		DaysSinceFirstSend: 60,
	}

	s := Score(f)
	assert.Less(t, s.Overall, healthyScoreFloor)
	assert.Equal(t, domain.HealthCritical, s.Health)
}

// Monotonicity: raising a negative counter must never raise the overall
// score; raising a positive counter must never lower it. Checked across a
// spread of baselines, not just one.
func TestScore_Monotonicity(t *testing.T) {
	baselines := []domain.ReputationFactors{
		matureFactors(),
		{SentCount: 100, DeliveredCount: 90, BouncedCount: 5, OpenedCount: 20, DaysSinceFirstSend: 10},
		{SentCount: 50, DeliveredCount: 50, DaysSinceFirstSend: 3},
		{SentCount: 2000, DeliveredCount: 1500, BouncedCount: 100, SpamReportCount: 2, UnsubscribeCount: 30, OpenedCount: 400, ClickedCount: 50, RepliedCount: 10, DaysSinceFirstSend: 90},
	}

	negatives := []struct {
		name string
		bump func(*domain.ReputationFactors)
	}{
		{"bounced", func(f *domain.ReputationFactors) { f.BouncedCount += 10 }},
		{"spam", func(f *domain.ReputationFactors) { f.SpamReportCount += 3 }},
		{"unsubscribe", func(f *domain.ReputationFactors) { f.UnsubscribeCount += 10 }},
	}
	positives := []struct {
		name string
		bump func(*domain.ReputationFactors)
	}{
		{"delivered", func(f *domain.ReputationFactors) { f.DeliveredCount += 10 }},
		{"opened", func(f *domain.ReputationFactors) { f.OpenedCount += 10 }},
		{"clicked", func(f *domain.ReputationFactors) { f.ClickedCount += 10 }},
		{"replied", func(f *domain.ReputationFactors) { f.RepliedCount += 10 }},
	}

	for i, base := range baselines {
		before := Score(base).Overall

		for _, n := range negatives {
			f := base
			n.bump(&f)
			after := Score(f).Overall
			assert.LessOrEqual(t, after, before,
				"baseline %d: increasing %s must not raise the score", i, n.name)
		}

		for _, p := range positives {
			f := base
			p.bump(&f)
			after := Score(f).Overall
			assert.GreaterOrEqual(t, after, before,
				"baseline %d: increasing %s must not lower the score", i, p.name)
		}
	}
}

func TestScore_BoundedRange(t *testing.T) {
	extremes := []domain.ReputationFactors{
		{SentCount: 100, BouncedCount: 100, SpamReportCount: 100, UnsubscribeCount: 100, DaysSinceFirstSend: 365},
		{SentCount: 100, DeliveredCount: 100, OpenedCount: 100, ClickedCount: 100, RepliedCount: 100, DaysSinceFirstSend: 365},
	}

	for _, f := range extremes {
		s := Score(f)
		assert.GreaterOrEqual(t, s.Overall, 0.0)
		assert.LessOrEqual(t, s.Overall, 100.0)
	}
}

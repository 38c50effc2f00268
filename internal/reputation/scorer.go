// Package reputation derives a 0-100 health score for a sender identity
// from its aggregated delivery and engagement counters. Scoring is pure:
// counters in, score out, nothing persisted.
package reputation

import (
	"github.com/ignite/outreach-core/internal/domain"
)

// Component weights. Deliverability dominates because inbox providers
// punish bounces harder than they reward engagement.
const (
	weightDeliverability  = 0.40
	weightEngagement      = 0.35
	weightComplaintSafety = 0.25
)

// Engagement rate weights within the engagement sub-score. Replies are the
// strongest positive signal for cold outreach but the rarest, so open rate
// carries the most weight. The 2.5 scale maps realistic cold-outreach rates
// (40% open, single-digit click/reply) onto a usable 0-100 range.
const (
	engagementOpenWeight  = 0.4
	engagementClickWeight = 0.3
	engagementReplyWeight = 0.3
	engagementScale       = 2.5
)

// Health thresholds. The elevated tiers cap an identity at warning; the
// severe tiers force critical regardless of the overall score.
const (
	healthyScoreFloor = 70.0
	warningScoreFloor = 40.0

	elevatedBounceRate = 0.05
	severeBounceRate   = 0.10
	elevatedSpamRate   = 0.001
	severeSpamRate     = 0.003
)

// confidenceRampDays is how many days of history it takes to fully trust
// the raw score. Younger identities are dampened toward neutral.
const confidenceRampDays = 30

// Score computes the reputation of one sender identity from its counters.
// All rates are taken over sentCount so that adding positive events
// (delivered, opened, replied) can only raise the score, never lower it.
func Score(f domain.ReputationFactors) domain.ReputationScore {
	if f.SentCount <= 0 {
		// No history: neutral score, no health penalty.
		return domain.ReputationScore{
			Overall:         50,
			Deliverability:  100,
			Engagement:      0,
			ComplaintSafety: 100,
			Confidence:      0,
			Health:          domain.HealthHealthy,
		}
	}

	sent := float64(f.SentCount)
	bounceRate := float64(f.BouncedCount) / sent
	spamRate := float64(f.SpamReportCount) / sent
	unsubRate := float64(f.UnsubscribeCount) / sent

	deliverability := clamp01(1-bounceRate) * 100

	engagementRate := engagementOpenWeight*float64(f.OpenedCount)/sent +
		engagementClickWeight*float64(f.ClickedCount)/sent +
		engagementReplyWeight*float64(f.RepliedCount)/sent
	engagement := clamp01(engagementRate*engagementScale) * 100

	// Spam reports are ~10x more damaging than unsubscribes: a 1% spam
	// rate zeroes the sub-score, a 1% unsubscribe rate costs 10 points.
	complaintSafety := clamp01(1-(spamRate*100+unsubRate*10)) * 100

	raw := weightDeliverability*deliverability +
		weightEngagement*engagement +
		weightComplaintSafety*complaintSafety

	confidence := float64(f.DaysSinceFirstSend+1) / confidenceRampDays
	if confidence > 1 {
		confidence = 1
	}

	overall := 50 + confidence*(raw-50)
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	return domain.ReputationScore{
		Overall:         overall,
		Deliverability:  deliverability,
		Engagement:      engagement,
		ComplaintSafety: complaintSafety,
		Confidence:      confidence,
		Health:          classify(overall, bounceRate, spamRate),
	}
}

func classify(overall, bounceRate, spamRate float64) domain.HealthStatus {
	if overall < warningScoreFloor || bounceRate > severeBounceRate || spamRate > severeSpamRate {
		return domain.HealthCritical
	}
	if overall < healthyScoreFloor || bounceRate > elevatedBounceRate || spamRate > elevatedSpamRate {
		return domain.HealthWarning
	}
	return domain.HealthHealthy
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

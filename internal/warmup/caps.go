// Package warmup ramps a new sender identity's volume in stages, watching
// reputation health and pausing the ramp when it degrades.
package warmup

import "github.com/ignite/outreach-core/internal/domain"

// stageDailyCaps maps stage (1-6) to the daily volume allowed while
// warming. The last stage hands off to the mailbox's standing policy on
// completion.
var stageDailyCaps = []int{5, 10, 20, 35, 50, 75}

// StageDailyCap returns the daily cap for a warmup stage.
func StageDailyCap(stage int) int {
	if stage < 1 {
		stage = 1
	}
	if stage > domain.WarmupStageCount {
		stage = domain.WarmupStageCount
	}
	return stageDailyCaps[stage-1]
}

// progressIncrements maps profile to how many progress points one daily
// maintenance tick adds. Slow ramps take about a month to saturate,
// aggressive ones under two weeks.
var progressIncrements = map[domain.WarmupProfile]int{
	domain.ProfileSlow:       3,
	domain.ProfileModerate:   6,
	domain.ProfileAggressive: 10,
}

// ProgressIncrement returns the per-tick progress gain for a profile.
// Unknown profiles ramp at the slow rate.
func ProgressIncrement(profile domain.WarmupProfile) int {
	if inc, ok := progressIncrements[profile]; ok {
		return inc
	}
	return progressIncrements[domain.ProfileSlow]
}

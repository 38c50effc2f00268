// Package throttle decides whether a mailbox may send now. The Evaluate
// function is pure policy; CounterStore provides the atomic Redis-backed
// counters that make concurrent claims safe.
package throttle

import (
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// Decision reasons, first match wins in Evaluate.
const (
	ReasonDailyLimit  = "daily_limit_reached"
	ReasonHourlyLimit = "hourly_limit_reached"
	ReasonMinSpacing  = "min_delay_not_elapsed"
	ReasonManual      = "manually_throttled"
)

// Decision is the outcome of a throttle evaluation.
type Decision struct {
	Throttled  bool          `json:"throttled"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after_seconds,omitempty"`
}

// Evaluate checks the mailbox counters against its policy. Check order is
// deliberate: daily and hourly caps come before burst spacing so the
// retry-after reported to callers is always the longest meaningful wait,
// preventing thrash-retry loops. Burst-window limits are enforced by the
// CounterStore at claim time, not here (the sending state carries no burst
// counter).
func Evaluate(state domain.SendingState, config domain.ThrottleConfig, now time.Time) Decision {
	if config.MaxPerDay > 0 && state.SentToday >= config.MaxPerDay {
		return Decision{
			Throttled:  true,
			Reason:     ReasonDailyLimit,
			RetryAfter: untilNextMidnight(now),
		}
	}

	if config.MaxPerHour > 0 && state.SentThisHour >= config.MaxPerHour {
		return Decision{
			Throttled:  true,
			Reason:     ReasonHourlyLimit,
			RetryAfter: untilNextHour(now),
		}
	}

	if config.MinDelaySeconds > 0 && state.LastSentAt != nil {
		elapsed := now.Sub(*state.LastSentAt)
		minDelay := time.Duration(config.MinDelaySeconds) * time.Second
		if elapsed < minDelay {
			return Decision{
				Throttled:  true,
				Reason:     ReasonMinSpacing,
				RetryAfter: minDelay - elapsed,
			}
		}
	}

	if state.IsThrottled {
		if state.ThrottledUntil != nil {
			if state.ThrottledUntil.After(now) {
				return Decision{
					Throttled:  true,
					Reason:     ReasonManual,
					RetryAfter: state.ThrottledUntil.Sub(now),
				}
			}
			// Expired manual throttle: fall through, not throttled.
		} else {
			// Operator freeze with no expiry. Retry after the policy's max
			// delay so the job isn't parked forever.
			retry := time.Duration(config.MaxDelaySeconds) * time.Second
			if retry <= 0 {
				retry = time.Hour
			}
			return Decision{Throttled: true, Reason: ReasonManual, RetryAfter: retry}
		}
	}

	return Decision{}
}

func untilNextMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return midnight.Sub(now)
}

func untilNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

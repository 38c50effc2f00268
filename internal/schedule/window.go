// Package schedule evaluates business-hours sending windows. It is pure:
// callers supply the policy windows, a timezone, and the instant to test.
package schedule

import (
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// FallbackHour is the local hour used when no enabled window can be found
// within a 7-day lookahead. A misconfigured policy must not leave jobs
// stuck forever, so we defer to tomorrow morning instead of raising.
const FallbackHour = 9

// IsWithinWindow reports whether now falls inside an enabled window of the
// policy, evaluated in the given timezone. No window for the current
// weekday means false.
func IsWithinWindow(windows []domain.ScheduleWindow, tz *time.Location, now time.Time) bool {
	local := now.In(tz)
	weekday := int(local.Weekday())
	minutes := local.Hour()*60 + local.Minute()

	for _, w := range windows {
		if !w.Enabled || w.DayOfWeek != weekday {
			continue
		}
		if minutes >= w.StartMinutes() && minutes < w.EndMinutes() {
			return true
		}
	}
	return false
}

// NextWindowStart computes when a deferred job should next be attempted.
// Inside a window it returns now + minDelay (still inside today's window,
// so no day advance). Outside, it scans up to 7 days forward for the next
// enabled window start. If nothing matches the policy is misconfigured and
// the result falls back to tomorrow at FallbackHour local time.
func NextWindowStart(windows []domain.ScheduleWindow, tz *time.Location, now time.Time, minDelay time.Duration) time.Time {
	if IsWithinWindow(windows, tz, now) {
		return now.Add(minDelay)
	}

	local := now.In(tz)
	nowMinutes := local.Hour()*60 + local.Minute()

	for dayOffset := 0; dayOffset < 7; dayOffset++ {
		day := local.AddDate(0, 0, dayOffset)
		weekday := int(day.Weekday())

		best := -1
		var bestWindow domain.ScheduleWindow
		for _, w := range windows {
			if !w.Enabled || w.DayOfWeek != weekday {
				continue
			}
			// Today: only windows that haven't started yet.
			if dayOffset == 0 && w.StartMinutes() <= nowMinutes {
				continue
			}
			if best == -1 || w.StartMinutes() < best {
				best = w.StartMinutes()
				bestWindow = w
			}
		}
		if best >= 0 {
			return time.Date(day.Year(), day.Month(), day.Day(),
				bestWindow.StartHour, bestWindow.StartMinute, 0, 0, tz)
		}
	}

	tomorrow := local.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), FallbackHour, 0, 0, 0, tz)
}

// LoadLocation resolves a timezone name, defaulting to UTC for empty or
// unknown names rather than failing the evaluation.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

package domain

import "fmt"

// ScheduleWindow is one allowed sending interval for a single day of the
// week. A schedule policy is a set of windows, at most one per weekday
// active at evaluation time. Minutes are half-open: [start, end).
type ScheduleWindow struct {
	DayOfWeek   int  `json:"day_of_week" db:"day_of_week"` // 0 = Sunday
	StartHour   int  `json:"start_hour" db:"start_hour"`
	StartMinute int  `json:"start_minute" db:"start_minute"`
	EndHour     int  `json:"end_hour" db:"end_hour"`
	EndMinute   int  `json:"end_minute" db:"end_minute"`
	Enabled     bool `json:"enabled" db:"enabled"`
}

// StartMinutes returns the window start as minutes since midnight.
func (w ScheduleWindow) StartMinutes() int { return w.StartHour*60 + w.StartMinute }

// EndMinutes returns the window end as minutes since midnight.
func (w ScheduleWindow) EndMinutes() int { return w.EndHour*60 + w.EndMinute }

// Validate reports configuration errors: out-of-range fields or an
// inverted (or empty) interval.
func (w ScheduleWindow) Validate() error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week %d out of range 0-6", w.DayOfWeek)
	}
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("hour out of range 0-23")
	}
	if w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return fmt.Errorf("minute out of range 0-59")
	}
	if w.StartMinutes() >= w.EndMinutes() {
		return fmt.Errorf("window start %02d:%02d not before end %02d:%02d",
			w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
	}
	return nil
}

// SchedulePolicy is a named, timezone-qualified set of sending windows
// shared by the mailboxes of an organization or campaign.
type SchedulePolicy struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	Name           string           `json:"name" db:"name"`
	Timezone       string           `json:"timezone" db:"timezone"`
	Windows        []ScheduleWindow `json:"windows"`
}

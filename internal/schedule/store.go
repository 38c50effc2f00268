package schedule

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// Store loads schedule policies from Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a schedule policy store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Policy loads one policy with its windows. An unknown or empty policy ID
// returns an empty policy in UTC, which downstream evaluation treats as
// "no windows" and resolves through the fallback path.
func (s *Store) Policy(ctx context.Context, policyID string) (domain.SchedulePolicy, error) {
	if policyID == "" {
		return domain.SchedulePolicy{Timezone: "UTC"}, nil
	}

	p := domain.SchedulePolicy{ID: policyID}
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, name, COALESCE(timezone, 'UTC')
		FROM outreach_schedule_policies
		WHERE id = $1
	`, policyID).Scan(&p.OrganizationID, &p.Name, &p.Timezone)
	if err == sql.ErrNoRows {
		return domain.SchedulePolicy{ID: policyID, Timezone: "UTC"}, nil
	}
	if err != nil {
		return domain.SchedulePolicy{}, fmt.Errorf("load schedule policy %s: %w", policyID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, start_hour, start_minute, end_hour, end_minute, enabled
		FROM outreach_schedule_windows
		WHERE policy_id = $1
		ORDER BY day_of_week, start_hour, start_minute
	`, policyID)
	if err != nil {
		return domain.SchedulePolicy{}, fmt.Errorf("load windows for policy %s: %w", policyID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var w domain.ScheduleWindow
		if err := rows.Scan(&w.DayOfWeek, &w.StartHour, &w.StartMinute,
			&w.EndHour, &w.EndMinute, &w.Enabled); err != nil {
			return domain.SchedulePolicy{}, fmt.Errorf("scan window: %w", err)
		}
		p.Windows = append(p.Windows, w)
	}
	return p, rows.Err()
}

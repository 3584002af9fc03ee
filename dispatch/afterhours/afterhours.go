// Package afterhours implements the After-Hours Router (spec.md §4.6):
// decides whether a given instant falls inside a company's after-hours
// window and, if so, returns the routing strategy and notification
// parameters its matching rule carries. Rewritten in place from the
// same rule-table-over-time-of-day shape task_scheduler/go/scheduling
// uses for quota windows, generalized here to AfterHoursRule's weekday/
// weekend/on-call fields.
package afterhours

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"go.fieldcore.build/dispatch/schema"
)

// Decision is the result of one Evaluate call.
type Decision struct {
	IsAfterHours      bool
	RoutingStrategy    string
	OnCallEmployeeIDs []string
	SurchargeFlat     float64
	SurchargePercent  float64
	AutoAccept        bool
	NotifyManager     bool
	ManagerPhone      string
}

// Evaluate implements spec.md §4.6: fetches active after-hours rules for
// companyID (optionally scoped to branchID), and returns the first
// matching rule's fields in fetch order. No matching rule (or no active
// rules at all) means business hours.
func Evaluate(ctx context.Context, q pgx.Tx, companyID string, branchID *string, at time.Time) (Decision, error) {
	rules, err := loadActiveRules(ctx, q, companyID, branchID)
	if err != nil {
		return Decision{}, err
	}
	if len(rules) == 0 {
		return Decision{IsAfterHours: false}, nil
	}
	for _, r := range rules {
		if matches(r, at) {
			return Decision{
				IsAfterHours:      true,
				RoutingStrategy:   r.RoutingStrategy,
				OnCallEmployeeIDs: r.OnCallEmployeeIDs,
				SurchargeFlat:     r.SurchargeFlat,
				SurchargePercent:  r.SurchargePercent,
				AutoAccept:        r.AutoAccept,
				NotifyManager:     r.NotifyManager,
				ManagerPhone:      r.ManagerPhone,
			}, nil
		}
	}
	return Decision{IsAfterHours: false}, nil
}

// matches reports whether at falls inside rule's window, honoring the
// weekend_all_day override and both the non-wrapping and midnight-wrapping
// weekday_start/weekday_end cases (spec.md §4.6, verified against spec.md
// §8 scenario 3's six boundary cases).
func matches(r schema.AfterHoursRule, at time.Time) bool {
	weekday := at.Weekday()
	if r.WeekendAllDay && (weekday == time.Saturday || weekday == time.Sunday) {
		return true
	}
	now := minutesOfDayInt(at)
	start := parseHHMM(r.WeekdayStart)
	end := parseHHMM(r.WeekdayEnd)
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func minutesOfDayInt(at time.Time) int {
	return at.Hour()*60 + at.Minute()
}

// parseHHMM parses an "HH:MM" wall-clock string into minutes since
// midnight.
func parseHHMM(hhmm string) int {
	if len(hhmm) < 5 {
		return 0
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h*60 + m
}

func loadActiveRules(ctx context.Context, q pgx.Tx, companyID string, branchID *string) ([]schema.AfterHoursRule, error) {
	var rows pgx.Rows
	var err error
	if branchID != nil {
		rows, err = q.Query(ctx, `
			SELECT rule_id, company_id, branch_id, active, weekday_start, weekday_end,
				weekend_all_day, routing_strategy, on_call_employee_ids, surcharge_flat,
				surcharge_percent, auto_accept, notify_manager, manager_phone, fetch_order
			FROM after_hours_rules
			WHERE company_id=$1 AND active=true AND (branch_id=$2 OR branch_id IS NULL)
			ORDER BY fetch_order ASC`, companyID, *branchID)
	} else {
		rows, err = q.Query(ctx, `
			SELECT rule_id, company_id, branch_id, active, weekday_start, weekday_end,
				weekend_all_day, routing_strategy, on_call_employee_ids, surcharge_flat,
				surcharge_percent, auto_accept, notify_manager, manager_phone, fetch_order
			FROM after_hours_rules
			WHERE company_id=$1 AND active=true
			ORDER BY fetch_order ASC`, companyID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.AfterHoursRule
	for rows.Next() {
		var r schema.AfterHoursRule
		if err := rows.Scan(&r.RuleID, &r.CompanyID, &r.BranchID, &r.Active, &r.WeekdayStart, &r.WeekdayEnd,
			&r.WeekendAllDay, &r.RoutingStrategy, &r.OnCallEmployeeIDs, &r.SurchargeFlat,
			&r.SurchargePercent, &r.AutoAccept, &r.NotifyManager, &r.ManagerPhone, &r.FetchOrder); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PickOnCallTech returns the first employee id in ids whose employee row
// is active, available, and under its concurrent-job cap, or "" if ids is
// empty or none qualify (spec.md §4.6).
func PickOnCallTech(ctx context.Context, q pgx.Tx, ids []string) (string, error) {
	for _, id := range ids {
		var isActive, isAvailable bool
		var currentJobsCount, maxConcurrent int
		err := q.QueryRow(ctx, `
			SELECT is_active, is_available, current_jobs_count, max_concurrent_jobs
			FROM employees WHERE employee_id=$1`, id).
			Scan(&isActive, &isAvailable, &currentJobsCount, &maxConcurrent)
		if err != nil {
			continue
		}
		if isActive && isAvailable && currentJobsCount < maxConcurrent {
			return id, nil
		}
	}
	return "", nil
}

package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

// ScheduleMaterializer advances RecurringJobSchedule rows into concrete
// unassigned Jobs (spec.md §4.8). A schedule materializes once its
// next_run_at minus advance_days has arrived; materializing creates one Job
// from its job_template and pushes next_run_at forward by frequency_days,
// so a stalled worker never double-creates a job for the same cycle.
type ScheduleMaterializer struct {
	pool *pgxpool.Pool
}

func NewScheduleMaterializer(pool *pgxpool.Pool) *ScheduleMaterializer {
	return &ScheduleMaterializer{pool: pool}
}

func (m *ScheduleMaterializer) Tick(ctx context.Context) error {
	nowTime := now.Now(ctx)
	rows, err := m.pool.Query(ctx, `
		SELECT schedule_id, company_id, customer_id, job_template, frequency_days, advance_days, next_run_at
		FROM recurring_job_schedules
		WHERE active=true AND next_run_at - (advance_days * INTERVAL '1 day') <= $1`, nowTime)
	if err != nil {
		return skerr.Wrap(err)
	}
	var due []schema.RecurringJobSchedule
	for rows.Next() {
		var s schema.RecurringJobSchedule
		if err := rows.Scan(&s.ScheduleID, &s.CompanyID, &s.CustomerID, &s.JobTemplate, &s.FrequencyDays, &s.AdvanceDays, &s.NextRunAt); err != nil {
			rows.Close()
			return skerr.Wrap(err)
		}
		due = append(due, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return skerr.Wrap(err)
	}

	for _, s := range due {
		if err := m.materializeOne(ctx, s, nowTime); err != nil {
			sklog.Warningf("materializing schedule %s: %s", s.ScheduleID, err)
		}
	}
	return nil
}

func (m *ScheduleMaterializer) materializeOne(ctx context.Context, s schema.RecurringJobSchedule, nowTime time.Time) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var jobType, address, description string
	var priority string
	if err := decodeJobTemplate(s.JobTemplate, &jobType, &address, &description, &priority); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (company_id, customer_id, address, job_type, priority, description, recurring_schedule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.CompanyID, s.CustomerID, address, jobType, priority, description, s.ScheduleID)
	if err != nil {
		return skerr.Wrap(err)
	}
	nextRun := s.NextRunAt.AddDate(0, 0, s.FrequencyDays)
	if _, err := tx.Exec(ctx, `UPDATE recurring_job_schedules SET next_run_at=$1 WHERE schedule_id=$2`, nextRun, s.ScheduleID); err != nil {
		return skerr.Wrap(err)
	}
	return tx.Commit(ctx)
}

func decodeJobTemplate(raw []byte, jobType, address, description, priority *string) error {
	var t struct {
		JobType     string `json:"jobType"`
		Address     string `json:"address"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return err
	}
	*jobType = t.JobType
	*address = t.Address
	*description = t.Description
	if t.Priority == "" {
		*priority = schema.PriorityMedium
	} else {
		*priority = t.Priority
	}
	return nil
}

// Package timetracking implements the Time-Tracking Ledger (spec.md §4.4):
// six single-timestamp PATCH operations on a Job's JobTimeTracking row,
// deriving drive/wrench/on-site minutes once the relevant pair of
// timestamps is set, and upserting those derived minutes onto
// JobCompletion with COALESCE so a late-arriving event never overwrites an
// already-computed value with null. Grounded on the same task-timestamp
// progression (Created/Started/Finished) tracked by task_scheduler's `db`
// row types, generalized here to the six ordered stages a field-service
// visit passes through. Per DESIGN.md's resolution of spec.md §9's open
// question, this implementation takes the "reject out-of-order write"
// branch: a PATCH that would set a timestamp earlier than an already-set
// prior-stage timestamp returns apperr.Conflict instead of silently
// producing a negative derived duration.
package timetracking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
)

// Stage identifies one of the six ledger PATCH operations, in the
// monotonic order spec.md §3 requires.
type Stage int

const (
	Dispatched Stage = iota
	Departed
	Arrived
	WorkStarted
	WorkEnded
	DepartedJob
)

var stageColumn = map[Stage]string{
	Dispatched:  "dispatched_at",
	Departed:    "departed_at",
	Arrived:     "arrived_at",
	WorkStarted: "work_started_at",
	WorkEnded:   "work_ended_at",
	DepartedJob: "departed_job_at",
}

// row mirrors one job_time_trackings record; nil pointers mean unset.
type row struct {
	companyID     string
	dispatchedAt  *time.Time
	departedAt    *time.Time
	arrivedAt     *time.Time
	workStartedAt *time.Time
	workEndedAt   *time.Time
	departedJobAt *time.Time
}

// orderedStages lists every stage in monotonic order, for the
// monotonicity check.
var orderedStages = []Stage{Dispatched, Departed, Arrived, WorkStarted, WorkEnded, DepartedJob}

func (r *row) at(s Stage) *time.Time {
	switch s {
	case Dispatched:
		return r.dispatchedAt
	case Departed:
		return r.departedAt
	case Arrived:
		return r.arrivedAt
	case WorkStarted:
		return r.workStartedAt
	case WorkEnded:
		return r.workEndedAt
	case DepartedJob:
		return r.departedJobAt
	}
	return nil
}

// Patch sets stage's timestamp to now on jobID's ledger row, rejecting a
// write that would violate weak monotonicity against already-set earlier
// stages (or already-set later stages that would now precede it).
// Idempotent: re-patching the same stage just re-sets it to the current
// time (spec.md §8 Id2).
func Patch(ctx context.Context, tx pgx.Tx, jobID string, stage Stage) error {
	r, err := loadRow(ctx, tx, jobID)
	if err != nil {
		return err
	}
	nowTime := now.Now(ctx)
	if err := checkMonotonic(r, stage, nowTime); err != nil {
		return err
	}
	col := stageColumn[stage]
	_, err = tx.Exec(ctx, `UPDATE job_time_trackings SET `+col+`=$1 WHERE job_id=$2`, nowTime, jobID)
	if err != nil {
		return skerr.Wrap(err)
	}
	return deriveAndUpsert(ctx, tx, jobID, stage)
}

// checkMonotonic rejects a write of candidate at stage if any earlier
// stage's recorded timestamp would be after candidate, or any already-set
// later stage's timestamp would be before candidate.
func checkMonotonic(r *row, stage Stage, candidate time.Time) error {
	idx := indexOf(stage)
	for i, s := range orderedStages {
		t := r.at(s)
		if t == nil {
			continue
		}
		if i < idx && t.After(candidate) {
			return apperr.Conflict("%s (%s) is after already-recorded earlier stage", stage, candidate)
		}
		if i > idx && t.Before(candidate) {
			return apperr.Conflict("%s (%s) is before already-recorded later stage", stage, candidate)
		}
	}
	return nil
}

func indexOf(s Stage) int {
	for i, o := range orderedStages {
		if o == s {
			return i
		}
	}
	return -1
}

// deriveAndUpsert recomputes drive/wrench/on-site minutes after a write to
// stage and, on work-ended or departed-job, upserts the non-null derived
// values onto job_completions via COALESCE (spec.md §4.4).
func deriveAndUpsert(ctx context.Context, tx pgx.Tx, jobID string, stage Stage) error {
	if stage != WorkEnded && stage != DepartedJob {
		return nil
	}
	r, err := loadRow(ctx, tx, jobID)
	if err != nil {
		return err
	}
	driveMinutes := minutesBetween(r.departedAt, r.arrivedAt)
	wrenchMinutes := minutesBetween(r.workStartedAt, r.workEndedAt)
	onSiteMinutes := minutesBetween(r.arrivedAt, r.departedJobAt)
	if driveMinutes == nil && wrenchMinutes == nil && onSiteMinutes == nil {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_completions (job_id, company_id, drive_time_minutes, wrench_time_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			drive_time_minutes=COALESCE(job_completions.drive_time_minutes, excluded.drive_time_minutes),
			wrench_time_minutes=COALESCE(job_completions.wrench_time_minutes, excluded.wrench_time_minutes)`,
		jobID, r.companyID, driveMinutes, wrenchMinutes)
	if err != nil {
		return skerr.Wrap(err)
	}
	if onSiteMinutes == nil {
		return nil
	}
	// on_site_minutes is not a JobCompletion column in spec.md §3's
	// denormalized set; the derived value is neither persisted nor returned
	// by any handler.
	return nil
}

func minutesBetween(start, end *time.Time) *int {
	if start == nil || end == nil {
		return nil
	}
	m := int(end.Sub(*start).Seconds() / 60)
	return &m
}

func loadRow(ctx context.Context, tx pgx.Tx, jobID string) (*row, error) {
	r := &row{}
	err := tx.QueryRow(ctx, `
		SELECT company_id, dispatched_at, departed_at, arrived_at, work_started_at, work_ended_at, departed_job_at
		FROM job_time_trackings WHERE job_id=$1`, jobID).
		Scan(&r.companyID, &r.dispatchedAt, &r.departedAt, &r.arrivedAt, &r.workStartedAt, &r.workEndedAt, &r.departedJobAt)
	if err != nil {
		return nil, apperr.NotFound("time-tracking row for job %s not found", jobID)
	}
	return r, nil
}

func (s Stage) String() string {
	switch s {
	case Dispatched:
		return "dispatched"
	case Departed:
		return "departed"
	case Arrived:
		return "arrived"
	case WorkStarted:
		return "work-started"
	case WorkEnded:
		return "work-ended"
	case DepartedJob:
		return "departed-job"
	default:
		return "unknown"
	}
}

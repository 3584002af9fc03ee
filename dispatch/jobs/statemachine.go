// Package jobs implements the Job State Machine (spec.md §4.3): legal
// status transitions plus their required side-effects on the job row, the
// assigned technician's counters, and the JobTimeTracking/JobCompletion
// rows, executed as one transaction via dispatch/tenant. Rewritten in place
// from task_scheduler/go/scheduling/task_scheduler.go's jobFinished/
// updateUnfinishedJobs handling: the teacher advances a Job's state and
// reconciles dependent counters whenever a Task transitions; this package
// generalizes that shape to the five-state unassigned/assigned/
// in_progress/completed/cancelled machine and the append-then-derive audit
// pattern used elsewhere in the teacher for expectations (golden/go/
// expstorage).
package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
)

// legalTransitions enumerates every (from, to) pair the machine accepts.
// Reassignment (assigned -> assigned) is modeled separately in Reassign,
// since it carries a different side-effect set than a status change.
var legalTransitions = map[string]map[string]bool{
	schema.JobUnassigned: {schema.JobAssigned: true, schema.JobCancelled: true},
	schema.JobAssigned:   {schema.JobInProgress: true, schema.JobCancelled: true},
	schema.JobInProgress: {schema.JobCompleted: true, schema.JobCancelled: true},
}

// AssignInput carries the data the unassigned->assigned transition needs
// beyond the job id.
type AssignInput struct {
	JobID      string
	EmployeeID string
	Score      float64
	AssignedBy string
}

// Assign performs the unassigned->assigned transition: sets
// assigned_tech_id, increments the tech's current_jobs_count, and creates
// the job's JobTimeTracking row with dispatched_at=now (spec.md §4.3).
func Assign(ctx context.Context, tx pgx.Tx, in AssignInput) error {
	status, companyID, err := loadJobStatus(ctx, tx, in.JobID)
	if err != nil {
		return err
	}
	if err := requireTransition(status, schema.JobAssigned); err != nil {
		return err
	}
	nowTime := now.Now(ctx)
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status=$1, assigned_tech_id=$2, updated_at=$3
		WHERE job_id=$4`, schema.JobAssigned, in.EmployeeID, nowTime, in.JobID); err != nil {
		return skerr.Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE employees SET current_jobs_count = current_jobs_count + 1, current_job_id=$1
		WHERE employee_id=$2`, in.JobID, in.EmployeeID); err != nil {
		return skerr.Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO job_time_trackings (job_id, company_id, dispatched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET dispatched_at=excluded.dispatched_at`,
		in.JobID, companyID, nowTime); err != nil {
		return skerr.Wrap(err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_assignment_logs (company_id, job_id, employee_id, score, assigned_by)
		VALUES ($1, $2, $3, $4, $5)`, companyID, in.JobID, in.EmployeeID, in.Score, in.AssignedBy)
	return skerr.Wrap(err)
}

// Start performs the assigned->in_progress transition: sets started_at.
func Start(ctx context.Context, tx pgx.Tx, jobID string) error {
	status, _, err := loadJobStatus(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := requireTransition(status, schema.JobInProgress); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs SET status=$1, started_at=$2, updated_at=$2 WHERE job_id=$3`,
		schema.JobInProgress, now.Now(ctx), jobID)
	return skerr.Wrap(err)
}

// CompleteInput carries the optional explicit duration override for the
// in_progress->completed transition.
type CompleteInput struct {
	JobID                    string
	ActualDurationMinutesOverride *int
	FirstTimeFix             *bool
	CallbackRequired         *bool
	CustomerRating           *int
	Notes                    string
}

// Complete performs the in_progress->completed transition: sets
// completed_at, releases the tech, derives actual/variance duration, and
// upserts the JobCompletion row (spec.md §4.3).
func Complete(ctx context.Context, tx pgx.Tx, in CompleteInput) error {
	status, companyID, err := loadJobStatus(ctx, tx, in.JobID)
	if err != nil {
		return err
	}
	if err := requireTransition(status, schema.JobCompleted); err != nil {
		return err
	}
	var techID *string
	var startedAt *time.Time
	var estimated *int
	if err := tx.QueryRow(ctx, `
		SELECT assigned_tech_id, started_at, estimated_duration_minutes FROM jobs WHERE job_id=$1`,
		in.JobID).Scan(&techID, &startedAt, &estimated); err != nil {
		return skerr.Wrap(err)
	}
	completedAt := now.Now(ctx)
	actual := deriveActualDuration(in.ActualDurationMinutesOverride, startedAt, completedAt)
	variance := deriveVariance(actual, estimated)

	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status=$1, completed_at=$2, actual_duration_minutes=$3,
			duration_variance_minutes=$4, updated_at=$2
		WHERE job_id=$5`, schema.JobCompleted, completedAt, actual, variance, in.JobID); err != nil {
		return skerr.Wrap(err)
	}
	if techID != nil {
		if err := releaseTech(ctx, tx, *techID, completedAt); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_completions (job_id, company_id, duration_minutes, first_time_fix, callback_required, customer_rating, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			duration_minutes=COALESCE(job_completions.duration_minutes, excluded.duration_minutes),
			first_time_fix=COALESCE(excluded.first_time_fix, job_completions.first_time_fix),
			callback_required=COALESCE(excluded.callback_required, job_completions.callback_required),
			customer_rating=COALESCE(excluded.customer_rating, job_completions.customer_rating),
			completed_at=COALESCE(job_completions.completed_at, excluded.completed_at)`,
		in.JobID, companyID, actual, in.FirstTimeFix, in.CallbackRequired, in.CustomerRating, completedAt)
	return skerr.Wrap(err)
}

// Cancel performs the any->cancelled transition. If the job was assigned
// or in progress, the tech is released as in Complete, but no
// JobCompletion row is written (spec.md §4.3).
func Cancel(ctx context.Context, tx pgx.Tx, jobID string) error {
	status, _, err := loadJobStatus(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if status == schema.JobCompleted || status == schema.JobCancelled {
		return apperr.Conflict("job %s is already terminal", jobID)
	}
	var techID *string
	if err := tx.QueryRow(ctx, `SELECT assigned_tech_id FROM jobs WHERE job_id=$1`, jobID).Scan(&techID); err != nil {
		return skerr.Wrap(err)
	}
	nowTime := now.Now(ctx)
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status=$1, updated_at=$2 WHERE job_id=$3`, schema.JobCancelled, nowTime, jobID); err != nil {
		return skerr.Wrap(err)
	}
	if techID != nil {
		return releaseTech(ctx, tx, *techID, nowTime)
	}
	return nil
}

// ReassignInput carries the data needed to move an assigned job to a
// different technician.
type ReassignInput struct {
	JobID         string
	NewEmployeeID string
	Reason        string
	ManualOverride bool
}

// Reassign performs the assigned->assigned transition (spec.md §4.3):
// decrements the previous tech's counter, increments the new tech's, and
// appends a JobReassignmentHistory entry.
func Reassign(ctx context.Context, tx pgx.Tx, in ReassignInput) error {
	status, companyID, err := loadJobStatus(ctx, tx, in.JobID)
	if err != nil {
		return err
	}
	if status != schema.JobAssigned && status != schema.JobInProgress {
		return apperr.Conflict("job %s is not assigned", in.JobID)
	}
	var prevTechID *string
	if err := tx.QueryRow(ctx, `SELECT assigned_tech_id FROM jobs WHERE job_id=$1`, in.JobID).Scan(&prevTechID); err != nil {
		return skerr.Wrap(err)
	}
	nowTime := now.Now(ctx)
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET assigned_tech_id=$1, updated_at=$2 WHERE job_id=$3`,
		in.NewEmployeeID, nowTime, in.JobID); err != nil {
		return skerr.Wrap(err)
	}
	if prevTechID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE employees SET current_jobs_count = GREATEST(0, current_jobs_count - 1),
				current_job_id = NULL
			WHERE employee_id=$1`, *prevTechID); err != nil {
			return skerr.Wrap(err)
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE employees SET current_jobs_count = current_jobs_count + 1, current_job_id=$1
		WHERE employee_id=$2`, in.JobID, in.NewEmployeeID); err != nil {
		return skerr.Wrap(err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_reassignment_events (company_id, job_id, from_employee_id, to_employee_id, reason, is_manual_override)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		companyID, in.JobID, prevTechID, in.NewEmployeeID, in.Reason, in.ManualOverride)
	return skerr.Wrap(err)
}

func releaseTech(ctx context.Context, tx pgx.Tx, employeeID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE employees SET
			current_jobs_count = GREATEST(0, current_jobs_count - 1),
			current_job_id = NULL,
			last_job_completed_at = $1
		WHERE employee_id=$2`, at, employeeID)
	return skerr.Wrap(err)
}

func loadJobStatus(ctx context.Context, tx pgx.Tx, jobID string) (status, companyID string, err error) {
	err = tx.QueryRow(ctx, `SELECT status, company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&status, &companyID)
	if err != nil {
		return "", "", apperr.NotFound("job %s not found", jobID)
	}
	return status, companyID, nil
}

func requireTransition(from, to string) error {
	if legalTransitions[from][to] {
		return nil
	}
	return apperr.Conflict("illegal transition %s -> %s", from, to)
}

func deriveActualDuration(override *int, startedAt *time.Time, completedAt time.Time) *int {
	if override != nil {
		return override
	}
	if startedAt == nil {
		return nil
	}
	minutes := int(completedAt.Sub(*startedAt).Minutes())
	return &minutes
}

func deriveVariance(actual, estimated *int) *int {
	if actual == nil || estimated == nil {
		return nil
	}
	v := *actual - *estimated
	return &v
}

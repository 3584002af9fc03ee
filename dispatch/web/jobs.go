package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4"

	"go.fieldcore.build/dispatch/afterhours"
	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/batchdispatch"
	"go.fieldcore.build/dispatch/escalation"
	"go.fieldcore.build/dispatch/jobs"
	"go.fieldcore.build/dispatch/routing"
	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/dispatch/tenant"
	"go.fieldcore.build/dispatch/timetracking"
	"go.fieldcore.build/dispatch/workers"
	"go.fieldcore.build/go/httputils"
	"go.fieldcore.build/go/sklog"
)

// checkTenant wraps tenant.CheckRow for handlers that load a row before
// deciding whether to expose it to u.
func checkTenant(u auth.AuthUser, rowCompanyID string) error {
	return tenant.CheckRow(u, rowCompanyID)
}

type createJobRequest struct {
	CompanyID                string   `json:"companyId,omitempty"`
	CustomerID               string   `json:"customerId"`
	Address                  string   `json:"address"`
	JobType                  string   `json:"jobType"`
	Priority                 string   `json:"priority"`
	Description              string   `json:"description"`
	RequiredSkills           []string `json:"requiredSkills"`
	EstimatedDurationMinutes *int     `json:"estimatedDurationMinutes,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	var req createJobRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	companyID, err := tenant.EffectiveCompanyID(u, req.CompanyID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if req.Address == "" || req.JobType == "" {
		handleError(w, r, apperr.Validation("address and jobType are required"))
		return
	}
	if req.Priority == "" {
		req.Priority = schema.PriorityMedium
	}

	var jobID string
	err = s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.create", "", req,
		func(ctx context.Context, tx pgx.Tx) error {
			if err := tx.QueryRow(ctx, `
				INSERT INTO jobs (company_id, customer_id, address, job_type, priority, description, required_skills, estimated_duration_minutes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING job_id`,
				companyID, req.CustomerID, req.Address, req.JobType, req.Priority, req.Description, req.RequiredSkills, req.EstimatedDurationMinutes).
				Scan(&jobID); err != nil {
				return err
			}
			if err := s.applyAfterHours(ctx, tx, companyID, jobID); err != nil {
				return err
			}
			return escalation.TriggerEscalation(ctx, tx, jobID)
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	httputils.WriteJSON(w, map[string]string{"jobId": jobID}, http.StatusCreated)
}

// applyAfterHours evaluates the After-Hours Router against jobID's
// creation instant and, if the decision says after-hours, stamps the
// snapshotted surcharge onto the job and, for an on_call_pool strategy
// that auto-accepts, immediately assigns it to the first eligible on-call
// tech (spec.md §4.6). A matched manager-notification rule only logs,
// matching afterhours' own non-goal on real notification delivery.
func (s *Server) applyAfterHours(ctx context.Context, tx pgx.Tx, companyID, jobID string) error {
	decision, err := afterhours.Evaluate(ctx, tx, companyID, nil, time.Now())
	if err != nil {
		return err
	}
	if !decision.IsAfterHours {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET is_after_hours=true, surcharge_flat=$1, surcharge_percent=$2
		WHERE job_id=$3`, decision.SurchargeFlat, decision.SurchargePercent, jobID); err != nil {
		return err
	}
	if decision.NotifyManager {
		sklog.Infof("after-hours job %s for company %s: notifying manager at %s", jobID, companyID, decision.ManagerPhone)
	}
	if decision.RoutingStrategy == "on_call_pool" && decision.AutoAccept {
		techID, err := afterhours.PickOnCallTech(ctx, tx, decision.OnCallEmployeeIDs)
		if err != nil {
			return err
		}
		if techID != "" {
			return jobs.Assign(ctx, tx, jobs.AssignInput{JobID: jobID, EmployeeID: techID, Score: 0, AssignedBy: "after-hours-on-call"})
		}
	}
	return nil
}

type jobSummary struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	JobType  string `json:"jobType"`
	Address  string `json:"address"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	companyID, err := tenant.EffectiveCompanyID(u, r.URL.Query().Get("companyId"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	offset, size, err := httputils.PaginationParams(r.URL.Query(), 0, 25, 100)
	if err != nil {
		handleError(w, r, apperr.Validation("%s", err))
		return
	}
	rows, err := s.gateway.Pool().Query(r.Context(), `
		SELECT job_id, status, priority, job_type, address
		FROM jobs WHERE company_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, companyID, size, offset)
	if err != nil {
		handleError(w, r, err)
		return
	}
	defer rows.Close()
	var out []jobSummary
	for rows.Next() {
		var js jobSummary
		if err := rows.Scan(&js.JobID, &js.Status, &js.Priority, &js.JobType, &js.Address); err != nil {
			handleError(w, r, err)
			return
		}
		out = append(out, js)
	}
	httputils.WriteJSON(w, map[string]interface{}{"jobs": out, "offset": offset, "size": size}, http.StatusOK)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var companyID string
	var job schema.Job
	err := s.gateway.Pool().QueryRow(r.Context(), `
		SELECT company_id, job_id, status, priority, job_type, address, description, assigned_tech_id
		FROM jobs WHERE job_id=$1`, jobID).
		Scan(&companyID, &job.JobID, &job.Status, &job.Priority, &job.JobType, &job.Address, &job.Description, &job.AssignedTechID)
	if err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	job.CompanyID = companyID
	httputils.WriteJSON(w, job, http.StatusOK)
}

type patchJobRequest struct {
	Description    *string   `json:"description,omitempty"`
	Priority       *string   `json:"priority,omitempty"`
	RequiredSkills *[]string `json:"requiredSkills,omitempty"`
	Address        *string   `json:"address,omitempty"`
}

func (s *Server) handlePatchJob(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var req patchJobRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	var companyID string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.patch", jobID, req,
		func(ctx context.Context, tx pgx.Tx) error {
			if req.Description != nil {
				if _, err := tx.Exec(ctx, `UPDATE jobs SET description=$1 WHERE job_id=$2`, *req.Description, jobID); err != nil {
					return err
				}
			}
			if req.Priority != nil {
				if _, err := tx.Exec(ctx, `UPDATE jobs SET priority=$1 WHERE job_id=$2`, *req.Priority, jobID); err != nil {
					return err
				}
			}
			if req.RequiredSkills != nil {
				if _, err := tx.Exec(ctx, `UPDATE jobs SET required_skills=$1 WHERE job_id=$2`, *req.RequiredSkills, jobID); err != nil {
					return err
				}
			}
			if req.Address != nil {
				// Coordinates invalidated by the address change and the
				// retry count reset are written in the same statement as
				// the new address (spec.md §4.8): never a window where the
				// job carries a stale lat/lng for its new address.
				if _, err := tx.Exec(ctx, `
					UPDATE jobs SET address=$1, latitude=NULL, longitude=NULL,
						geocoding_status=$2, geocoding_retries=0
					WHERE job_id=$3`, *req.Address, schema.GeocodingPending, jobID); err != nil {
					return err
				}
			}
			if req.Description != nil || req.Priority != nil {
				// A description/priority edit can newly match an
				// escalation policy that didn't apply before (spec.md
				// §4.7); TriggerEscalation is itself a no-op if the job
				// already carries an active escalation.
				return escalation.TriggerEscalation(ctx, tx, jobID)
			}
			return nil
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handlePutJobStatus(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var req putStatusRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	var companyID string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.status."+req.Status, jobID, nil,
		func(ctx context.Context, tx pgx.Tx) error {
			switch req.Status {
			case schema.JobInProgress:
				return jobs.Start(ctx, tx, jobID)
			case schema.JobCancelled:
				if err := jobs.Cancel(ctx, tx, jobID); err != nil {
					return err
				}
				return escalation.ResolveActiveForJob(ctx, tx, jobID, u.UserID, nil)
			default:
				return apperr.Validation("status %q cannot be set directly", req.Status)
			}
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closeJobRequest struct {
	ActualDurationMinutesOverride *int   `json:"actualDurationMinutesOverride,omitempty"`
	FirstTimeFix                  *bool  `json:"firstTimeFix,omitempty"`
	CallbackRequired               *bool  `json:"callbackRequired,omitempty"`
	CustomerRating                 *int   `json:"customerRating,omitempty"`
	Notes                          string `json:"notes"`
}

func (s *Server) handleCloseJob(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var req closeJobRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	var companyID string
	var customerID *string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id, customer_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID, &customerID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.close", jobID, req,
		func(ctx context.Context, tx pgx.Tx) error {
			if err := jobs.Complete(ctx, tx, jobs.CompleteInput{
				JobID:                         jobID,
				ActualDurationMinutesOverride: req.ActualDurationMinutesOverride,
				FirstTimeFix:                  req.FirstTimeFix,
				CallbackRequired:              req.CallbackRequired,
				CustomerRating:                req.CustomerRating,
				Notes:                         req.Notes,
			}); err != nil {
				return err
			}
			if err := escalation.ResolveActiveForJob(ctx, tx, jobID, u.UserID, nil); err != nil {
				return err
			}
			if customerID == nil {
				return nil
			}
			return workers.ScheduleReviewRequest(ctx, tx, companyID, jobID, *customerID)
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dispatchOverrideRequest struct {
	EmployeeID string `json:"employeeId"`
}

func (s *Server) handleDispatchOverride(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var req dispatchOverrideRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	var companyID string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.dispatch_override", jobID, req,
		func(ctx context.Context, tx pgx.Tx) error {
			return jobs.Assign(ctx, tx, jobs.AssignInput{JobID: jobID, EmployeeID: req.EmployeeID, Score: 0, AssignedBy: "manual-override:" + u.UserID})
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reassignRequest struct {
	NewEmployeeID  string `json:"newEmployeeId"`
	Reason         string `json:"reason"`
	ManualOverride bool   `json:"manualOverride"`
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	jobID := chi.URLParam(r, "jobID")
	var req reassignRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	var companyID string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", jobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.reassign", jobID, req,
		func(ctx context.Context, tx pgx.Tx) error {
			return jobs.Reassign(ctx, tx, jobs.ReassignInput{JobID: jobID, NewEmployeeID: req.NewEmployeeID, Reason: req.Reason, ManualOverride: req.ManualOverride})
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchDispatchRequest struct {
	CompanyID string   `json:"companyId,omitempty"`
	JobIDs    []string `json:"jobIds"`
}

// handleBatchDispatch loads the requested jobs and the company's
// technicians, runs the dispatcher, and persists the accepted pairs via
// dispatch/jobs.Assign in one transaction - batchdispatch.Run itself never
// touches the database (spec.md §4.5).
func (s *Server) handleBatchDispatch(w http.ResponseWriter, r *http.Request) {
	u, _ := authUserFrom(r)
	var req batchDispatchRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	companyID, err := tenant.EffectiveCompanyID(u, req.CompanyID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ctx := r.Context()
	pool := s.gateway.Pool()

	jobRows, err := pool.Query(ctx, `
		SELECT job_id, priority, latitude, longitude, required_skills
		FROM jobs WHERE company_id=$1 AND status=$2 AND job_id = ANY($3)`,
		companyID, schema.JobUnassigned, req.JobIDs)
	if err != nil {
		handleError(w, r, err)
		return
	}
	found := map[string]bool{}
	var batchJobs []batchdispatch.JobInput
	for jobRows.Next() {
		var ji batchdispatch.JobInput
		var lat, lng *float64
		if err := jobRows.Scan(&ji.JobID, &ji.Priority, &lat, &lng, &ji.RequiredSkills); err != nil {
			jobRows.Close()
			handleError(w, r, err)
			return
		}
		if lat != nil && lng != nil {
			ji.Location = &routing.LatLng{Lat: *lat, Lng: *lng}
		}
		found[ji.JobID] = true
		batchJobs = append(batchJobs, ji)
	}
	jobRows.Close()
	var notFound []string
	for _, id := range req.JobIDs {
		if !found[id] {
			notFound = append(notFound, id)
		}
	}

	// Eligibility pre-filter (spec.md §4.2): active, available, and under
	// max_concurrent_jobs are enforced in this WHERE clause; location
	// staleness is enforced below once location_updated_at is in hand,
	// since comparing it requires the current time rather than SQL.
	now := time.Now()
	techRows, err := pool.Query(ctx, `
		SELECT employee_id, skills, is_available, rating, current_jobs_count, max_concurrent_jobs, current_lat, current_lng, location_updated_at
		FROM employees
		WHERE company_id=$1 AND is_active=true AND is_available=true
		  AND current_jobs_count < COALESCE(NULLIF(max_concurrent_jobs, 0), $2)`,
		companyID, batchdispatch.DefaultCapacity)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var techs []batchdispatch.TechInput
	for techRows.Next() {
		var ti batchdispatch.TechInput
		var skills []string
		var lat, lng *float64
		var maxConcurrent int
		if err := techRows.Scan(&ti.EmployeeID, &skills, &ti.IsAvailable, &ti.Rating, &ti.CurrentJobsCount, &maxConcurrent, &lat, &lng, &ti.LocationUpdatedAt); err != nil {
			techRows.Close()
			handleError(w, r, err)
			return
		}
		ti.Skills = map[string]bool{}
		for _, sk := range skills {
			ti.Skills[sk] = true
		}
		if lat != nil && lng != nil {
			ti.Location = &routing.LatLng{Lat: *lat, Lng: *lng}
		}
		if maxConcurrent <= 0 {
			maxConcurrent = batchdispatch.DefaultCapacity
		}
		ti.RemainingCapacity = maxConcurrent - ti.CurrentJobsCount
		if !ti.LocationFresh(now) {
			continue
		}
		techs = append(techs, ti)
	}
	techRows.Close()

	result := batchdispatch.Run(ctx, s.scorer, now, batchJobs, techs, notFound)

	err = s.gateway.RunTxn(ctx, u.UserID, companyID, "job.batch_dispatch", "", result,
		func(ctx context.Context, tx pgx.Tx) error {
			for _, a := range result.Assignments {
				if err := jobs.Assign(ctx, tx, jobs.AssignInput{JobID: a.JobID, EmployeeID: a.EmployeeID, Score: a.Score, AssignedBy: "batch-dispatch"}); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		handleError(w, r, err)
		return
	}
	httputils.WriteJSON(w, result, http.StatusOK)
}

var timeTrackingStages = map[string]timetracking.Stage{
	"dispatched":   timetracking.Dispatched,
	"departed":     timetracking.Departed,
	"arrived":      timetracking.Arrived,
	"work-started": timetracking.WorkStarted,
	"work-ended":   timetracking.WorkEnded,
	"departed-job": timetracking.DepartedJob,
}

func (s *Server) handleTimeTracking(stageName string) http.HandlerFunc {
	stage := timeTrackingStages[stageName]
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := authUserFrom(r)
		jobID := chi.URLParam(r, "jobID")
		var companyID string
		if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, jobID).Scan(&companyID); err != nil {
			handleError(w, r, apperr.NotFound("job %s not found", jobID))
			return
		}
		if err := checkTenant(u, companyID); err != nil {
			handleError(w, r, err)
			return
		}
		err := s.gateway.RunTxn(r.Context(), u.UserID, companyID, "job.time_tracking."+stageName, jobID, nil,
			func(ctx context.Context, tx pgx.Tx) error {
				return timetracking.Patch(ctx, tx, jobID, stage)
			})
		if err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

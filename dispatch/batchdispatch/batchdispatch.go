// Package batchdispatch implements the Batch Dispatcher (spec.md §4.5):
// assigns a set of unassigned jobs to technicians under global priority
// ordering and per-tech capacity constraints, without persisting the
// assignments itself (callers wrap the result in dispatch/jobs.Assign calls
// inside one transaction). Rewritten in place from
// task_scheduler/go/scheduling/task_scheduler.go's getCandidatesToSchedule:
// the teacher maintains a mutable per-bot remaining-capacity map while
// walking a priority-sorted candidate list and greedily assigns the best
// fit; this package keeps that shape and swaps bots/tasks for
// techs/jobs and the teacher's time-decay/testedness scoring for the Scorer.
package batchdispatch

import (
	"context"
	"time"

	"go.fieldcore.build/dispatch/scoring"
)

// priorityOrder ranks job priorities for sorting: lower index dispatches
// earlier (spec.md §4.5 step 4: "emergency < high < medium < low").
var priorityOrder = map[string]int{
	"emergency": 0,
	"high":      1,
	"medium":    2,
	"low":       3,
}

// JobInput is the subset of a Job's fields the dispatcher needs to sort
// and score it.
type JobInput struct {
	JobID    string
	Priority string
	scoring.Job
}

// TechInput is the subset of an Employee's fields the dispatcher needs,
// plus its remaining capacity this run.
type TechInput struct {
	scoring.Tech
	RemainingCapacity int
}

// Assignment is one accepted job-to-tech pairing.
type Assignment struct {
	JobID            string
	EmployeeID       string
	Score            float64
	DriveTimeMinutes float64
}

// Unassigned records why a job in the input set was not assigned.
type Unassigned struct {
	JobID  string
	Reason string
}

// Stats summarizes one batchDispatch call.
type Stats struct {
	TotalJobs  int
	Assigned   int
	Unassigned int
	DurationMs int64
}

// Result is the output of one Run call.
type Result struct {
	Assignments []Assignment
	Unassigned  []Unassigned
	Stats       Stats
}

// Run implements spec.md §4.5's algorithm given jobs already loaded and
// filtered to "unassigned, owned by companyId, id in the input set" (not
// found/already-assigned jobs should already be folded into notFoundIDs by
// the caller) and techs already loaded for the company. now anchors the
// location-staleness half of the eligibility pre-filter (spec.md §4.2); the
// rest of that pre-filter (active, available, under max_concurrent_jobs) is
// the caller's responsibility when it builds techs.
func Run(ctx context.Context, scorer *scoring.Scorer, now time.Time, jobs []JobInput, techs []TechInput, notFoundIDs []string) Result {
	start := time.Now()
	res := Result{Stats: Stats{TotalJobs: len(jobs) + len(notFoundIDs)}}
	for _, id := range notFoundIDs {
		res.Unassigned = append(res.Unassigned, Unassigned{JobID: id, Reason: "not found or already assigned"})
	}
	if len(techs) == 0 {
		for _, j := range jobs {
			res.Unassigned = append(res.Unassigned, Unassigned{JobID: j.JobID, Reason: "no available technicians"})
		}
		res.Stats.Unassigned = len(res.Unassigned)
		res.Stats.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	sorted := append([]JobInput(nil), jobs...)
	stableSortByPriority(sorted)

	capacity := make(map[string]int, len(techs))
	byID := make(map[string]TechInput, len(techs))
	for _, t := range techs {
		capacity[t.EmployeeID] = t.RemainingCapacity
		byID[t.EmployeeID] = t
	}

	for _, job := range sorted {
		pool := poolWithCapacity(byID, capacity, now)
		if len(pool) == 0 {
			res.Unassigned = append(res.Unassigned, Unassigned{JobID: job.JobID, Reason: "no technicians with capacity"})
			continue
		}
		candidates := scorer.Score(ctx, job.Job, pool, job.Priority == "emergency")
		if len(candidates) == 0 || candidates[0].TotalScore < scoring.MinAcceptableScore() {
			res.Unassigned = append(res.Unassigned, Unassigned{JobID: job.JobID, Reason: "no suitable technician found"})
			continue
		}
		top := candidates[0]
		capacity[top.EmployeeID]--
		res.Assignments = append(res.Assignments, Assignment{
			JobID:            job.JobID,
			EmployeeID:       top.EmployeeID,
			Score:            top.TotalScore,
			DriveTimeMinutes: top.DriveMinutes,
		})
	}

	res.Stats.Assigned = len(res.Assignments)
	res.Stats.Unassigned = len(res.Unassigned)
	res.Stats.DurationMs = time.Since(start).Milliseconds()
	return res
}

// poolWithCapacity applies the per-job half of the eligibility pre-filter
// (remaining capacity and a located, available, fresh-location tech;
// spec.md §4.2/§4.5 step 5) before any tech reaches Scorer.Score.
func poolWithCapacity(byID map[string]TechInput, capacity map[string]int, now time.Time) []scoring.Tech {
	var pool []scoring.Tech
	for id, t := range byID {
		if capacity[id] <= 0 || t.Location == nil || !t.IsAvailable || !t.LocationFresh(now) {
			continue
		}
		pool = append(pool, t.Tech)
	}
	return pool
}

// stableSortByPriority sorts jobs by priority order in place, preserving
// input order among equal priorities.
func stableSortByPriority(jobs []JobInput) {
	// Insertion sort: the input batch sizes here are small (one dispatch
	// run's job set), and stability matters more than asymptotic cost.
	for i := 1; i < len(jobs); i++ {
		j := i
		for j > 0 && priorityOrder[jobs[j-1].Priority] > priorityOrder[jobs[j].Priority] {
			jobs[j-1], jobs[j] = jobs[j], jobs[j-1]
			j--
		}
	}
}

// DefaultCapacity is used when an Employee's max_concurrent_jobs is unset
// (spec.md §4.5 step 3).
const DefaultCapacity = 10

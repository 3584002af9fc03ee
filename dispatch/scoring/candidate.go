// Package scoring implements the Scorer (spec.md §4.2): given a job and a
// pool of eligible technicians, produce a descending-ranked list of
// Candidates, each carrying its score breakdown and measured drive time.
// Rewritten in place from task_scheduler/go/scheduling/task_candidate.go;
// the teacher's Candidate struct (score plus supporting measurements) and
// its weighted, clamped-arithmetic scoring helpers are kept in spirit and
// regrounded on this domain's five weighted signals instead of Swarming
// bot/task matching.
package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"go.fieldcore.build/dispatch/routing"
)

const (
	normalDriveCutoffMinutes    = 45.0
	emergencyDriveCutoffMinutes = 20.0

	weightDriveNormal    = 40.0
	weightDriveEmergency = 60.0
	weightAvailability   = 20.0
	weightSkill          = 20.0
	weightRating         = 10.0
	weightWorkload       = 10.0

	// minAcceptableScore is the Batch Dispatcher's threshold (spec.md
	// §4.5 step 5); kept here because it is defined in terms of this
	// package's score scale, not the dispatcher's.
	minAcceptableScore = 20.0

	defaultRating       = 3.0
	maxLocationStaleness = 10 // minutes
)

// Tech is the subset of an Employee's fields the Scorer needs. Callers
// (dispatch/batchdispatch, dispatch/web) build this from schema.Employee
// rows after applying the eligibility pre-filter.
type Tech struct {
	EmployeeID        string
	Skills            map[string]bool
	IsAvailable       bool
	Rating            *float64
	CurrentJobsCount  int
	Location          *routing.LatLng
	LocationUpdatedAt *time.Time
}

// MaxLocationStaleness is how old a tech's current_location may be before
// the eligibility pre-filter drops it (spec.md §4.2).
func MaxLocationStaleness() time.Duration {
	return maxLocationStaleness * time.Minute
}

// LocationFresh reports whether t's location timestamp is within
// MaxLocationStaleness of now. A nil timestamp (unknown freshness) is
// treated as stale.
func (t Tech) LocationFresh(now time.Time) bool {
	if t.LocationUpdatedAt == nil {
		return false
	}
	return now.Sub(*t.LocationUpdatedAt) <= MaxLocationStaleness()
}

// Job is the subset of a Job's fields the Scorer needs.
type Job struct {
	Location       *routing.LatLng
	RequiredSkills []string
}

// Candidate is one scored technician, ranked within a Scorer.Score call.
type Candidate struct {
	EmployeeID        string
	TotalScore        float64
	DriveScore        float64
	AvailabilityScore float64
	SkillScore        float64
	RatingScore       float64
	WorkloadScore     float64
	DriveMinutes      float64
}

// Scorer ranks eligible technicians for a job by calling the Routing
// Client in batch for drive times.
type Scorer struct {
	routingClient routing.Client
}

// NewScorer builds a Scorer backed by the given Routing Client.
func NewScorer(routingClient routing.Client) *Scorer {
	return &Scorer{routingClient: routingClient}
}

// Score ranks eligibleTechs for job, descending by total score. Returns an
// empty list if job has no coordinates (spec.md §4.2 edge case). Techs
// without coordinates are excluded before scoring.
func (s *Scorer) Score(ctx context.Context, job Job, eligibleTechs []Tech, isEmergency bool) []Candidate {
	if job.Location == nil {
		return nil
	}
	located := make([]Tech, 0, len(eligibleTechs))
	locations := make([]routing.LatLng, 0, len(eligibleTechs))
	for _, t := range eligibleTechs {
		if t.Location == nil {
			continue
		}
		located = append(located, t)
		locations = append(locations, *t.Location)
	}
	if len(located) == 0 {
		return nil
	}
	routes := s.routingClient.DriveTimeMatrix(ctx, *job.Location, locations)

	driveWeight := weightDriveNormal
	cutoff := normalDriveCutoffMinutes
	if isEmergency {
		driveWeight = weightDriveEmergency
		cutoff = emergencyDriveCutoffMinutes
	}

	candidates := make([]Candidate, 0, len(located))
	for i, t := range located {
		driveMinutes := safeFloat(routes[i].DurationSeconds / 60.0)
		c := Candidate{
			EmployeeID:        t.EmployeeID,
			DriveMinutes:      driveMinutes,
			DriveScore:        driveProximityScore(driveMinutes, cutoff, driveWeight),
			AvailabilityScore: availabilityScore(t.IsAvailable),
			SkillScore:        skillCoverageScore(job.RequiredSkills, t.Skills),
			RatingScore:       ratingScore(t.Rating),
			WorkloadScore:     workloadScore(t.CurrentJobsCount),
		}
		c.TotalScore = c.DriveScore + c.AvailabilityScore + c.SkillScore + c.RatingScore + c.WorkloadScore
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		di, dj := driveMinutesOf(located, routes, a.EmployeeID), driveMinutesOf(located, routes, b.EmployeeID)
		if di != dj {
			return di < dj
		}
		ri, rj := ratingOf(located, a.EmployeeID), ratingOf(located, b.EmployeeID)
		if ri != rj {
			return ri > rj
		}
		return workloadOf(located, a.EmployeeID) < workloadOf(located, b.EmployeeID)
	})
	return candidates
}

// MinAcceptableScore is the Batch Dispatcher's minimum top-candidate
// threshold (spec.md §4.5 step 5).
func MinAcceptableScore() float64 { return minAcceptableScore }

func driveProximityScore(driveMinutes, cutoff, weight float64) float64 {
	ratio := driveMinutes / cutoff
	if ratio > 1 {
		ratio = 1
	}
	return safeFloat((1 - ratio) * weight)
}

func availabilityScore(isAvailable bool) float64 {
	if isAvailable {
		return weightAvailability
	}
	return 0
}

func skillCoverageScore(required []string, has map[string]bool) float64 {
	if len(required) == 0 {
		return weightSkill
	}
	matched := 0
	for _, sk := range required {
		if has[sk] {
			matched++
		}
	}
	return safeFloat(float64(matched) / float64(len(required)) * weightSkill)
}

func ratingScore(rating *float64) float64 {
	r := defaultRating
	if rating != nil {
		r = *rating
	}
	return safeFloat((r / 5.0) * weightRating)
}

func workloadScore(currentJobsCount int) float64 {
	v := weightWorkload - float64(currentJobsCount)*2
	if v < 0 {
		v = 0
	}
	return v
}

// safeFloat coerces NaN/Inf to zero (spec.md §4.2: "Non-finite arithmetic →
// treated as zero").
func safeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func driveMinutesOf(techs []Tech, routes []routing.RouteInfo, employeeID string) float64 {
	for i, t := range techs {
		if t.EmployeeID == employeeID {
			return safeFloat(routes[i].DurationSeconds / 60.0)
		}
	}
	return math.MaxFloat64
}

func ratingOf(techs []Tech, employeeID string) float64 {
	for _, t := range techs {
		if t.EmployeeID == employeeID {
			if t.Rating != nil {
				return *t.Rating
			}
			return defaultRating
		}
	}
	return 0
}

func workloadOf(techs []Tech, employeeID string) int {
	for _, t := range techs {
		if t.EmployeeID == employeeID {
			return t.CurrentJobsCount
		}
	}
	return math.MaxInt32
}

package batchdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.fieldcore.build/dispatch/routing"
	"go.fieldcore.build/dispatch/scoring"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func freshLocation() *time.Time {
	t := fixedNow.Add(-1 * time.Minute)
	return &t
}

type fakeRoutingClient struct{}

func (fakeRoutingClient) DriveTime(ctx context.Context, from, to routing.LatLng) routing.RouteInfo {
	return routing.RouteInfo{}
}

func (fakeRoutingClient) DriveTimeMatrix(ctx context.Context, origin routing.LatLng, destinations []routing.LatLng) []routing.RouteInfo {
	out := make([]routing.RouteInfo, len(destinations))
	for i := range destinations {
		out[i] = routing.RouteInfo{DurationSeconds: 300}
	}
	return out
}

func loc() *routing.LatLng { return &routing.LatLng{Lat: 1, Lng: 1} }

func TestRun_NoTechs_AllUnassigned(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}}}
	res := Run(context.Background(), scorer, fixedNow, jobs, nil, nil)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no available technicians", res.Unassigned[0].Reason)
	assert.Empty(t, res.Assignments)
}

func TestRun_NotFoundIDsRecordedAsUnassigned(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	res := Run(context.Background(), scorer, fixedNow, nil, nil, []string{"missing1", "missing2"})
	require.Len(t, res.Unassigned, 2)
	assert.Equal(t, 2, res.Stats.TotalJobs)
}

func TestRun_PriorityOrderDeterminesAssignmentOrder(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{
		{JobID: "low-job", Priority: "low", Job: scoring.Job{Location: loc()}},
		{JobID: "emergency-job", Priority: "emergency", Job: scoring.Job{Location: loc()}},
	}
	// Exactly one tech with capacity 1: only the higher-priority job
	// (emergency, sorted first regardless of input order) should win it.
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: loc(), LocationUpdatedAt: freshLocation()}, RemainingCapacity: 1},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "emergency-job", res.Assignments[0].JobID)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "low-job", res.Unassigned[0].JobID)
}

func TestRun_RespectsPerTechCapacity(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{
		{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}},
		{JobID: "j2", Priority: "medium", Job: scoring.Job{Location: loc()}},
		{JobID: "j3", Priority: "medium", Job: scoring.Job{Location: loc()}},
	}
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: loc(), LocationUpdatedAt: freshLocation()}, RemainingCapacity: 2},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	assert.Len(t, res.Assignments, 2)
	assert.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no technicians with capacity", res.Unassigned[0].Reason)
}

func TestRun_ExcludesTechsWithoutLocation(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}}}
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: nil}, RemainingCapacity: 5},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no technicians with capacity", res.Unassigned[0].Reason)
}

func TestRun_BelowMinAcceptableScore_Unassigned(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc(), RequiredSkills: []string{"hvac-certified"}}}}
	// Available tech with no matching skill and a heavy workload scores far
	// below the acceptance threshold.
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: loc(), LocationUpdatedAt: freshLocation(), CurrentJobsCount: 50}, RemainingCapacity: 1},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no suitable technician found", res.Unassigned[0].Reason)
}

func TestRun_UnavailableTech_ExcludedBeforeScoring(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}}}
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: false, Location: loc(), LocationUpdatedAt: freshLocation()}, RemainingCapacity: 1},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no technicians with capacity", res.Unassigned[0].Reason)
	assert.Empty(t, res.Assignments)
}

func TestRun_StaleLocation_ExcludedBeforeScoring(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}}}
	stale := fixedNow.Add(-1 * time.Hour)
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: loc(), LocationUpdatedAt: &stale}, RemainingCapacity: 1},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, nil)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "no technicians with capacity", res.Unassigned[0].Reason)
}

func TestRun_StatsReflectAssignedAndUnassignedCounts(t *testing.T) {
	scorer := scoring.NewScorer(fakeRoutingClient{})
	jobs := []JobInput{
		{JobID: "j1", Priority: "medium", Job: scoring.Job{Location: loc()}},
	}
	techs := []TechInput{
		{Tech: scoring.Tech{EmployeeID: "t1", IsAvailable: true, Location: loc(), LocationUpdatedAt: freshLocation()}, RemainingCapacity: 1},
	}
	res := Run(context.Background(), scorer, fixedNow, jobs, techs, []string{"missing"})
	assert.Equal(t, 2, res.Stats.TotalJobs)
	assert.Equal(t, 1, res.Stats.Assigned)
	assert.Equal(t, 1, res.Stats.Unassigned)
}

package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.fieldcore.build/dispatch/routing"
)

// fakeRoutingClient returns a fixed drive time (minutes, as seconds) per
// destination index, in the order DriveTimeMatrix's destinations were
// given.
type fakeRoutingClient struct {
	matrixSeconds []float64
}

func (f *fakeRoutingClient) DriveTime(ctx context.Context, from, to routing.LatLng) routing.RouteInfo {
	panic("not used by Scorer")
}

func (f *fakeRoutingClient) DriveTimeMatrix(ctx context.Context, origin routing.LatLng, destinations []routing.LatLng) []routing.RouteInfo {
	out := make([]routing.RouteInfo, len(destinations))
	for i := range destinations {
		out[i] = routing.RouteInfo{DurationSeconds: f.matrixSeconds[i]}
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestScore_NoJobLocation_ReturnsEmpty(t *testing.T) {
	s := NewScorer(&fakeRoutingClient{})
	got := s.Score(context.Background(), Job{Location: nil}, []Tech{{EmployeeID: "t1"}}, false)
	assert.Nil(t, got)
}

func TestScore_NoLocatedTechs_ReturnsEmpty(t *testing.T) {
	s := NewScorer(&fakeRoutingClient{})
	job := Job{Location: &routing.LatLng{Lat: 1, Lng: 1}}
	got := s.Score(context.Background(), job, []Tech{{EmployeeID: "t1", Location: nil}}, false)
	assert.Nil(t, got)
}

func TestScore_ExcludesUnlocatedTechs(t *testing.T) {
	loc := &routing.LatLng{Lat: 1, Lng: 1}
	fc := &fakeRoutingClient{matrixSeconds: []float64{600}}
	s := NewScorer(fc)
	job := Job{Location: loc}
	techs := []Tech{
		{EmployeeID: "located", Location: loc, IsAvailable: true},
		{EmployeeID: "unlocated", Location: nil, IsAvailable: true},
	}
	got := s.Score(context.Background(), job, techs, false)
	require.Len(t, got, 1)
	assert.Equal(t, "located", got[0].EmployeeID)
}

func TestScore_RanksByTotalScoreDescending(t *testing.T) {
	loc := &routing.LatLng{Lat: 1, Lng: 1}
	// tech index 0: far away, low rating, busy. tech index 1: close, high
	// rating, idle. Destinations are passed in Score's tech order.
	fc := &fakeRoutingClient{matrixSeconds: []float64{40 * 60, 2 * 60}}
	s := NewScorer(fc)
	job := Job{Location: loc, RequiredSkills: []string{"refrigerant"}}
	techs := []Tech{
		{EmployeeID: "far", Location: loc, IsAvailable: true, Skills: map[string]bool{"refrigerant": true}, Rating: ptr(3.0), CurrentJobsCount: 4},
		{EmployeeID: "near", Location: loc, IsAvailable: true, Skills: map[string]bool{"refrigerant": true}, Rating: ptr(5.0), CurrentJobsCount: 0},
	}
	got := s.Score(context.Background(), job, techs, false)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].EmployeeID)
	assert.Equal(t, "far", got[1].EmployeeID)
	assert.Greater(t, got[0].TotalScore, got[1].TotalScore)
}

func TestScore_EmergencyUsesTighterCutoffAndHigherDriveWeight(t *testing.T) {
	loc := &routing.LatLng{Lat: 1, Lng: 1}
	// 30 minutes is within the normal cutoff (45) but beyond the
	// emergency cutoff (20), so the emergency drive score should clamp to
	// zero while the normal-mode drive score stays positive.
	fc := &fakeRoutingClient{matrixSeconds: []float64{30 * 60}}
	s := NewScorer(fc)
	job := Job{Location: loc}
	techs := []Tech{{EmployeeID: "t1", Location: loc, IsAvailable: true}}

	normal := s.Score(context.Background(), job, techs, false)
	emergency := s.Score(context.Background(), job, techs, true)

	require.Len(t, normal, 1)
	require.Len(t, emergency, 1)
	assert.Greater(t, normal[0].DriveScore, 0.0)
	assert.Equal(t, 0.0, emergency[0].DriveScore)
}

func TestScore_NoRequiredSkillsGivesFullSkillScore(t *testing.T) {
	loc := &routing.LatLng{Lat: 1, Lng: 1}
	fc := &fakeRoutingClient{matrixSeconds: []float64{0}}
	s := NewScorer(fc)
	job := Job{Location: loc, RequiredSkills: nil}
	techs := []Tech{{EmployeeID: "t1", Location: loc, Skills: map[string]bool{}}}
	got := s.Score(context.Background(), job, techs, false)
	require.Len(t, got, 1)
	assert.Equal(t, weightSkill, got[0].SkillScore)
}

func TestScore_MissingRatingUsesDefault(t *testing.T) {
	loc := &routing.LatLng{Lat: 1, Lng: 1}
	fc := &fakeRoutingClient{matrixSeconds: []float64{0}}
	s := NewScorer(fc)
	job := Job{Location: loc}
	techs := []Tech{{EmployeeID: "t1", Location: loc, Rating: nil}}
	got := s.Score(context.Background(), job, techs, false)
	require.Len(t, got, 1)
	assert.Equal(t, safeFloat((defaultRating/5.0)*weightRating), got[0].RatingScore)
}

func TestWorkloadScore_ClampsAtZero(t *testing.T) {
	assert.Equal(t, 0.0, workloadScore(100))
	assert.Equal(t, weightWorkload, workloadScore(0))
}

func TestMinAcceptableScore(t *testing.T) {
	assert.Equal(t, minAcceptableScore, MinAcceptableScore())
}

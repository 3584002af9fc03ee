package timetracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.fieldcore.build/dispatch/apperr"
)

func tm(minutesFromEpoch int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(minutesFromEpoch) * time.Minute)
}

func TestCheckMonotonic_AllowsFirstWriteAtAnyStage(t *testing.T) {
	r := &row{}
	assert.NoError(t, checkMonotonic(r, WorkStarted, tm(100)))
}

func TestCheckMonotonic_RejectsEarlierStageAfterCandidate(t *testing.T) {
	dispatched := tm(50)
	r := &row{dispatchedAt: &dispatched}
	// Arrived stage comes after Dispatched; writing Arrived earlier than
	// the already-recorded Dispatched time must be rejected.
	err := checkMonotonic(r, Arrived, tm(10))
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
}

func TestCheckMonotonic_RejectsLaterStageBeforeCandidate(t *testing.T) {
	workEnded := tm(100)
	r := &row{workEndedAt: &workEnded}
	// WorkStarted precedes WorkEnded; writing WorkStarted after the
	// already-recorded WorkEnded time must be rejected.
	err := checkMonotonic(r, WorkStarted, tm(150))
	require.Error(t, err)
}

func TestCheckMonotonic_AllowsConsistentOrdering(t *testing.T) {
	dispatched := tm(10)
	arrived := tm(50)
	r := &row{dispatchedAt: &dispatched, arrivedAt: &arrived}
	assert.NoError(t, checkMonotonic(r, Departed, tm(30)))
}

func TestCheckMonotonic_IdempotentRepatchOfSameStage(t *testing.T) {
	arrived := tm(50)
	r := &row{arrivedAt: &arrived}
	// Re-patching Arrived to a later time should not conflict against
	// itself (the existing value at the same index is skipped by the
	// strict i<idx/i>idx comparison).
	assert.NoError(t, checkMonotonic(r, Arrived, tm(51)))
}

func TestMinutesBetween(t *testing.T) {
	start := tm(0)
	end := tm(45)
	got := minutesBetween(&start, &end)
	require.NotNil(t, got)
	assert.Equal(t, 45, *got)
}

func TestMinutesBetween_NilWhenEitherUnset(t *testing.T) {
	start := tm(0)
	assert.Nil(t, minutesBetween(nil, nil))
	assert.Nil(t, minutesBetween(&start, nil))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "dispatched", Dispatched.String())
	assert.Equal(t, "departed-job", DepartedJob.String())
	assert.Equal(t, "unknown", Stage(99).String())
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 0, indexOf(Dispatched))
	assert.Equal(t, 5, indexOf(DepartedJob))
}

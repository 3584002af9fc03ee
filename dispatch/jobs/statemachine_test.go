package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/schema"
)

func TestRequireTransition_LegalTransitionsAllowed(t *testing.T) {
	cases := []struct{ from, to string }{
		{schema.JobUnassigned, schema.JobAssigned},
		{schema.JobUnassigned, schema.JobCancelled},
		{schema.JobAssigned, schema.JobInProgress},
		{schema.JobAssigned, schema.JobCancelled},
		{schema.JobInProgress, schema.JobCompleted},
		{schema.JobInProgress, schema.JobCancelled},
	}
	for _, c := range cases {
		assert.NoError(t, requireTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestRequireTransition_IllegalTransitionsRejected(t *testing.T) {
	cases := []struct{ from, to string }{
		{schema.JobUnassigned, schema.JobInProgress},
		{schema.JobUnassigned, schema.JobCompleted},
		{schema.JobCompleted, schema.JobAssigned},
		{schema.JobCancelled, schema.JobAssigned},
		{schema.JobAssigned, schema.JobCompleted},
	}
	for _, c := range cases {
		err := requireTransition(c.from, c.to)
		assert.Error(t, err, "%s -> %s should be illegal", c.from, c.to)
		appErr, ok := apperr.As(err)
		assert.True(t, ok)
		assert.Equal(t, apperr.CodeConflict, appErr.Code)
	}
}

func TestDeriveActualDuration_OverridePreferred(t *testing.T) {
	override := 45
	start := time.Now().Add(-time.Hour)
	got := deriveActualDuration(&override, &start, time.Now())
	assert.Equal(t, &override, got)
}

func TestDeriveActualDuration_FromStartedAt(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute)
	completed := start.Add(30 * time.Minute)
	got := deriveActualDuration(nil, &start, completed)
	if assert.NotNil(t, got) {
		assert.Equal(t, 30, *got)
	}
}

func TestDeriveActualDuration_NoStartedAt_ReturnsNil(t *testing.T) {
	got := deriveActualDuration(nil, nil, time.Now())
	assert.Nil(t, got)
}

func TestDeriveVariance_BothSet(t *testing.T) {
	actual, estimated := 50, 40
	got := deriveVariance(&actual, &estimated)
	if assert.NotNil(t, got) {
		assert.Equal(t, 10, *got)
	}
}

func TestDeriveVariance_NilWhenEitherMissing(t *testing.T) {
	actual := 50
	assert.Nil(t, deriveVariance(nil, nil))
	assert.Nil(t, deriveVariance(&actual, nil))
	assert.Nil(t, deriveVariance(nil, &actual))
}

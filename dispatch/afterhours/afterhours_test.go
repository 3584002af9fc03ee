package afterhours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.fieldcore.build/dispatch/schema"
)

func at(weekday time.Weekday, hh, mm int) time.Time {
	// 2024-01-01 is a Monday; offset to land on the requested weekday.
	base := time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
	offset := int(weekday) - int(base.Weekday())
	return base.AddDate(0, 0, offset)
}

func TestMatches_NonWrappingWindow(t *testing.T) {
	rule := schema.AfterHoursRule{WeekdayStart: "18:00", WeekdayEnd: "22:00"}
	assert.True(t, matches(rule, at(time.Tuesday, 19, 0)))
	assert.False(t, matches(rule, at(time.Tuesday, 17, 59)))
	assert.False(t, matches(rule, at(time.Tuesday, 22, 0)))
	assert.True(t, matches(rule, at(time.Tuesday, 18, 0)))
}

func TestMatches_MidnightWrappingWindow(t *testing.T) {
	rule := schema.AfterHoursRule{WeekdayStart: "22:00", WeekdayEnd: "06:00"}
	assert.True(t, matches(rule, at(time.Wednesday, 23, 0)))
	assert.True(t, matches(rule, at(time.Wednesday, 1, 0)))
	assert.False(t, matches(rule, at(time.Wednesday, 6, 0)))
	assert.False(t, matches(rule, at(time.Wednesday, 12, 0)))
}

func TestMatches_WeekendAllDayOverride(t *testing.T) {
	rule := schema.AfterHoursRule{WeekendAllDay: true, WeekdayStart: "18:00", WeekdayEnd: "22:00"}
	assert.True(t, matches(rule, at(time.Saturday, 9, 0)))
	assert.True(t, matches(rule, at(time.Sunday, 23, 59)))
	// Weekday daytime still falls outside the weekday window.
	assert.False(t, matches(rule, at(time.Monday, 9, 0)))
}

func TestParseHHMM(t *testing.T) {
	assert.Equal(t, 0, parseHHMM(""))
	assert.Equal(t, 18*60, parseHHMM("18:00"))
	assert.Equal(t, 6*60+30, parseHHMM("06:30"))
}

package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
)

// The reference zone for these tests is UTC+05:30, so local midnight is
// not a UTC midnight and boundary mistakes show up immediately.
const testZone = "Asia/Kolkata"

func newTestWindow(t *testing.T) *attendance.ClockWindow {
	t.Helper()
	cw, err := attendance.NewClockWindow(testZone)
	require.NoError(t, err)
	return cw
}

func TestClockWindow_InvalidZone(t *testing.T) {
	_, err := attendance.NewClockWindow("Not/AZone")
	assert.Error(t, err)
}

func TestClockWindow_WindowCoversFullCivilDay(t *testing.T) {
	cw := newTestWindow(t)
	loc := cw.Location

	// GIVEN: an instant mid-afternoon local time
	instant := time.Date(2026, time.March, 10, 15, 30, 0, 0, loc)

	// WHEN: computing the day window
	w := cw.WindowFor(instant)

	// THEN: [00:00 local, next 00:00 local)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2026, time.March, 11, 0, 0, 0, 0, loc), w.End)
	assert.Equal(t, "2026-03-10", w.Date)
	assert.True(t, w.Contains(instant))
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(w.End))
}

func TestClockWindow_MidnightBoundary_DifferentDays(t *testing.T) {
	cw := newTestWindow(t)
	loc := cw.Location

	// GIVEN: 23:59:59 and 00:00:01 local, two seconds apart
	before := time.Date(2026, time.March, 10, 23, 59, 59, 0, loc)
	after := time.Date(2026, time.March, 11, 0, 0, 1, 0, loc)

	// THEN: they land in different civil-day windows
	assert.Equal(t, "2026-03-10", cw.WindowFor(before).Date)
	assert.Equal(t, "2026-03-11", cw.WindowFor(after).Date)
	assert.False(t, cw.WindowFor(before).Contains(after))
}

func TestClockWindow_UTCInstant_GroupedByLocalDay(t *testing.T) {
	cw := newTestWindow(t)

	// GIVEN: a UTC instant that is already the next day in the reference
	// zone (20:00Z on Mar 10 is 01:30 local on Mar 11)
	utcEvening := time.Date(2026, time.March, 10, 20, 0, 0, 0, time.UTC)

	// THEN: the civil date follows the reference zone, not UTC
	assert.Equal(t, "2026-03-11", cw.CivilDate(utcEvening))
	assert.Equal(t, "2026-03-11", cw.WindowFor(utcEvening).Date)
}

func TestClockWindow_IndependentOfInstantZone(t *testing.T) {
	cw := newTestWindow(t)
	loc := cw.Location

	// GIVEN: the same instant expressed in UTC and in local time
	local := time.Date(2026, time.March, 10, 1, 0, 0, 0, loc)
	utc := local.UTC()

	// THEN: both resolve to the same window
	assert.Equal(t, cw.WindowFor(local), cw.WindowFor(utc))
}

func TestClockWindow_WindowForDate(t *testing.T) {
	cw := newTestWindow(t)

	w, err := cw.WindowForDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", w.Date)
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))

	_, err = cw.WindowForDate("10/03/2026")
	assert.Error(t, err)
}

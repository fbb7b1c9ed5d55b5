package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/attendance-engine/attendance"
)

func eventAt(kind attendance.EventType, hhmm string) attendance.AttendanceEvent {
	at, _ := time.Parse("2006-01-02 15:04", "2026-03-10 "+hhmm)
	return attendance.AttendanceEvent{
		ID:         attendance.EventID("ev-" + hhmm),
		WorkerID:   "wkr-1",
		Type:       kind,
		OccurredAt: at,
	}
}

func TestToggle_EmptyDay_StartsWithCheckIn(t *testing.T) {
	assert.Equal(t, attendance.DayStart, attendance.ResolveDayState(nil))
	assert.Equal(t, attendance.CheckIn, attendance.NextEventType(nil))
}

func TestToggle_OpenSegment_EmitsCheckOut(t *testing.T) {
	events := []attendance.AttendanceEvent{
		eventAt(attendance.CheckIn, "09:00"),
	}
	assert.Equal(t, attendance.CheckedIn, attendance.ResolveDayState(events))
	assert.Equal(t, attendance.CheckOut, attendance.NextEventType(events))
}

func TestToggle_ClosedSegment_StartsNewSegment(t *testing.T) {
	// Multiple pairs per day are legal: breaks, split shifts.
	events := []attendance.AttendanceEvent{
		eventAt(attendance.CheckIn, "09:00"),
		eventAt(attendance.CheckOut, "12:00"),
	}
	assert.Equal(t, attendance.CheckedOut, attendance.ResolveDayState(events))
	assert.Equal(t, attendance.CheckIn, attendance.NextEventType(events))
}

func TestToggle_StrictAlternation(t *testing.T) {
	// GIVEN: N sequential requests on an empty day
	// THEN: the emitted types strictly alternate starting with CHECK_IN
	var events []attendance.AttendanceEvent
	expected := []attendance.EventType{
		attendance.CheckIn, attendance.CheckOut,
		attendance.CheckIn, attendance.CheckOut,
		attendance.CheckIn, attendance.CheckOut,
	}
	for i, want := range expected {
		got := attendance.NextEventType(events)
		assert.Equalf(t, want, got, "request %d", i+1)
		e := eventAt(got, time.Date(2026, 3, 10, 9+i, 0, 0, 0, time.UTC).Format("15:04"))
		events = append(events, e)
	}
}

func TestToggle_SelfHealsFromLedgerState(t *testing.T) {
	// The automaton derives state fresh from whatever the ledger holds,
	// even an irregular sequence.
	events := []attendance.AttendanceEvent{
		eventAt(attendance.CheckIn, "09:00"),
		eventAt(attendance.CheckIn, "09:01"), // irregular double check-in
	}
	assert.Equal(t, attendance.CheckedIn, attendance.ResolveDayState(events))
	assert.Equal(t, attendance.CheckOut, attendance.NextEventType(events))
}

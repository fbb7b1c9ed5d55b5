/*
clock.go - Civil-day window arithmetic in a fixed reference timezone

PURPOSE:
  Resolves "today" as an instant interval in the deployment's operating
  timezone, independent of the server's local timezone or the caller's.
  Every "same day" comparison in the engine goes through DayWindow so
  events recorded near midnight group consistently.

DESIGN:
  The current instant is injected through Clock rather than read from
  time.Now ambiently, so tests supply deterministic instants.
*/
package attendance

import (
	"fmt"
	"time"
)

// Clock yields the current instant. Production uses SystemClock; tests use
// FixedClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

// =============================================================================
// DAY WINDOW
// =============================================================================

// DayWindow is a half-open instant interval [Start, End) covering one civil
// day in the reference timezone.
type DayWindow struct {
	Start time.Time
	End   time.Time
	Date  string // civil date, YYYY-MM-DD
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ClockWindow computes civil-day windows in a fixed reference timezone.
type ClockWindow struct {
	Location *time.Location
}

// NewClockWindow resolves the named IANA timezone. The zone is fixed for the
// lifetime of the engine.
func NewClockWindow(tzName string) (*ClockWindow, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid reference timezone %q: %w", tzName, err)
	}
	return &ClockWindow{Location: loc}, nil
}

// WindowFor returns the civil-day window containing the given instant.
// Pure function of its input; no side effects.
func (cw *ClockWindow) WindowFor(instant time.Time) DayWindow {
	local := instant.In(cw.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cw.Location)
	return DayWindow{
		Start: start,
		End:   start.AddDate(0, 0, 1),
		Date:  start.Format("2006-01-02"),
	}
}

// WindowForDate returns the window for a civil date string (YYYY-MM-DD).
func (cw *ClockWindow) WindowForDate(date string) (DayWindow, error) {
	day, err := time.ParseInLocation("2006-01-02", date, cw.Location)
	if err != nil {
		return DayWindow{}, fmt.Errorf("invalid civil date %q: %w", date, err)
	}
	return cw.WindowFor(day), nil
}

// CivilDate returns the civil date of an instant in the reference timezone.
func (cw *ClockWindow) CivilDate(instant time.Time) string {
	return instant.In(cw.Location).Format("2006-01-02")
}

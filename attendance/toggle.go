/*
toggle.go - Next-event-type state machine

PURPOSE:
  Given the ordered list of a worker's events for one civil day, decides
  whether the next recorded event is a CHECK_IN or a CHECK_OUT.

THE AUTOMATON:
  DAY_START   (no events)                          -> CHECK_IN
  CHECKED_IN  (more check-ins than check-outs)     -> CHECK_OUT
  CHECKED_OUT (equal counts, at least one pair)    -> CHECK_IN (new segment)

  Multiple check-in/check-out pairs per day are legal (breaks, split
  shifts); there is no maximum and no terminal state within a day. The
  state is re-derived fresh from the day's event list on every request, so
  the resolver holds no persistent state and self-heals from whatever the
  ledger contains.
*/
package attendance

// DayState is the derived per-worker per-day toggle state.
type DayState string

const (
	DayStart   DayState = "DAY_START"
	CheckedIn  DayState = "CHECKED_IN"
	CheckedOut DayState = "CHECKED_OUT"
)

// ResolveDayState derives the toggle state from the day's events.
func ResolveDayState(events []AttendanceEvent) DayState {
	ins, outs := countByType(events)
	switch {
	case ins == 0:
		return DayStart
	case outs < ins:
		return CheckedIn
	default:
		return CheckedOut
	}
}

// NextEventType computes the event type the next request must record.
func NextEventType(events []AttendanceEvent) EventType {
	if ResolveDayState(events) == CheckedIn {
		return CheckOut
	}
	return CheckIn
}

func countByType(events []AttendanceEvent) (ins, outs int) {
	for _, e := range events {
		switch e.Type {
		case CheckIn:
			ins++
		case CheckOut:
			outs++
		}
	}
	return ins, outs
}

/*
rollup.go - Daily rollup computation from the event ledger

PURPOSE:
  Derives the per-worker-per-day summary row from the full ordered event
  list for that day. The rollup is a materialized view: it is recomputed in
  full on every update, never patched incrementally, so it can never drift
  from what a replay of the ledger would produce.

TOTAL HOURS:
  Sum over maximal (CHECK_IN, matching CHECK_OUT) pairs. An unmatched
  trailing CHECK_IN (day still open) contributes zero until closed.

STATUS:
  ABSENT  - no events (no rollup row exists)
  PARTIAL - an open CHECK_IN remains, or total hours below the threshold
  PRESENT - all pairs closed and total hours meet the threshold
*/
package attendance

import (
	"sort"
	"time"
)

// ComputeRollup derives the rollup for one worker+day from the day's
// events. Events may arrive in any order; they are sorted by OccurredAt.
// Returns nil when the day has no events (ABSENT days have no row).
func ComputeRollup(workerID WorkerID, date string, events []AttendanceEvent, policy RollupPolicy) *DailyRollup {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]AttendanceEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	rollup := &DailyRollup{
		WorkerID: workerID,
		Date:     date,
		// Historical attribution: the establishment of the day's first
		// event, frozen even if the worker is remapped later.
		EstablishmentID: sorted[0].EstablishmentID,
		TotalHours:      ZeroHours(),
	}

	var openCheckin *time.Time
	hasOpenSegment := false

	for i := range sorted {
		e := sorted[i]
		switch e.Type {
		case CheckIn:
			if rollup.FirstCheckinAt == nil {
				at := e.OccurredAt
				rollup.FirstCheckinAt = &at
			}
			at := e.OccurredAt
			openCheckin = &at
		case CheckOut:
			at := e.OccurredAt
			rollup.LastCheckoutAt = &at
			if openCheckin != nil {
				rollup.TotalHours = rollup.TotalHours.Add(HoursBetween(*openCheckin, e.OccurredAt))
				openCheckin = nil
			}
		}
	}
	hasOpenSegment = openCheckin != nil

	rollup.Status = classify(rollup.TotalHours, hasOpenSegment, policy)
	return rollup
}

func classify(total Hours, hasOpenSegment bool, policy RollupPolicy) RollupStatus {
	if hasOpenSegment || total.LessThan(policy.FullDayThreshold) {
		return StatusPartial
	}
	return StatusPresent
}

// RollupEquals reports whether two rollups agree on every derived field.
// Used by reconciliation to detect drift between the stored row and a
// fresh replay. ID and UpdatedAt are storage bookkeeping and not compared.
func RollupEquals(a, b *DailyRollup) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.WorkerID == b.WorkerID &&
		a.Date == b.Date &&
		a.EstablishmentID == b.EstablishmentID &&
		timePtrEqual(a.FirstCheckinAt, b.FirstCheckinAt) &&
		timePtrEqual(a.LastCheckoutAt, b.LastCheckoutAt) &&
		a.TotalHours.Value.Equal(b.TotalHours.Value) &&
		a.Status == b.Status
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

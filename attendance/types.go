/*
Package attendance provides the attendance event ingestion and daily
rollup engine.

PURPOSE:
  This package contains the domain types and algorithms for recording
  worker check-in/check-out events and maintaining the per-worker-per-day
  summary that reporting treats as ground truth.

KEY CONCEPTS IN THIS FILE (types.go):
  - Worker / Establishment / Department: directory records
  - EstablishmentMapping: time-ranged worker-to-establishment relation
  - AttendanceEvent: an immutable ledger entry (CHECK_IN or CHECK_OUT)
  - DailyRollup: the derived daily summary row
  - Hours: a decimal quantity of hours

DESIGN PRINCIPLES:
  1. Immutability: events are never updated or deleted
  2. Precision: uses decimal.Decimal for hour totals, never float64
  3. Historical attribution: events and rollups copy the establishment id
     at insertion time; a later remap never rewrites history
  4. Derivability: a rollup is always reconstructible by replaying the
     worker's events for that civil day

SEE ALSO:
  - clock.go:       civil-day window arithmetic
  - toggle.go:      next-event-type state machine
  - rollup.go:      rollup computation from the day's events
  - eligibility.go: worker/establishment authorization checks
  - recorder.go:    the record-attendance orchestration
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type EstablishmentID string
type DepartmentID string
type EventID string
type MappingID string

// =============================================================================
// HOURS - Decimal hour quantity
// =============================================================================

type Hours struct {
	Value decimal.Decimal
}

func NewHours(v float64) Hours { return Hours{Value: decimal.NewFromFloat(v)} }
func ZeroHours() Hours         { return Hours{Value: decimal.Zero} }

func (h Hours) Add(o Hours) Hours               { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) IsZero() bool                    { return h.Value.IsZero() }
func (h Hours) LessThan(o Hours) bool           { return h.Value.LessThan(o.Value) }
func (h Hours) GreaterThanOrEqual(o Hours) bool { return h.Value.GreaterThanOrEqual(o.Value) }
func (h Hours) Float64() float64                { f, _ := h.Value.Float64(); return f }
func (h Hours) String() string                  { return h.Value.StringFixed(4) }

// HoursBetween converts an instant interval into decimal hours.
func HoursBetween(from, to time.Time) Hours {
	seconds := decimal.NewFromInt(int64(to.Sub(from) / time.Second))
	return Hours{Value: seconds.Div(decimal.NewFromInt(3600))}
}

// MustParseHours parses a stored decimal string, returning zero on failure.
func MustParseHours(s string) Hours {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroHours()
	}
	return Hours{Value: d}
}

// =============================================================================
// DIRECTORY RECORDS
// =============================================================================

type Worker struct {
	ID           WorkerID
	Code         string // human-facing worker code, e.g. "WKR001"
	DisplayName  string
	DepartmentID DepartmentID
	IsActive     bool
	CreatedAt    time.Time
}

type Department struct {
	ID       DepartmentID
	Name     string
	IsActive bool
}

type Establishment struct {
	ID           EstablishmentID
	Name         string
	DepartmentID DepartmentID
	IsActive     bool
	IsApproved   bool
	CreatedAt    time.Time
}

// EstablishmentMapping is the time-ranged assignment of a worker to one
// establishment. Mappings are never deleted, only closed: UnmappedAt is set
// and IsActive cleared. At most one mapping per worker may be active.
type EstablishmentMapping struct {
	ID              MappingID
	WorkerID        WorkerID
	EstablishmentID EstablishmentID
	MappedAt        time.Time
	UnmappedAt      *time.Time
	IsActive        bool
}

// =============================================================================
// ATTENDANCE EVENT - Immutable ledger entry
// =============================================================================

type EventType string

const (
	CheckIn  EventType = "CHECK_IN"
	CheckOut EventType = "CHECK_OUT"
)

// AttendanceEvent is an immutable fact. EstablishmentID is the establishment
// at the time of the event, copied from the active mapping at insertion time.
// It is not a live reference and must never be rewritten on remap.
type AttendanceEvent struct {
	ID              EventID
	WorkerID        WorkerID
	Type            EventType
	OccurredAt      time.Time
	EstablishmentID EstablishmentID
	Source          string // terminal, remote, card
	IdempotencyKey  string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// =============================================================================
// DAILY ROLLUP - Derived summary, one row per worker per civil day
// =============================================================================

type RollupStatus string

const (
	StatusPresent RollupStatus = "PRESENT"
	StatusPartial RollupStatus = "PARTIAL"
	StatusAbsent  RollupStatus = "ABSENT"
)

// DailyRollup is a materialized view over the event ledger for one worker
// and one civil day. It must always be reproducible by ComputeRollup over
// the day's events.
type DailyRollup struct {
	ID              string
	WorkerID        WorkerID
	Date            string // civil date in the reference timezone, YYYY-MM-DD
	EstablishmentID EstablishmentID
	FirstCheckinAt  *time.Time
	LastCheckoutAt  *time.Time
	TotalHours      Hours
	Status          RollupStatus
	UpdatedAt       time.Time
}

// =============================================================================
// ROLLUP POLICY - Configurable classification rules
// =============================================================================

// RollupPolicy holds the classification knobs that are deliberately not
// hard-coded: the hours a day must reach to count as PRESENT.
type RollupPolicy struct {
	FullDayThreshold Hours
}

func DefaultRollupPolicy() RollupPolicy {
	return RollupPolicy{FullDayThreshold: NewHours(8)}
}

/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  EventStore:   Append-only attendance event ledger
  RollupStore:  Daily rollup rows (the materialized projection)
  Directory:    Worker/establishment/mapping reads for eligibility
  TxStore:      Transactional wrapper so event append and rollup update
                commit or roll back together

APPEND-ONLY CONTRACT:
  The event ledger has no Update or Delete. Every append carries the
  establishment id copied from the worker's active mapping at insertion
  time.

IDEMPOTENCY:
  An event may carry an idempotency key. Appending a key that already
  exists is rejected, which protects against duplicated network retries.

IMPLEMENTATIONS:
  - store/sqlite:          Production SQLite
  - attendance/store:      In-memory for tests
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE - Append-only ledger
// =============================================================================

// EventStore persists attendance events. Append-only: no Update, no Delete.
type EventStore interface {
	// AppendEvent persists an event. Returns ErrDuplicateIdempotencyKey if
	// the event carries a key that already exists.
	AppendEvent(ctx context.Context, event AttendanceEvent) error

	// EventsForWorkerOnDay returns the worker's events inside the civil-day
	// window, ascending by OccurredAt.
	EventsForWorkerOnDay(ctx context.Context, workerID WorkerID, window DayWindow) ([]AttendanceEvent, error)

	// EventsForWorkerInRange returns the worker's events in [from, to),
	// ascending by OccurredAt. Used by audit/log views.
	EventsForWorkerInRange(ctx context.Context, workerID WorkerID, from, to time.Time) ([]AttendanceEvent, error)

	// HasIdempotencyKey checks whether an event with the key exists.
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// ROLLUP STORE - Materialized daily projection
// =============================================================================

// RollupFilter narrows rollup queries for the reporting surface.
// Zero values mean "no constraint".
type RollupFilter struct {
	WorkerID        WorkerID
	EstablishmentID EstablishmentID
	FromDate        string // inclusive, YYYY-MM-DD
	ToDate          string // inclusive, YYYY-MM-DD
}

type RollupStore interface {
	// SaveRollup inserts or replaces the rollup for (WorkerID, Date).
	SaveRollup(ctx context.Context, rollup DailyRollup) error

	// GetRollup returns the rollup row, or ErrRollupNotFound.
	GetRollup(ctx context.Context, workerID WorkerID, date string) (*DailyRollup, error)

	// QueryRollups returns rollups matching the filter, ordered by date.
	QueryRollups(ctx context.Context, filter RollupFilter) ([]DailyRollup, error)
}

// =============================================================================
// DIRECTORY - Read access for eligibility checks
// =============================================================================

// Directory resolves workers, establishments, departments, and the single
// active mapping per worker. Reads only; the surrounding CRUD system owns
// the write workflows.
type Directory interface {
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)

	// GetWorkerByCode resolves a worker by the human-facing worker code.
	GetWorkerByCode(ctx context.Context, code string) (*Worker, error)

	// GetWorkerByCredential resolves a worker from a verified external
	// credential id (e.g. a registered smart card).
	GetWorkerByCredential(ctx context.Context, credentialID string) (*Worker, error)

	GetEstablishment(ctx context.Context, id EstablishmentID) (*Establishment, error)
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)

	// ActiveMapping returns the worker's currently-active mapping, or nil
	// when the worker is unmapped.
	ActiveMapping(ctx context.Context, workerID WorkerID) (*EstablishmentMapping, error)
}

// =============================================================================
// COMBINED / TRANSACTIONAL STORE
// =============================================================================

// Store combines the ledger and the projection. This is the view handed to
// the function passed to WithTx.
type Store interface {
	EventStore
	RollupStore
}

// TxStore wraps Store with transaction support. The recorder uses WithTx so
// the read-decide-append-recompute sequence is atomic: a failed append
// never leaves an updated rollup behind.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

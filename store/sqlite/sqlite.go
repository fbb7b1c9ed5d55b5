/*
Package sqlite provides a SQLite-backed implementation of the attendance
storage interfaces.

PURPOSE:
  Implements attendance.TxStore (event ledger + daily rollups) and
  attendance.Directory (workers, establishments, departments, mappings,
  card credentials) using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The attendance_events table has no UPDATE or DELETE statements anywhere
  in this package. The establishment id stored on each event row is the
  value captured at insertion time and is never rewritten.

KEY TABLES:
  attendance_events:      Immutable ledger of check-in/check-out events
  daily_rollups:          Materialized per-worker-per-day summary
  workers:                Worker directory records
  worker_credentials:     External credential id -> worker
  establishments:         Establishment records with approval flags
  departments:            Owning departments
  establishment_mappings: Time-ranged worker-to-establishment relation

INDEXES:
  - idx_events_worker_time:      day-window reads (hot path)
  - idx_events_idempotency:      retry dedupe
  - idx_mappings_single_active:  at most one active mapping per worker
  - daily_rollups UNIQUE(worker_id, date): one row per worker per day

CONCURRENCY:
  Uses sync.RWMutex for in-process thread safety; the engine additionally
  serializes per worker above this layer. SQLite is opened in WAL mode so
  readers do not block.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - attendance/store.go:        interface definitions
  - attendance/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/attendance-engine/attendance"
)

// timeFormat is fixed-width so the stored strings sort lexicographically in
// chronological order. RFC3339Nano trims trailing fractional zeros, which
// breaks ORDER BY and range comparisons ('.' sorts before 'Z'): an event in
// the first second of a day would be grouped into the previous day.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// Store implements attendance.TxStore and attendance.Directory.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Departments
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Establishments
	CREATE TABLE IF NOT EXISTS establishments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department_id TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_approved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_establishments_department
		ON establishments(department_id);

	-- Workers
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		department_id TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- External credentials (e.g. registered smart cards)
	CREATE TABLE IF NOT EXISTS worker_credentials (
		credential_id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credentials_worker
		ON worker_credentials(worker_id);

	-- Establishment mappings (time-ranged, closed not deleted)
	CREATE TABLE IF NOT EXISTS establishment_mappings (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		establishment_id TEXT NOT NULL,
		mapped_at TEXT NOT NULL,
		unmapped_at TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_worker
		ON establishment_mappings(worker_id);

	-- CRITICAL: at most one active mapping per worker
	CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_single_active
		ON establishment_mappings(worker_id)
		WHERE is_active = TRUE;

	-- Attendance events (append-only ledger)
	CREATE TABLE IF NOT EXISTS attendance_events (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		establishment_id TEXT NOT NULL,
		source TEXT,
		idempotency_key TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_worker_time
		ON attendance_events(worker_id, occurred_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idempotency
		ON attendance_events(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Daily rollups (materialized projection, one row per worker per day)
	CREATE TABLE IF NOT EXISTS daily_rollups (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		establishment_id TEXT NOT NULL,
		first_checkin_at TEXT,
		last_checkout_at TEXT,
		total_hours TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(worker_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_rollups_establishment_date
		ON daily_rollups(establishment_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (attendance.EventStore interface)
// =============================================================================

// AppendEvent adds an event to the ledger.
func (s *Store) AppendEvent(ctx context.Context, event attendance.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, event)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendEvent(ctx context.Context, db execer, event attendance.AttendanceEvent) error {
	metadataJSON, _ := json.Marshal(event.Metadata)

	query := `
		INSERT INTO attendance_events
		(id, worker_id, event_type, occurred_at, establishment_id, source,
		 idempotency_key, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		event.ID,
		event.WorkerID,
		event.Type,
		formatTime(event.OccurredAt),
		event.EstablishmentID,
		event.Source,
		nullString(event.IdempotencyKey),
		string(metadataJSON),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		if isIdempotencyConflict(err) {
			return attendance.ErrDuplicateIdempotencyKey
		}
		if isBusyError(err) {
			return attendance.ErrSerializationConflict
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsForWorkerOnDay returns events inside the civil-day window.
func (s *Store) EventsForWorkerOnDay(ctx context.Context, workerID attendance.WorkerID, window attendance.DayWindow) ([]attendance.AttendanceEvent, error) {
	return s.EventsForWorkerInRange(ctx, workerID, window.Start, window.End)
}

// EventsForWorkerInRange returns events in [from, to), ascending.
func (s *Store) EventsForWorkerInRange(ctx context.Context, workerID attendance.WorkerID, from, to time.Time) ([]attendance.AttendanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEvents(ctx, s.db, workerID, from, to)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEvents(ctx context.Context, db querier, workerID attendance.WorkerID, from, to time.Time) ([]attendance.AttendanceEvent, error) {
	query := `
		SELECT id, worker_id, event_type, occurred_at, establishment_id, source,
		       idempotency_key, metadata_json, created_at
		FROM attendance_events
		WHERE worker_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC, created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, workerID,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []attendance.AttendanceEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HasIdempotencyKey checks if an event with the key exists.
func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance_events WHERE idempotency_key = ?",
		key,
	).Scan(&count)
	return count > 0, err
}

func scanEvent(rows *sql.Rows) (attendance.AttendanceEvent, error) {
	var (
		e              attendance.AttendanceEvent
		occurredAt     string
		source         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAt      string
	)

	err := rows.Scan(&e.ID, &e.WorkerID, &e.Type, &occurredAt, &e.EstablishmentID,
		&source, &idempotencyKey, &metadataJSON, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan event: %w", err)
	}

	e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.Source = source.String
	e.IdempotencyKey = idempotencyKey.String
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	return e, nil
}

// =============================================================================
// ROLLUP STORE (attendance.RollupStore interface)
// =============================================================================

// SaveRollup inserts or replaces the rollup for (worker, date).
func (s *Store) SaveRollup(ctx context.Context, rollup attendance.DailyRollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRollup(ctx, s.db, rollup)
}

func saveRollup(ctx context.Context, db execer, rollup attendance.DailyRollup) error {
	query := `
		INSERT INTO daily_rollups
		(id, worker_id, date, establishment_id, first_checkin_at, last_checkout_at,
		 total_hours, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET
			establishment_id = excluded.establishment_id,
			first_checkin_at = excluded.first_checkin_at,
			last_checkout_at = excluded.last_checkout_at,
			total_hours = excluded.total_hours,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	id := rollup.ID
	if id == "" {
		id = fmt.Sprintf("%s:%s", rollup.WorkerID, rollup.Date)
	}

	_, err := db.ExecContext(ctx, query,
		id,
		rollup.WorkerID,
		rollup.Date,
		rollup.EstablishmentID,
		nullTime(rollup.FirstCheckinAt),
		nullTime(rollup.LastCheckoutAt),
		rollup.TotalHours.Value.String(),
		rollup.Status,
		formatTime(rollup.UpdatedAt),
	)
	if err != nil {
		if isBusyError(err) {
			return attendance.ErrSerializationConflict
		}
		return fmt.Errorf("failed to save rollup: %w", err)
	}
	return nil
}

const rollupSelect = `
	SELECT id, worker_id, date, establishment_id, first_checkin_at,
	       last_checkout_at, total_hours, status, updated_at
	FROM daily_rollups`

// GetRollup returns the rollup for (worker, date), or ErrRollupNotFound.
func (s *Store) GetRollup(ctx context.Context, workerID attendance.WorkerID, date string) (*attendance.DailyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRollup(ctx, s.db, workerID, date)
}

func getRollup(ctx context.Context, db querier, workerID attendance.WorkerID, date string) (*attendance.DailyRollup, error) {
	rollups, err := queryRollups(ctx, db, rollupSelect+" WHERE worker_id = ? AND date = ?", workerID, date)
	if err != nil {
		return nil, err
	}
	if len(rollups) == 0 {
		return nil, attendance.ErrRollupNotFound
	}
	return &rollups[0], nil
}

// QueryRollups returns rollups matching the filter, ordered by date.
func (s *Store) QueryRollups(ctx context.Context, filter attendance.RollupFilter) ([]attendance.DailyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectRollups(ctx, s.db, filter)
}

func selectRollups(ctx context.Context, db querier, filter attendance.RollupFilter) ([]attendance.DailyRollup, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WorkerID != "" {
		conds = append(conds, "worker_id = ?")
		args = append(args, filter.WorkerID)
	}
	if filter.EstablishmentID != "" {
		conds = append(conds, "establishment_id = ?")
		args = append(args, filter.EstablishmentID)
	}
	if filter.FromDate != "" {
		conds = append(conds, "date >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		conds = append(conds, "date <= ?")
		args = append(args, filter.ToDate)
	}

	query := rollupSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, worker_id ASC"

	return queryRollups(ctx, db, query, args...)
}

func queryRollups(ctx context.Context, db querier, query string, args ...any) ([]attendance.DailyRollup, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer rows.Close()

	var rollups []attendance.DailyRollup
	for rows.Next() {
		var (
			r            attendance.DailyRollup
			firstCheckin sql.NullString
			lastCheckout sql.NullString
			totalHours   string
			updatedAt    string
		)
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.Date, &r.EstablishmentID,
			&firstCheckin, &lastCheckout, &totalHours, &r.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}

		r.TotalHours = attendance.MustParseHours(totalHours)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if firstCheckin.Valid {
			t, _ := time.Parse(time.RFC3339Nano, firstCheckin.String)
			r.FirstCheckinAt = &t
		}
		if lastCheckout.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastCheckout.String)
			r.LastCheckoutAt = &t
		}
		rollups = append(rollups, r)
	}
	return rollups, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (attendance.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store attendance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return attendance.ErrSerializationConflict
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return attendance.ErrSerializationConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEvent(ctx context.Context, event attendance.AttendanceEvent) error {
	return appendEvent(ctx, ts.tx, event)
}

func (ts *txStore) SaveRollup(ctx context.Context, rollup attendance.DailyRollup) error {
	return saveRollup(ctx, ts.tx, rollup)
}

func (ts *txStore) EventsForWorkerOnDay(ctx context.Context, workerID attendance.WorkerID, window attendance.DayWindow) ([]attendance.AttendanceEvent, error) {
	return queryEvents(ctx, ts.tx, workerID, window.Start, window.End)
}

func (ts *txStore) EventsForWorkerInRange(ctx context.Context, workerID attendance.WorkerID, from, to time.Time) ([]attendance.AttendanceEvent, error) {
	return queryEvents(ctx, ts.tx, workerID, from, to)
}

func (ts *txStore) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance_events WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

func (ts *txStore) GetRollup(ctx context.Context, workerID attendance.WorkerID, date string) (*attendance.DailyRollup, error) {
	return getRollup(ctx, ts.tx, workerID, date)
}

func (ts *txStore) QueryRollups(ctx context.Context, filter attendance.RollupFilter) ([]attendance.DailyRollup, error) {
	return selectRollups(ctx, ts.tx, filter)
}

// =============================================================================
// DIRECTORY (attendance.Directory interface)
// =============================================================================

// SaveDepartment inserts or updates a department.
func (s *Store) SaveDepartment(ctx context.Context, d attendance.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO departments (id, name, is_active)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query, d.ID, d.Name, d.IsActive)
	return err
}

// GetDepartment retrieves a department by id, nil when absent.
func (s *Store) GetDepartment(ctx context.Context, id attendance.DepartmentID) (*attendance.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d attendance.Department
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM departments WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveEstablishment inserts or updates an establishment.
func (s *Store) SaveEstablishment(ctx context.Context, e attendance.Establishment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO establishments (id, name, department_id, is_active, is_approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department_id = excluded.department_id,
			is_active = excluded.is_active,
			is_approved = excluded.is_approved
	`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.DepartmentID, e.IsActive, e.IsApproved,
		formatTime(createdAt))
	return err
}

// GetEstablishment retrieves an establishment by id, nil when absent.
func (s *Store) GetEstablishment(ctx context.Context, id attendance.EstablishmentID) (*attendance.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e         attendance.Establishment
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, department_id, is_active, is_approved, created_at FROM establishments WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.DepartmentID, &e.IsActive, &e.IsApproved, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

// ListEstablishments returns all establishments ordered by name.
func (s *Store) ListEstablishments(ctx context.Context) ([]attendance.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, department_id, is_active, is_approved, created_at FROM establishments ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var establishments []attendance.Establishment
	for rows.Next() {
		var (
			e         attendance.Establishment
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.DepartmentID, &e.IsActive, &e.IsApproved, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		establishments = append(establishments, e)
	}
	return establishments, rows.Err()
}

// SaveWorker inserts or updates a worker.
func (s *Store) SaveWorker(ctx context.Context, w attendance.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO workers (id, code, display_name, department_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			display_name = excluded.display_name,
			department_id = excluded.department_id,
			is_active = excluded.is_active
	`
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.Code, w.DisplayName, w.DepartmentID, w.IsActive,
		formatTime(createdAt))
	return err
}

// GetWorker retrieves a worker by id, nil when absent.
func (s *Store) GetWorker(ctx context.Context, id attendance.WorkerID) (*attendance.Worker, error) {
	return s.getWorkerWhere(ctx, "id = ?", id)
}

// GetWorkerByCode retrieves a worker by the human-facing code.
func (s *Store) GetWorkerByCode(ctx context.Context, code string) (*attendance.Worker, error) {
	return s.getWorkerWhere(ctx, "code = ?", code)
}

// GetWorkerByCredential resolves a worker from a registered credential id.
func (s *Store) GetWorkerByCredential(ctx context.Context, credentialID string) (*attendance.Worker, error) {
	return s.getWorkerWhere(ctx,
		"id = (SELECT worker_id FROM worker_credentials WHERE credential_id = ?)", credentialID)
}

func (s *Store) getWorkerWhere(ctx context.Context, where string, arg any) (*attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		w         attendance.Worker
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, display_name, department_id, is_active, created_at FROM workers WHERE "+where,
		arg,
	).Scan(&w.ID, &w.Code, &w.DisplayName, &w.DepartmentID, &w.IsActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &w, nil
}

// ListWorkers returns all workers ordered by code.
func (s *Store) ListWorkers(ctx context.Context) ([]attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, display_name, department_id, is_active, created_at FROM workers ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []attendance.Worker
	for rows.Next() {
		var (
			w         attendance.Worker
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.Code, &w.DisplayName, &w.DepartmentID, &w.IsActive, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// SaveCredential registers an external credential for a worker.
func (s *Store) SaveCredential(ctx context.Context, credentialID string, workerID attendance.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO worker_credentials (credential_id, worker_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(credential_id) DO UPDATE SET worker_id = excluded.worker_id
	`
	_, err := s.db.ExecContext(ctx, query, credentialID, workerID,
		formatTime(time.Now()))
	return err
}

// ActiveMapping returns the worker's active mapping, nil when unmapped.
func (s *Store) ActiveMapping(ctx context.Context, workerID attendance.WorkerID) (*attendance.EstablishmentMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m          attendance.EstablishmentMapping
		mappedAt   string
		unmappedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, worker_id, establishment_id, mapped_at, unmapped_at, is_active
		 FROM establishment_mappings
		 WHERE worker_id = ? AND is_active = TRUE`, workerID,
	).Scan(&m.ID, &m.WorkerID, &m.EstablishmentID, &mappedAt, &unmappedAt, &m.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.MappedAt, _ = time.Parse(time.RFC3339Nano, mappedAt)
	if unmappedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, unmappedAt.String)
		m.UnmappedAt = &t
	}
	return &m, nil
}

// MappingHistory returns all mappings for a worker, oldest first.
func (s *Store) MappingHistory(ctx context.Context, workerID attendance.WorkerID) ([]attendance.EstablishmentMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, worker_id, establishment_id, mapped_at, unmapped_at, is_active
		 FROM establishment_mappings
		 WHERE worker_id = ?
		 ORDER BY mapped_at ASC`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []attendance.EstablishmentMapping
	for rows.Next() {
		var (
			m          attendance.EstablishmentMapping
			mappedAt   string
			unmappedAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.WorkerID, &m.EstablishmentID, &mappedAt, &unmappedAt, &m.IsActive); err != nil {
			return nil, err
		}
		m.MappedAt, _ = time.Parse(time.RFC3339Nano, mappedAt)
		if unmappedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, unmappedAt.String)
			m.UnmappedAt = &t
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// MapWorker closes the worker's active mapping (if any) and opens a new one
// in a single transaction. Mappings are never deleted; the closed rows are
// what keep historical reports honest.
func (s *Store) MapWorker(ctx context.Context, m attendance.EstablishmentMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if m.MappedAt.IsZero() {
		m.MappedAt = time.Now().UTC()
	}

	_, err = sqlTx.ExecContext(ctx,
		`UPDATE establishment_mappings
		 SET is_active = FALSE, unmapped_at = ?
		 WHERE worker_id = ? AND is_active = TRUE`,
		formatTime(m.MappedAt), m.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to close previous mapping: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO establishment_mappings
		 (id, worker_id, establishment_id, mapped_at, unmapped_at, is_active)
		 VALUES (?, ?, ?, ?, NULL, TRUE)`,
		m.ID, m.WorkerID, m.EstablishmentID,
		formatTime(m.MappedAt))
	if err != nil {
		return fmt.Errorf("failed to open mapping: %w", err)
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). Tests need a clean slate;
// production code never deletes from the event ledger.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"attendance_events", "daily_rollups", "establishment_mappings",
		"worker_credentials", "workers", "establishments", "departments",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// isIdempotencyConflict matches only the idempotency-key unique index, not
// other unique violations such as an event-id primary-key collision.
func isIdempotencyConflict(err error) bool {
	if !isUniqueConstraintError(err) {
		return false
	}
	// SQLite names either the index or the column depending on how the
	// constraint was declared.
	return strings.Contains(err.Error(), "idx_events_idempotency") ||
		strings.Contains(err.Error(), "attendance_events.idempotency_key")
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}

// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory ledger + rollup implementation
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	events      map[attendance.WorkerID][]attendance.AttendanceEvent
	rollups     map[rollupKey]attendance.DailyRollup
	idempotency map[string]bool
}

type rollupKey struct {
	WorkerID attendance.WorkerID
	Date     string
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[attendance.WorkerID][]attendance.AttendanceEvent),
		rollups:     make(map[rollupKey]attendance.DailyRollup),
		idempotency: make(map[string]bool),
	}
}

// AppendEvent adds an event to the worker's ledger. Append-only.
func (m *Memory) AppendEvent(_ context.Context, event attendance.AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(event)
}

func (m *Memory) appendLocked(event attendance.AttendanceEvent) error {
	if event.IdempotencyKey != "" && m.idempotency[event.IdempotencyKey] {
		return attendance.ErrDuplicateIdempotencyKey
	}

	evs := m.events[event.WorkerID]

	// Binary search for the insertion point keeps the slice ordered.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].OccurredAt.After(event.OccurredAt)
	})
	evs = append(evs, attendance.AttendanceEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = event
	m.events[event.WorkerID] = evs

	if event.IdempotencyKey != "" {
		m.idempotency[event.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) EventsForWorkerOnDay(_ context.Context, workerID attendance.WorkerID, window attendance.DayWindow) ([]attendance.AttendanceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rangeLocked(workerID, window.Start, window.End), nil
}

func (m *Memory) EventsForWorkerInRange(_ context.Context, workerID attendance.WorkerID, from, to time.Time) ([]attendance.AttendanceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rangeLocked(workerID, from, to), nil
}

func (m *Memory) rangeLocked(workerID attendance.WorkerID, from, to time.Time) []attendance.AttendanceEvent {
	var result []attendance.AttendanceEvent
	for _, e := range m.events[workerID] {
		if !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			result = append(result, e)
		}
	}
	return result
}

func (m *Memory) HasIdempotencyKey(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[key], nil
}

func (m *Memory) SaveRollup(_ context.Context, rollup attendance.DailyRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups[rollupKey{WorkerID: rollup.WorkerID, Date: rollup.Date}] = rollup
	return nil
}

func (m *Memory) GetRollup(_ context.Context, workerID attendance.WorkerID, date string) (*attendance.DailyRollup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rollups[rollupKey{WorkerID: workerID, Date: date}]
	if !ok {
		return nil, attendance.ErrRollupNotFound
	}
	return &r, nil
}

func (m *Memory) QueryRollups(_ context.Context, filter attendance.RollupFilter) ([]attendance.DailyRollup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.DailyRollup
	for _, r := range m.rollups {
		if filter.WorkerID != "" && r.WorkerID != filter.WorkerID {
			continue
		}
		if filter.EstablishmentID != "" && r.EstablishmentID != filter.EstablishmentID {
			continue
		}
		if filter.FromDate != "" && r.Date < filter.FromDate {
			continue
		}
		if filter.ToDate != "" && r.Date > filter.ToDate {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].WorkerID < result[j].WorkerID
	})
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with snapshot-rollback transactions.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the store, restoring a snapshot on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	events      map[attendance.WorkerID][]attendance.AttendanceEvent
	rollups     map[rollupKey]attendance.DailyRollup
	idempotency map[string]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	evCopy := make(map[attendance.WorkerID][]attendance.AttendanceEvent, len(tm.events))
	for k, v := range tm.events {
		evCopy[k] = append([]attendance.AttendanceEvent{}, v...)
	}
	ruCopy := make(map[rollupKey]attendance.DailyRollup, len(tm.rollups))
	for k, v := range tm.rollups {
		ruCopy[k] = v
	}
	idCopy := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idCopy[k] = v
	}
	return memorySnapshot{events: evCopy, rollups: ruCopy, idempotency: idCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.events = s.events
	tm.rollups = s.rollups
	tm.idempotency = s.idempotency
}

// =============================================================================
// MEMORY DIRECTORY - worker/establishment/mapping records for tests
// =============================================================================

type MemoryDirectory struct {
	mu             sync.RWMutex
	workers        map[attendance.WorkerID]attendance.Worker
	byCode         map[string]attendance.WorkerID
	byCredential   map[string]attendance.WorkerID
	establishments map[attendance.EstablishmentID]attendance.Establishment
	departments    map[attendance.DepartmentID]attendance.Department
	mappings       map[attendance.WorkerID][]attendance.EstablishmentMapping
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		workers:        make(map[attendance.WorkerID]attendance.Worker),
		byCode:         make(map[string]attendance.WorkerID),
		byCredential:   make(map[string]attendance.WorkerID),
		establishments: make(map[attendance.EstablishmentID]attendance.Establishment),
		departments:    make(map[attendance.DepartmentID]attendance.Department),
		mappings:       make(map[attendance.WorkerID][]attendance.EstablishmentMapping),
	}
}

func (d *MemoryDirectory) PutWorker(w attendance.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers[w.ID] = w
	d.byCode[w.Code] = w.ID
}

func (d *MemoryDirectory) PutCredential(credentialID string, workerID attendance.WorkerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byCredential[credentialID] = workerID
}

func (d *MemoryDirectory) PutEstablishment(e attendance.Establishment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.establishments[e.ID] = e
}

func (d *MemoryDirectory) PutDepartment(dep attendance.Department) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.departments[dep.ID] = dep
}

// MapWorker closes any active mapping and opens a new one, preserving
// history the way the production schema does.
func (d *MemoryDirectory) MapWorker(m attendance.EstablishmentMapping) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.mappings[m.WorkerID]
	for i := range existing {
		if existing[i].IsActive {
			existing[i].IsActive = false
			at := m.MappedAt
			existing[i].UnmappedAt = &at
		}
	}
	m.IsActive = true
	d.mappings[m.WorkerID] = append(existing, m)
}

func (d *MemoryDirectory) GetWorker(_ context.Context, id attendance.WorkerID) (*attendance.Worker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if w, ok := d.workers[id]; ok {
		return &w, nil
	}
	return nil, nil
}

func (d *MemoryDirectory) GetWorkerByCode(ctx context.Context, code string) (*attendance.Worker, error) {
	d.mu.RLock()
	id, ok := d.byCode[code]
	d.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return d.GetWorker(ctx, id)
}

func (d *MemoryDirectory) GetWorkerByCredential(ctx context.Context, credentialID string) (*attendance.Worker, error) {
	d.mu.RLock()
	id, ok := d.byCredential[credentialID]
	d.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return d.GetWorker(ctx, id)
}

func (d *MemoryDirectory) GetEstablishment(_ context.Context, id attendance.EstablishmentID) (*attendance.Establishment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e, ok := d.establishments[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (d *MemoryDirectory) GetDepartment(_ context.Context, id attendance.DepartmentID) (*attendance.Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if dep, ok := d.departments[id]; ok {
		return &dep, nil
	}
	return nil, nil
}

func (d *MemoryDirectory) ActiveMapping(_ context.Context, workerID attendance.WorkerID) (*attendance.EstablishmentMapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.mappings[workerID] {
		if m.IsActive {
			mm := m
			return &mm, nil
		}
	}
	return nil, nil
}

/*
recorder.go - The record-attendance orchestration

PURPOSE:
  Ties the components together into the single logical operation the
  outside world calls:

    RecordAttendance(workerIdentifier, establishmentContext) -> Result

FLOW:
  1. Resolve the worker and run eligibility (read-only, unserialized)
  2. Acquire the worker's serialization lock
  3. Inside one store transaction:
       a. compute today's window
       b. load today's events
       c. decide CHECK_IN vs CHECK_OUT from the toggle automaton
       d. append the event (with the mapped establishment id copied in)
       e. recompute the daily rollup from the full day and save it
  4. Release the lock, return the result

CONCURRENCY:
  Requests for different workers share no mutable state and run fully in
  parallel. Two near-simultaneous requests for the same worker are the
  hazard: each would read the same day state and both append CHECK_IN.
  The per-worker lock makes the read-decide-append sequence single-writer
  per worker; the store transaction makes event+rollup all-or-nothing.
  Store-level serialization conflicts are retried a bounded number of
  times before surfacing as InsertError.
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordRequest is one attendance submission.
type RecordRequest struct {
	Worker        WorkerIdentifier
	Establishment EstablishmentContext
	Source        string
	// IdempotencyKey, when set by the caller, dedupes retried submissions.
	IdempotencyKey string
	Metadata       map[string]string
}

// RecordResult is returned on success.
type RecordResult struct {
	EventID           EventID
	EventType         EventType
	OccurredAt        time.Time
	WorkerID          WorkerID
	WorkerDisplayName string
	EstablishmentID   EstablishmentID
	EstablishmentName string
	RollupDate        string
}

// Recorder is the engine facade.
type Recorder struct {
	Directory Directory
	Store     TxStore
	Validator *Validator
	Window    *ClockWindow
	Clock     Clock
	Policy    RollupPolicy
	Log       *zap.Logger

	// MaxRetries bounds transparent retries on serialization conflicts.
	MaxRetries int

	locks sync.Map // WorkerID -> *sync.Mutex
}

// NewRecorder wires a recorder with defaults: system clock, default rollup
// policy, 3 retries.
func NewRecorder(dir Directory, store TxStore, window *ClockWindow, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		Directory:  dir,
		Store:      store,
		Validator:  NewValidator(dir),
		Window:     window,
		Clock:      SystemClock{},
		Policy:     DefaultRollupPolicy(),
		Log:        log,
		MaxRetries: 3,
	}
}

func (r *Recorder) workerLock(id WorkerID) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Record performs one RecordAttendance operation.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	worker, err := r.Validator.ResolveWorker(ctx, req.Worker)
	if err != nil {
		return nil, err
	}
	establishment, err := r.Validator.Validate(ctx, worker, req.Establishment)
	if err != nil {
		if IsEligibility(err) {
			r.Log.Debug("attendance rejected",
				zap.String("worker", string(worker.ID)),
				zap.String("code", string(AsRejection(err).Code)))
		}
		return nil, err
	}

	mu := r.workerLock(worker.ID)
	mu.Lock()
	defer mu.Unlock()

	var result *RecordResult
	for attempt := 0; ; attempt++ {
		result, err = r.recordOnce(ctx, worker, establishment, req)
		if err == nil || !IsRetryable(err) || attempt >= r.MaxRetries {
			break
		}
		r.Log.Warn("serialization conflict, retrying",
			zap.String("worker", string(worker.ID)),
			zap.Int("attempt", attempt+1))
	}
	if err != nil {
		if IsEligibility(err) || errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil, err
		}
		r.Log.Error("attendance append failed",
			zap.String("worker", string(worker.ID)),
			zap.Error(err))
		return nil, reject(CodeInsertError, "could not record attendance, try again")
	}
	return result, nil
}

// recordOnce runs the serialized read-decide-append-recompute sequence in
// one store transaction.
func (r *Recorder) recordOnce(ctx context.Context, worker *Worker, establishment *Establishment, req RecordRequest) (*RecordResult, error) {
	now := r.Clock.Now()
	window := r.Window.WindowFor(now)

	var result *RecordResult
	err := r.Store.WithTx(ctx, func(s Store) error {
		events, err := s.EventsForWorkerOnDay(ctx, worker.ID, window)
		if err != nil {
			return fmt.Errorf("load day events: %w", err)
		}

		event := AttendanceEvent{
			ID:              EventID(uuid.NewString()),
			WorkerID:        worker.ID,
			Type:            NextEventType(events),
			OccurredAt:      now,
			EstablishmentID: establishment.ID,
			Source:          req.Source,
			IdempotencyKey:  req.IdempotencyKey,
			Metadata:        req.Metadata,
			CreatedAt:       now,
		}
		if err := s.AppendEvent(ctx, event); err != nil {
			return err
		}

		rollup := ComputeRollup(worker.ID, window.Date, append(events, event), r.Policy)
		rollup.UpdatedAt = now
		if err := s.SaveRollup(ctx, *rollup); err != nil {
			return fmt.Errorf("save rollup: %w", err)
		}

		result = &RecordResult{
			EventID:           event.ID,
			EventType:         event.Type,
			OccurredAt:        event.OccurredAt,
			WorkerID:          worker.ID,
			WorkerDisplayName: worker.DisplayName,
			EstablishmentID:   establishment.ID,
			EstablishmentName: establishment.Name,
			RollupDate:        window.Date,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Log.Info("attendance recorded",
		zap.String("worker", string(worker.ID)),
		zap.String("type", string(result.EventType)),
		zap.String("establishment", string(establishment.ID)),
		zap.String("date", result.RollupDate))
	return result, nil
}

// =============================================================================
// RECONCILIATION - Replay the ledger, rewrite the projection
// =============================================================================

// Rebuild replays the ledger for one worker+day and rewrites the rollup.
// Returns the recomputed rollup (nil for an ABSENT day) and whether the
// stored row differed from the replay.
func (r *Recorder) Rebuild(ctx context.Context, workerID WorkerID, date string) (*DailyRollup, bool, error) {
	window, err := r.Window.WindowForDate(date)
	if err != nil {
		return nil, false, err
	}

	mu := r.workerLock(workerID)
	mu.Lock()
	defer mu.Unlock()

	var (
		fresh   *DailyRollup
		drifted bool
	)
	err = r.Store.WithTx(ctx, func(s Store) error {
		events, err := s.EventsForWorkerOnDay(ctx, workerID, window)
		if err != nil {
			return fmt.Errorf("load day events: %w", err)
		}
		fresh = ComputeRollup(workerID, window.Date, events, r.Policy)

		stored, err := s.GetRollup(ctx, workerID, window.Date)
		if err != nil && !errors.Is(err, ErrRollupNotFound) {
			return fmt.Errorf("load rollup: %w", err)
		}
		drifted = !RollupEquals(stored, fresh)

		if fresh == nil {
			return nil // no events: nothing to write
		}
		fresh.UpdatedAt = r.Clock.Now()
		return s.SaveRollup(ctx, *fresh)
	})
	if err != nil {
		return nil, false, err
	}

	if drifted {
		r.Log.Warn("rollup drift repaired",
			zap.String("worker", string(workerID)),
			zap.String("date", date))
	}
	return fresh, drifted, nil
}

// RebuildRange replays every day in [fromDate, toDate] for a worker.
// Returns the number of days whose stored rollup drifted from the replay.
func (r *Recorder) RebuildRange(ctx context.Context, workerID WorkerID, fromDate, toDate string) (int, error) {
	from, err := r.Window.WindowForDate(fromDate)
	if err != nil {
		return 0, err
	}
	to, err := r.Window.WindowForDate(toDate)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for day := from.Start; !day.After(to.Start); day = day.AddDate(0, 0, 1) {
		_, drifted, err := r.Rebuild(ctx, workerID, r.Window.CivilDate(day))
		if err != nil {
			return repaired, err
		}
		if drifted {
			repaired++
		}
	}
	return repaired, nil
}

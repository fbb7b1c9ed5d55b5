package attendance_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

type recorderFixture struct {
	rec   *attendance.Recorder
	dir   *store.MemoryDirectory
	store *store.TxMemory
	loc   *time.Location
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	t.Helper()

	window, err := attendance.NewClockWindow("Asia/Kolkata")
	require.NoError(t, err)

	dir := newDirectory(t)
	st := store.NewTxMemory()
	rec := attendance.NewRecorder(dir, st, window, nil)
	return &recorderFixture{rec: rec, dir: dir, store: st, loc: window.Location}
}

// at pins the engine clock to the given local wall time in March 2026.
func (f *recorderFixture) at(day int, hhmm string) {
	stamp := fmt.Sprintf("2026-03-%02d %s", day, hhmm)
	t, err := time.ParseInLocation("2006-01-02 15:04", stamp, f.loc)
	if err != nil {
		panic(err)
	}
	f.rec.Clock = attendance.FixedClock{Instant: t}
}

func wkr001Request() attendance.RecordRequest {
	return attendance.RecordRequest{
		Worker:        attendance.WorkerIdentifier{Code: "WKR001"},
		Establishment: attendance.EstablishmentContext{EstablishmentID: "est-A"},
		Source:        "kiosk",
	}
}

func TestRecord_CheckInThenCheckOut(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	// GIVEN: WKR001 checks in at 09:00
	f.at(10, "09:00")
	first, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)
	assert.Equal(t, attendance.CheckIn, first.EventType)
	assert.Equal(t, "2026-03-10", first.RollupDate)
	assert.Equal(t, attendance.EstablishmentID("est-A"), first.EstablishmentID)

	// WHEN: the same worker submits again five minutes later
	f.at(10, "09:05")
	second, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	// THEN: the toggle resolves CHECK_OUT and the rollup closes the pair
	assert.Equal(t, attendance.CheckOut, second.EventType)

	rollup, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.InDelta(t, 5.0/60.0, rollup.TotalHours.Float64(), 0.0001)
	assert.Equal(t, attendance.StatusPartial, rollup.Status)
	assert.Equal(t, first.OccurredAt, *rollup.FirstCheckinAt)
	assert.Equal(t, second.OccurredAt, *rollup.LastCheckoutAt)
}

func TestRecord_FullDayIsPresent(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	f.at(10, "17:30")
	_, err = f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	rollup, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.InDelta(t, 8.5, rollup.TotalHours.Float64(), 0.0001)
	assert.Equal(t, attendance.StatusPresent, rollup.Status)
}

func TestRecord_InactiveWorker_NoEventAppended(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()
	f.dir.PutWorker(attendance.Worker{
		ID: "wkr-2", Code: "WKR002", DepartmentID: "dep-1", IsActive: false,
	})

	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, attendance.RecordRequest{
		Worker:        attendance.WorkerIdentifier{Code: "WKR002"},
		Establishment: attendance.EstablishmentContext{EstablishmentID: "est-A"},
	})
	requireCode(t, err, attendance.CodeWorkerInactive)

	// THEN: the ledger stays empty and no rollup exists
	window, _ := f.rec.Window.WindowForDate("2026-03-10")
	events, err := f.store.EventsForWorkerOnDay(ctx, "wkr-2", window)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = f.store.GetRollup(ctx, "wkr-2", "2026-03-10")
	assert.ErrorIs(t, err, attendance.ErrRollupNotFound)
}

func TestRecord_WrongEstablishment_LedgerUnchanged(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	// A terminal at est-B without department-wide scope must reject and
	// leave the day exactly as it was.
	f.at(10, "10:00")
	req := wkr001Request()
	req.Establishment = attendance.EstablishmentContext{EstablishmentID: "est-B"}
	_, err = f.rec.Record(ctx, req)
	requireCode(t, err, attendance.CodeWrongEstablishment)

	window, _ := f.rec.Window.WindowForDate("2026-03-10")
	events, err := f.store.EventsForWorkerOnDay(ctx, "wkr-1", window)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecord_DuplicateIdempotencyKey(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	req := wkr001Request()
	req.IdempotencyKey = "submit-42"

	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, req)
	require.NoError(t, err)

	// Retrying the same submission must not toggle the worker out.
	f.at(10, "09:01")
	_, err = f.rec.Record(ctx, req)
	assert.ErrorIs(t, err, attendance.ErrDuplicateIdempotencyKey)

	window, _ := f.rec.Window.WindowForDate("2026-03-10")
	events, err := f.store.EventsForWorkerOnDay(ctx, "wkr-1", window)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, attendance.CheckIn, events[0].Type)
}

func TestRecord_ConcurrentSameWorker_StrictAlternation(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()
	f.at(10, "09:00")

	// WHEN: many simultaneous submissions race for the same worker
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.Record(ctx, wkr001Request())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN: the ledger, in commit order, strictly alternates starting
	// with CHECK_IN; two consecutive CHECK_INs would mean the per-worker
	// serialization failed.
	window, _ := f.rec.Window.WindowForDate("2026-03-10")
	events, err := f.store.EventsForWorkerOnDay(ctx, "wkr-1", window)
	require.NoError(t, err)
	require.Len(t, events, n)

	for i, e := range events {
		want := attendance.CheckIn
		if i%2 == 1 {
			want = attendance.CheckOut
		}
		assert.Equal(t, want, e.Type, "event %d", i)
	}
}

func TestRecord_HistoricalAttribution(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	// Day 1: mapped to est-A
	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)
	f.at(10, "17:00")
	_, err = f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	// Remap the worker to est-B overnight
	f.dir.MapWorker(attendance.EstablishmentMapping{
		ID: "map-2", WorkerID: "wkr-1", EstablishmentID: "est-B",
		MappedAt: time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC),
	})

	// Day 2: records against est-B
	f.at(11, "09:00")
	req := wkr001Request()
	req.Establishment = attendance.EstablishmentContext{EstablishmentID: "est-B"}
	result, err := f.rec.Record(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, attendance.EstablishmentID("est-B"), result.EstablishmentID)

	// THEN: day 1 stays attributed to est-A; the remap rewrote nothing.
	day1, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, attendance.EstablishmentID("est-A"), day1.EstablishmentID)

	day2, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, attendance.EstablishmentID("est-B"), day2.EstablishmentID)
}

func TestRebuild_RepairsDriftedRollup(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	f.at(10, "09:00")
	_, err := f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)
	f.at(10, "17:30")
	_, err = f.rec.Record(ctx, wkr001Request())
	require.NoError(t, err)

	// GIVEN: the stored projection is corrupted out-of-band
	broken, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	broken.TotalHours = attendance.NewHours(1)
	broken.Status = attendance.StatusPartial
	require.NoError(t, f.store.SaveRollup(ctx, *broken))

	// WHEN: the day is replayed from the ledger
	fresh, drifted, err := f.rec.Rebuild(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.True(t, drifted)
	require.NotNil(t, fresh)
	assert.InDelta(t, 8.5, fresh.TotalHours.Float64(), 0.0001)
	assert.Equal(t, attendance.StatusPresent, fresh.Status)

	// THEN: a second replay finds nothing to repair
	_, drifted, err = f.rec.Rebuild(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.False(t, drifted)

	stored, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.True(t, attendance.RollupEquals(stored, fresh))
}

func TestRebuild_EmptyDay(t *testing.T) {
	f := newRecorderFixture(t)
	f.at(10, "09:00")

	fresh, drifted, err := f.rec.Rebuild(context.Background(), "wkr-1", "2026-03-10")
	require.NoError(t, err)
	assert.Nil(t, fresh)
	assert.False(t, drifted)
}

func TestRebuildRange_CountsRepairedDays(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	for day := 10; day <= 12; day++ {
		f.at(day, "09:00")
		_, err := f.rec.Record(ctx, wkr001Request())
		require.NoError(t, err)
		f.at(day, "17:30")
		_, err = f.rec.Record(ctx, wkr001Request())
		require.NoError(t, err)
	}

	// Corrupt one of the three days
	broken, err := f.store.GetRollup(ctx, "wkr-1", "2026-03-11")
	require.NoError(t, err)
	broken.TotalHours = attendance.ZeroHours()
	require.NoError(t, f.store.SaveRollup(ctx, *broken))

	repaired, err := f.rec.RebuildRange(ctx, "wkr-1", "2026-03-10", "2026-03-12")
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
}

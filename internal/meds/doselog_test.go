package meds

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock drives AfterFunc callbacks synchronously from Advance, so settle
// delays are deterministic in tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires every due timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func setupLogger(t *testing.T, now time.Time) (*DoseLogger, *Store, *Ledger, *fakeClock) {
	t.Helper()
	clock := newFakeClock(now)
	store := NewStore(clock)
	ledger := NewLedger()
	zl, _ := zap.NewDevelopment()
	logger := NewDoseLogger(store, ledger, zl, WithClock(clock))
	return logger, store, ledger, clock
}

func TestDoseLogger_CommitScenario(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{
		Name:           "Amoxicillin",
		Dosage:         "500mg",
		Frequency:      FrequencyThriceDaily,
		Form:           FormPill,
		RemainingUnits: intPtr(14),
		TotalUnits:     intPtr(21),
	})
	require.NoError(t, err)

	// Make it overdue by an hour.
	past := now.Add(-time.Hour)
	_, err = store.Update(med.ID, UpdateInput{NextDoseAt: &past})
	require.NoError(t, err)

	got, _ := store.Get(med.ID)
	assert.True(t, IsOverdue(got, now))

	require.True(t, logger.LogDose(med.ID))
	assert.True(t, logger.InFlight(med.ID))

	// Nothing committed before the settle delay elapses.
	got, _ = store.Get(med.ID)
	assert.Equal(t, 14, got.RemainingUnits)

	clock.Advance(DefaultSettleDelay)

	assert.False(t, logger.InFlight(med.ID))
	got, _ = store.Get(med.ID)
	assert.Equal(t, 13, got.RemainingUnits)
	assert.Equal(t, clock.Now().Add(8*time.Hour), got.NextDoseAt)
	assert.False(t, IsOverdue(got, clock.Now()))
	assert.True(t, got.NextDoseAt.After(clock.Now()))

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, med.ID, entries[0].MedicationID)
	assert.Equal(t, "Amoxicillin", entries[0].Name)
	assert.Equal(t, "500mg", entries[0].Dosage)
	assert.Equal(t, FormPill, entries[0].Form)
	assert.Equal(t, clock.Now(), entries[0].LoggedAt)
}

func TestDoseLogger_SingleFlight(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{
		Name: "Lisinopril", Dosage: "10mg", Frequency: FrequencyDaily,
		RemainingUnits: intPtr(10), TotalUnits: intPtr(30),
	})
	require.NoError(t, err)

	// Double tap before the first settle delay completes: exactly one
	// decrement and one ledger entry.
	assert.True(t, logger.LogDose(med.ID))
	assert.False(t, logger.LogDose(med.ID))

	clock.Advance(DefaultSettleDelay)

	got, _ := store.Get(med.ID)
	assert.Equal(t, 9, got.RemainingUnits)
	assert.Equal(t, 1, ledger.Len())

	// After the commit resolves the id is idle again and loggable.
	assert.True(t, logger.LogDose(med.ID))
	clock.Advance(DefaultSettleDelay)
	got, _ = store.Get(med.ID)
	assert.Equal(t, 8, got.RemainingUnits)
	assert.Equal(t, 2, ledger.Len())
}

func TestDoseLogger_IndependentIDs(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	a, err := store.Create(CreateInput{Name: "A", Dosage: "1mg", RemainingUnits: intPtr(5), TotalUnits: intPtr(5)})
	require.NoError(t, err)
	b, err := store.Create(CreateInput{Name: "B", Dosage: "2mg", RemainingUnits: intPtr(5), TotalUnits: intPtr(5)})
	require.NoError(t, err)

	assert.True(t, logger.LogDose(a.ID))
	assert.True(t, logger.LogDose(b.ID))

	clock.Advance(DefaultSettleDelay)

	gotA, _ := store.Get(a.ID)
	gotB, _ := store.Get(b.ID)
	assert.Equal(t, 4, gotA.RemainingUnits)
	assert.Equal(t, 4, gotB.RemainingUnits)
	assert.Equal(t, 2, ledger.Len())
}

func TestDoseLogger_ZeroInventoryFloors(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{
		Name: "Metformin", Dosage: "5ml", Frequency: FrequencyTwiceDaily,
		RemainingUnits: intPtr(0), TotalUnits: intPtr(30),
	})
	require.NoError(t, err)

	require.True(t, logger.LogDose(med.ID))
	clock.Advance(DefaultSettleDelay)

	// Inventory never goes negative, but the dose still reschedules and
	// still lands in the ledger.
	got, _ := store.Get(med.ID)
	assert.Equal(t, 0, got.RemainingUnits)
	assert.True(t, got.NextDoseAt.After(clock.Now()))
	assert.Equal(t, 1, ledger.Len())
}

func TestDoseLogger_DeletedMidFlight(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{Name: "Amoxicillin", Dosage: "500mg"})
	require.NoError(t, err)

	require.True(t, logger.LogDose(med.ID))
	require.NoError(t, store.Delete(med.ID))

	// Commit aborts silently: no ledger entry, no error, in-flight cleared.
	clock.Advance(DefaultSettleDelay)

	assert.False(t, logger.InFlight(med.ID))
	assert.Equal(t, 0, ledger.Len())
}

func TestDoseLogger_DeleteKeepsHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{Name: "Amoxicillin", Dosage: "500mg", RemainingUnits: intPtr(3), TotalUnits: intPtr(3)})
	require.NoError(t, err)

	require.True(t, logger.LogDose(med.ID))
	clock.Advance(DefaultSettleDelay)
	require.Equal(t, 1, ledger.Len())

	// Deleting the medication leaves the committed entry intact.
	require.NoError(t, store.Delete(med.ID))
	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, med.ID, entries[0].MedicationID)
	assert.Equal(t, "Amoxicillin", entries[0].Name)
}

func TestDoseLogger_Close(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, ledger, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{Name: "Amoxicillin", Dosage: "500mg", RemainingUnits: intPtr(3), TotalUnits: intPtr(3)})
	require.NoError(t, err)

	require.True(t, logger.LogDose(med.ID))
	logger.Close()

	// Cancelled commit: no mutation, no ledger entry, id not stuck in flight.
	clock.Advance(DefaultSettleDelay)
	assert.False(t, logger.InFlight(med.ID))
	got, _ := store.Get(med.ID)
	assert.Equal(t, 3, got.RemainingUnits)
	assert.Equal(t, 0, ledger.Len())

	assert.False(t, logger.LogDose(med.ID))
}

func TestDoseLogger_InventoryBounds(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	logger, store, _, clock := setupLogger(t, now)

	med, err := store.Create(CreateInput{Name: "Amoxicillin", Dosage: "500mg", RemainingUnits: intPtr(2), TotalUnits: intPtr(3)})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, logger.LogDose(med.ID))
		clock.Advance(DefaultSettleDelay)

		got, _ := store.Get(med.ID)
		assert.GreaterOrEqual(t, got.RemainingUnits, 0)
		assert.LessOrEqual(t, got.RemainingUnits, got.TotalUnits)
	}
}

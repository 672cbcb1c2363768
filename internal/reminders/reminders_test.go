package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/meds"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

func (c *stubClock) AfterFunc(time.Duration, func()) meds.Timer { return noopTimer{} }

func intPtr(v int) *int { return &v }

func TestSweepReportsOverdueAndLowSupply(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := meds.NewStore(clock)

	overdueAt := clock.now.Add(-2 * time.Hour)
	lisinopril, err := store.Create(meds.CreateInput{
		Name:           "Lisinopril",
		Dosage:         "10mg",
		Frequency:      meds.FrequencyDaily,
		RemainingUnits: intPtr(20),
	})
	require.NoError(t, err)
	_, err = store.Update(lisinopril.ID, meds.UpdateInput{NextDoseAt: &overdueAt})
	require.NoError(t, err)

	low, err := store.Create(meds.CreateInput{
		Name:           "Metformin",
		Dosage:         "500mg",
		Frequency:      meds.FrequencyTwiceDaily,
		RemainingUnits: intPtr(2),
	})
	require.NoError(t, err)

	var got []Alert
	n := NewNotifier(store, clock, 5, func(alerts []Alert) { got = alerts }, zap.NewNop())
	n.Sweep()

	require.Len(t, got, 2)
	reasons := map[string]Reason{}
	for _, a := range got {
		reasons[a.Medication.Name] = a.Reason
	}
	assert.Equal(t, ReasonOverdue, reasons["Lisinopril"])
	assert.Equal(t, ReasonLowSupply, reasons["Metformin"])
	assert.Equal(t, low.ID, got[0].Medication.ID) // store lists newest first

	// As-needed medications never show up as overdue.
	ibuprofen, err := store.Create(meds.CreateInput{
		Name:           "Ibuprofen",
		Dosage:         "200mg",
		Frequency:      meds.FrequencyAsNeeded,
		RemainingUnits: intPtr(50),
		TotalUnits:     intPtr(50),
	})
	require.NoError(t, err)
	_, err = store.Update(ibuprofen.ID, meds.UpdateInput{NextDoseAt: &overdueAt})
	require.NoError(t, err)

	got = nil
	n.Sweep()
	for _, a := range got {
		assert.NotEqual(t, "Ibuprofen", a.Medication.Name)
	}
}

func TestSweepNoAlertsNoCallback(t *testing.T) {
	clock := &stubClock{now: time.Now()}
	store := meds.NewStore(clock)

	called := false
	n := NewNotifier(store, clock, 5, func([]Alert) { called = true }, zap.NewNop())
	n.Sweep()
	assert.False(t, called)
}

func TestStartRejectsBadSpec(t *testing.T) {
	clock := &stubClock{now: time.Now()}
	n := NewNotifier(meds.NewStore(clock), clock, 5, nil, zap.NewNop())
	assert.Error(t, n.Start("not a cron spec"))
}

func TestStartStopIdempotent(t *testing.T) {
	clock := &stubClock{now: time.Now()}
	n := NewNotifier(meds.NewStore(clock), clock, 5, nil, zap.NewNop())
	require.NoError(t, n.Start("*/15 * * * *"))
	assert.Error(t, n.Start("*/15 * * * *"))
	n.Stop()
	n.Stop()
}

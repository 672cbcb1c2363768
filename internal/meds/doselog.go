package meds

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/metrics"
)

// DefaultSettleDelay models the confirmation latency between the user's tap
// and the transaction committing.
const DefaultSettleDelay = time.Second

// DoseLogger orchestrates the dose-commit transaction: settle delay,
// inventory decrement, reschedule, and ledger append. At most one commit per
// medication id is in flight at any time; commits for different ids proceed
// independently.
//
// Pending commits are fire-and-forget with respect to the caller: once
// LogDose accepts a request, the commit runs after the settle delay whether
// or not the caller is still around. Close cancels everything still pending
// without partial mutation; an id is never left stuck in flight.
type DoseLogger struct {
	store   *Store
	ledger  *Ledger
	clock   Clock
	settle  time.Duration
	persist Persistence
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]Timer
	closed   bool
}

// DoseLoggerOption configures a DoseLogger.
type DoseLoggerOption func(*DoseLogger)

// WithClock injects a clock; tests use a fake to drive the settle delay.
func WithClock(c Clock) DoseLoggerOption {
	return func(l *DoseLogger) { l.clock = c }
}

// WithSettleDelay overrides the default settle delay.
func WithSettleDelay(d time.Duration) DoseLoggerOption {
	return func(l *DoseLogger) { l.settle = d }
}

// WithPersistence attaches a storage adapter; each commit is saved and its
// ledger entry appended. Persistence failures are logged, never surfaced.
func WithPersistence(p Persistence) DoseLoggerOption {
	return func(l *DoseLogger) { l.persist = p }
}

func NewDoseLogger(store *Store, ledger *Ledger, logger *zap.Logger, opts ...DoseLoggerOption) *DoseLogger {
	l := &DoseLogger{
		store:    store,
		ledger:   ledger,
		clock:    SystemClock(),
		settle:   DefaultSettleDelay,
		logger:   logger,
		inflight: make(map[string]Timer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogDose requests a dose commit for the medication id. It returns false
// without queuing anything when a commit for the id is already in flight
// (the single-flight guard against rapid repeated taps) or the logger is
// closed. The in-flight mark is visible immediately so callers can show a
// pending indicator.
func (l *DoseLogger) LogDose(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	if _, busy := l.inflight[id]; busy {
		metrics.DuplicateTapsSuppressed.Inc()
		l.logger.Debug("Dose commit already in flight", zap.String("medication_id", id))
		return false
	}

	l.inflight[id] = l.clock.AfterFunc(l.settle, func() { l.commit(id) })
	return true
}

// InFlight reports whether a commit for the id is pending.
func (l *DoseLogger) InFlight(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.inflight[id]
	return busy
}

// Close cancels all pending commits and clears their in-flight state. No
// partial mutation: a cancelled commit touches neither the store nor the
// ledger. Further LogDose calls return false.
func (l *DoseLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for id, timer := range l.inflight {
		timer.Stop()
		delete(l.inflight, id)
	}
}

func (l *DoseLogger) commit(id string) {
	// The in-flight mark stays up until the commit has fully resolved, so a
	// repeated tap during the commit itself is still suppressed.
	defer func() {
		l.mu.Lock()
		delete(l.inflight, id)
		l.mu.Unlock()
	}()

	now := l.clock.Now()
	med, ok := l.store.commitDose(id, now)
	if !ok {
		// Deleted while the settle delay was pending. Not an error: the user
		// legitimately removed the medication. No ledger entry.
		metrics.CommitsAborted.Inc()
		l.logger.Info("Dose commit aborted, medication deleted mid-flight",
			zap.String("medication_id", id))
		return
	}

	entry := DoseLogEntry{
		ID:           uuid.NewString(),
		MedicationID: med.ID,
		Name:         med.Name,
		Dosage:       med.Dosage,
		Form:         med.Form,
		LoggedAt:     now,
	}
	l.ledger.Append(entry)
	metrics.DosesCommitted.Inc()

	l.logger.Info("Dose logged",
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
		zap.Int("remaining_units", med.RemainingUnits),
		zap.Time("next_dose_at", med.NextDoseAt),
	)

	if l.persist != nil {
		if err := l.persist.Save(l.store.List()); err != nil {
			l.logger.Warn("Failed to persist medications after commit", zap.Error(err))
		}
		if err := l.persist.AppendHistory(entry); err != nil {
			l.logger.Warn("Failed to persist ledger entry", zap.Error(err))
		}
	}
}

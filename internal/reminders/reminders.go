// Package reminders runs the periodic sweep that flags overdue medications
// and low inventory.
package reminders

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/metrics"
)

// Reason classifies an alert.
type Reason string

const (
	ReasonOverdue   Reason = "overdue"
	ReasonLowSupply Reason = "low_supply"
)

// Alert describes one medication needing attention.
type Alert struct {
	Medication meds.Medication
	Reason     Reason
}

// Callback receives the alerts of one sweep. Delivery (push, email, UI badge)
// is the caller's concern.
type Callback func([]Alert)

// Notifier schedules the sweep on a cron spec.
type Notifier struct {
	store     *meds.Store
	clock     meds.Clock
	logger    *zap.Logger
	lowSupply int
	callback  Callback

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewNotifier(store *meds.Store, clock meds.Clock, lowSupply int, callback Callback, logger *zap.Logger) *Notifier {
	if clock == nil {
		clock = meds.SystemClock()
	}
	return &Notifier{
		store:     store,
		clock:     clock,
		logger:    logger,
		lowSupply: lowSupply,
		callback:  callback,
	}
}

// Start begins sweeping on the given cron spec (e.g. "*/15 * * * *").
func (n *Notifier) Start(spec string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("reminder notifier already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, n.Sweep); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	c.Start()

	n.cron = c
	n.running = true
	n.logger.Info("Reminder notifier started", zap.String("schedule", spec))
	return nil
}

// Stop halts the sweep. Safe to call twice.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return
	}
	ctx := n.cron.Stop()
	<-ctx.Done()
	n.running = false
	n.logger.Info("Reminder notifier stopped")
}

// Sweep scans the store once and reports alerts. Exported so a one-shot CLI
// check can reuse it.
func (n *Notifier) Sweep() {
	now := n.clock.Now()
	var alerts []Alert

	for _, med := range n.store.List() {
		if meds.IsOverdue(&med, now) {
			alerts = append(alerts, Alert{Medication: med, Reason: ReasonOverdue})
			n.logger.Info("Medication overdue",
				zap.String("medication_id", med.ID),
				zap.String("name", med.Name),
				zap.String("was_due", meds.FormatRelative(med.NextDoseAt, now)),
			)
		}
		if med.RemainingUnits <= n.lowSupply {
			alerts = append(alerts, Alert{Medication: med, Reason: ReasonLowSupply})
			n.logger.Info("Medication supply low",
				zap.String("medication_id", med.ID),
				zap.String("name", med.Name),
				zap.Int("remaining_units", med.RemainingUnits),
			)
		}
	}

	if len(alerts) == 0 {
		return
	}
	metrics.RemindersFired.Add(float64(len(alerts)))
	if n.callback != nil {
		n.callback(alerts)
	}
}

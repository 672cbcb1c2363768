package meds

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gmsas95/dosetrack/internal/errors"
)

const (
	defaultTotalUnits = 30

	// New medications are seeded with a near-future first dose.
	firstDoseLeadTime = time.Hour
)

// Store owns the set of medications. All mutation goes through its methods,
// guarded by a mutex; reads return copies so callers never share memory with
// the store. Subscribers are notified after every successful mutation.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Medication
	clock Clock

	subMu sync.RWMutex
	subs  []func()
}

// NewStore creates an empty store. A nil clock falls back to the system clock.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{
		byID:  make(map[string]*Medication),
		clock: clock,
	}
}

// Subscribe registers a callback invoked after every mutation. Callbacks run
// outside the store lock, so they may freely call back into the store.
func (s *Store) Subscribe(fn func()) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) notify() {
	s.subMu.RLock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// CreateInput carries the fields for a new medication. RemainingUnits and
// TotalUnits are optional: absent values default to 0 and 30.
type CreateInput struct {
	Name           string
	Dosage         string
	Frequency      Frequency
	Form           Form
	RemainingUnits *int
	TotalUnits     *int
}

// Create validates input, assigns a fresh id, seeds the first dose an hour
// out, and inserts the medication at the front of the collection.
func (s *Store) Create(in CreateInput) (*Medication, error) {
	if in.Name == "" {
		return nil, errors.New(errors.ErrValidation.Code, "medication name is required")
	}
	if in.Dosage == "" {
		return nil, errors.New(errors.ErrValidation.Code, "dosage is required")
	}

	remaining := 0
	if in.RemainingUnits != nil {
		remaining = *in.RemainingUnits
	}
	total := defaultTotalUnits
	if in.TotalUnits != nil {
		total = *in.TotalUnits
	}
	if remaining < 0 || total < 0 || remaining > total {
		return nil, errors.New(errors.ErrValidation.Code, "inventory must satisfy 0 <= remaining <= total")
	}

	form := in.Form
	if form == "" {
		form = FormPill
	}
	freq := in.Frequency
	if freq == "" {
		freq = FrequencyDaily
	}

	now := s.clock.Now()
	med := &Medication{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Dosage:         in.Dosage,
		Frequency:      freq,
		Form:           form,
		NextDoseAt:     now.Add(firstDoseLeadTime),
		RemainingUnits: remaining,
		TotalUnits:     total,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.byID[med.ID] = med
	s.order = append([]string{med.ID}, s.order...)
	out := *med
	s.mu.Unlock()

	s.notify()
	return &out, nil
}

// UpdateInput patches a medication. Nil fields are left untouched. Editing
// the frequency does not recompute the pending NextDoseAt; it changes future
// reschedules only. NextDoseAt itself can be moved explicitly.
type UpdateInput struct {
	Name           *string
	Dosage         *string
	Frequency      *Frequency
	Form           *Form
	NextDoseAt     *time.Time
	RemainingUnits *int
	TotalUnits     *int
}

// Update applies a patch to the named medication.
func (s *Store) Update(id string, in UpdateInput) (*Medication, error) {
	s.mu.Lock()
	med, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, errors.ErrMedicationNotFound
	}

	next := *med
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Dosage != nil {
		next.Dosage = *in.Dosage
	}
	if in.Frequency != nil {
		next.Frequency = *in.Frequency
	}
	if in.Form != nil {
		next.Form = *in.Form
	}
	if in.NextDoseAt != nil {
		next.NextDoseAt = *in.NextDoseAt
	}
	if in.RemainingUnits != nil {
		next.RemainingUnits = *in.RemainingUnits
	}
	if in.TotalUnits != nil {
		next.TotalUnits = *in.TotalUnits
	}

	if next.Name == "" || next.Dosage == "" {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrValidation.Code, "name and dosage must not be empty")
	}
	if next.RemainingUnits < 0 || next.RemainingUnits > next.TotalUnits {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrValidation.Code, "inventory must satisfy 0 <= remaining <= total")
	}

	next.UpdatedAt = s.clock.Now()
	*med = next
	out := next
	s.mu.Unlock()

	s.notify()
	return &out, nil
}

// Delete removes a medication. Callers are expected to have obtained user
// confirmation first; the store does not enforce that gate. Ledger entries
// referencing the id are untouched.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return errors.ErrMedicationNotFound
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Get returns a copy of the medication.
func (s *Store) Get(id string) (*Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	med, ok := s.byID[id]
	if !ok {
		return nil, errors.ErrMedicationNotFound
	}
	out := *med
	return &out, nil
}

// List returns copies of all medications, most recently created first.
func (s *Store) List() []Medication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Medication, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Overdue returns the medications whose next dose has passed at now.
func (s *Store) Overdue(now time.Time) []Medication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Medication
	for _, id := range s.order {
		if IsOverdue(s.byID[id], now) {
			out = append(out, *s.byID[id])
		}
	}
	return out
}

// Replace swaps the whole collection, preserving the given order. Used to
// seed the store from persistence at startup.
func (s *Store) Replace(list []Medication) {
	s.mu.Lock()
	s.byID = make(map[string]*Medication, len(list))
	s.order = s.order[:0]
	for i := range list {
		med := list[i]
		s.byID[med.ID] = &med
		s.order = append(s.order, med.ID)
	}
	s.mu.Unlock()

	s.notify()
}

// commitDose applies the dose transaction to a single medication under the
// store lock: decrement inventory (floored at zero) and advance the schedule.
// Returns a snapshot of the updated medication, or false if the id is gone.
func (s *Store) commitDose(id string, now time.Time) (Medication, bool) {
	s.mu.Lock()
	med, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Medication{}, false
	}
	if med.RemainingUnits > 0 {
		med.RemainingUnits--
	}
	med.NextDoseAt = NextDose(med.Frequency, med.NextDoseAt, now)
	med.UpdatedAt = now
	out := *med
	s.mu.Unlock()

	s.notify()
	return out, true
}

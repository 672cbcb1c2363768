package meds

import "sync"

// Ledger is the append-only dose history, newest first. Entries are
// snapshots: deleting or editing a medication never rewrites them.
type Ledger struct {
	mu      sync.RWMutex
	entries []DoseLogEntry
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append inserts an entry at the front. Order reflects commit completion
// time, not call time.
func (l *Ledger) Append(entry DoseLogEntry) {
	l.mu.Lock()
	l.entries = append([]DoseLogEntry{entry}, l.entries...)
	l.mu.Unlock()
}

// Entries returns a copy of the history, newest first.
func (l *Ledger) Entries() []DoseLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]DoseLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForMedication returns the entries recorded against one medication id.
func (l *Ledger) ForMedication(id string) []DoseLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []DoseLogEntry
	for _, e := range l.entries {
		if e.MedicationID == id {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded doses.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Seed replaces the history wholesale. Used at startup; input is expected
// newest first.
func (l *Ledger) Seed(entries []DoseLogEntry) {
	l.mu.Lock()
	l.entries = make([]DoseLogEntry, len(entries))
	copy(l.entries, entries)
	l.mu.Unlock()
}

package meds

// Persistence is the external storage collaborator. The core is in-memory;
// an adapter behind this interface makes it durable. Save receives the full
// current collection, AppendHistory receives one committed ledger entry.
type Persistence interface {
	Load() ([]Medication, error)
	Save([]Medication) error
	AppendHistory(DoseLogEntry) error
	LoadHistory() ([]DoseLogEntry, error)
}

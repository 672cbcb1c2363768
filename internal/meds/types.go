package meds

import (
	"strings"
	"time"
)

// Frequency describes how often a medication is taken. The zero value is not
// valid; unknown strings parse to FrequencyAsNeeded semantics via the
// scheduler's default interval.
type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyNightly    Frequency = "nightly"
	FrequencyTwiceDaily Frequency = "twice_daily"
	FrequencyThriceDaily Frequency = "thrice_daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyAsNeeded   Frequency = "as_needed"
)

// ParseFrequency maps user-facing spellings onto the closed set. Anything it
// does not recognize is returned as-is; the scheduler treats it with the
// default interval.
func ParseFrequency(s string) Frequency {
	switch normalize(s) {
	case "daily", "1x daily", "once daily":
		return FrequencyDaily
	case "nightly", "at night":
		return FrequencyNightly
	case "twice_daily", "twice daily", "2x daily":
		return FrequencyTwiceDaily
	case "thrice_daily", "thrice daily", "3x daily":
		return FrequencyThriceDaily
	case "weekly", "1x weekly":
		return FrequencyWeekly
	case "as_needed", "as needed", "prn":
		return FrequencyAsNeeded
	}
	return Frequency(normalize(s))
}

// Form describes the physical form of a medication. Display only; it never
// affects scheduling.
type Form string

const (
	FormPill      Form = "pill"
	FormLiquid    Form = "liquid"
	FormInjection Form = "injection"
	FormTopical   Form = "topical"
)

// ParseForm maps a string to a Form, defaulting to pill.
func ParseForm(s string) Form {
	switch normalize(s) {
	case "liquid", "syrup":
		return FormLiquid
	case "injection":
		return FormInjection
	case "topical", "cream":
		return FormTopical
	default:
		return FormPill
	}
}

// Medication is the tracked entity. RemainingUnits only decreases through a
// committed dose log (or an explicit inventory edit), and NextDoseAt only
// advances except under an explicit edit.
type Medication struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Dosage         string    `json:"dosage"` // e.g. "500mg", "10 Units"
	Frequency      Frequency `json:"frequency"`
	Form           Form      `json:"form"`
	NextDoseAt     time.Time `json:"next_dose_at"`
	RemainingUnits int       `json:"remaining_units"`
	TotalUnits     int       `json:"total_units"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DoseLogEntry is an immutable ledger record of one committed dose. Name,
// dosage, and form are snapshots taken at commit time so later edits or
// deletes of the medication never rewrite history.
type DoseLogEntry struct {
	ID           string    `json:"id"`
	MedicationID string    `json:"medication_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Form         Form      `json:"form"`
	LoggedAt     time.Time `json:"logged_at"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

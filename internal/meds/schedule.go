package meds

import "time"

// Dose intervals by frequency.
const (
	intervalDaily    = 24 * time.Hour
	intervalTwice    = 12 * time.Hour
	intervalThrice   = 8 * time.Hour
	intervalWeekly   = 7 * 24 * time.Hour
	intervalAsNeeded = 30 * time.Minute
)

// Interval returns the time between doses for a frequency. Unrecognized
// frequencies get the as-needed default.
func Interval(freq Frequency) time.Duration {
	switch freq {
	case FrequencyDaily, FrequencyNightly:
		return intervalDaily
	case FrequencyTwiceDaily:
		return intervalTwice
	case FrequencyThriceDaily:
		return intervalThrice
	case FrequencyWeekly:
		return intervalWeekly
	default:
		return intervalAsNeeded
	}
}

// NextDose computes the next scheduled dose time. The base is the later of
// the current schedule and now: a medication overdue for days restarts its
// interval from now instead of generating a burst of back-to-back doses.
func NextDose(freq Frequency, current, now time.Time) time.Time {
	base := current
	if now.After(base) {
		base = now
	}
	return base.Add(Interval(freq))
}

// IsOverdue reports whether the medication's next dose has passed. As-needed
// medications have no meaningful schedule and are never overdue. Always
// recomputed from the caller's now, never cached.
func IsOverdue(med *Medication, now time.Time) bool {
	if med.Frequency == FrequencyAsNeeded {
		return false
	}
	return now.After(med.NextDoseAt)
}

package meds

import "time"

// FormatRelative renders a schedule timestamp the way the medication list
// shows it: "Today, 15:04", "Tomorrow, 15:04", or "Jan 2, 15:04".
func FormatRelative(t, now time.Time) string {
	clock := t.Format("15:04")
	if sameDay(t, now) {
		return "Today, " + clock
	}
	if sameDay(t, now.AddDate(0, 0, 1)) {
		return "Tomorrow, " + clock
	}
	return t.Format("Jan 2") + ", " + clock
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

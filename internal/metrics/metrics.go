// Package metrics exposes the tracker's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DosesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dosetrack_doses_committed_total",
		Help: "Dose-log transactions that committed.",
	})

	DuplicateTapsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dosetrack_duplicate_taps_suppressed_total",
		Help: "Dose-log requests rejected by the single-flight guard.",
	})

	CommitsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dosetrack_commits_aborted_total",
		Help: "Dose commits aborted because the medication was deleted mid-flight.",
	})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dosetrack_provider_requests_total",
		Help: "Requests to the AI insight provider, by operation.",
	}, []string{"op"})

	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dosetrack_provider_failures_total",
		Help: "Insight provider calls that fell back to canned text, by operation.",
	}, []string{"op"})

	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dosetrack_reminders_fired_total",
		Help: "Overdue or low-supply alerts raised by the reminder sweep.",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

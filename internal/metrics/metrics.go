// Package metrics holds the Prometheus collectors of the ingestion pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome labels
const (
	FetchOK          = "ok"
	FetchNotFound    = "not_found"
	FetchServerError = "server_error"
	FetchOther       = "other"
	FetchTransport   = "transport_error"
	FetchBadPayload  = "bad_payload"
)

// Metrics groups every pipeline collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fetchResponses *prometheus.CounterVec
	recordsDropped prometheus.Counter
	recordsLoaded  prometheus.Counter
	loadFailures   prometheus.Counter
	alertsSent     *prometheus.CounterVec
	alertFailures  prometheus.Counter
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	archivedRows   prometheus.Counter
}

// New registers the pipeline collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchResponses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plants_fetch_responses_total",
				Help: "Plant API responses by outcome",
			},
			[]string{"status"}, // ok, not_found, server_error, other, transport_error, bad_payload
		),
		recordsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "plants_records_dropped_total",
			Help: "Readings excluded by validation",
		}),
		recordsLoaded: f.NewCounter(prometheus.CounterOpts{
			Name: "plants_records_loaded_total",
			Help: "Readings written to the plant fact table",
		}),
		loadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "plants_load_failures_total",
			Help: "Readings that failed to load",
		}),
		alertsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plants_alerts_sent_total",
				Help: "Notifications delivered by task",
			},
			[]string{"task"},
		),
		alertFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "plants_alert_failures_total",
			Help: "Notifications that could not be delivered",
		}),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plants_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"}, // success, failure
		),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "plants_run_duration_seconds",
			Help:    "Duration of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		archivedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "plants_archived_rows_total",
			Help: "Fact rows moved to the archive",
		}),
	}
}

// Handler serves the collectors registered in reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) ObserveFetch(status string) {
	if m == nil {
		return
	}
	m.fetchResponses.WithLabelValues(status).Inc()
}

func (m *Metrics) AddDropped(n int) {
	if m == nil {
		return
	}
	m.recordsDropped.Add(float64(n))
}

func (m *Metrics) IncLoaded() {
	if m == nil {
		return
	}
	m.recordsLoaded.Inc()
}

func (m *Metrics) IncLoadFailure() {
	if m == nil {
		return
	}
	m.loadFailures.Inc()
}

func (m *Metrics) IncAlertSent(task string) {
	if m == nil {
		return
	}
	m.alertsSent.WithLabelValues(task).Inc()
}

func (m *Metrics) IncAlertFailure() {
	if m == nil {
		return
	}
	m.alertFailures.Inc()
}

func (m *Metrics) AddArchived(n int) {
	if m == nil {
		return
	}
	m.archivedRows.Add(float64(n))
}

// ObserveRun records the outcome and duration of one pipeline run
func (m *Metrics) ObserveRun(start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(time.Since(start).Seconds())
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(FetchOK)
	m.ObserveFetch(FetchOK)
	m.ObserveFetch(FetchNotFound)
	m.AddDropped(3)
	m.IncLoaded()
	m.IncLoadFailure()
	m.IncAlertSent("ALERT: Temperature too low!")
	m.IncAlertFailure()
	m.AddArchived(4)
	m.ObserveRun(time.Now(), nil)
	m.ObserveRun(time.Now(), errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.fetchResponses.WithLabelValues(FetchOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.fetchResponses.WithLabelValues(FetchNotFound)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.recordsDropped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recordsLoaded), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.loadFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.alertFailures), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.archivedRows), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("failure")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch(FetchOK)
		m.AddDropped(1)
		m.IncLoaded()
		m.IncLoadFailure()
		m.IncAlertSent("x")
		m.IncAlertFailure()
		m.AddArchived(1)
		m.ObserveRun(time.Now(), nil)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncLoaded()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plants_records_loaded_total 1")
}

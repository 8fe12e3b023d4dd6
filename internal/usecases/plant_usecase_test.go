package usecases

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/plant-monitor/internal/alerts"
	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/integration"
	"github.com/abelzeko/plant-monitor/internal/metrics"
	"github.com/abelzeko/plant-monitor/internal/repository"
	"github.com/abelzeko/plant-monitor/internal/transform"
)

const testBaseURL = "http://plants.test"

type recordingSender struct {
	mu       sync.Mutex
	subjects []string
}

func (s *recordingSender) Send(_ context.Context, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	return nil
}

func plantBody(id int) string {
	temperature := 12.5
	switch id {
	case 10:
		temperature = 6
	case 20:
		temperature = 99
	}
	email := fmt.Sprintf("botanist%d@lnhm.co.uk", id%2)
	return fmt.Sprintf(`{"plant_id": %d, "name": "Plant %d",
"botanist": {"name": "carl linnaeus", "email": %q, "phone": "(146)994-1635x35992"},
"scientific_name": ["Dionaea muscipula"], "cycle": "Perennial", "sunlight": ["Part Shade", "Full Sun"],
"temperature": %v, "soil_moisture": 30.1, "recording_taken": "2023-08-30 14:56:09",
"last_watered": "Wed, 30 Aug 2023 13:54:32 GMT"}`, id, id, email, temperature)
}

type pipelineFixture struct {
	uc       *PipelineUseCase
	repo     *repository.SQLPlantRepository
	sender   *recordingSender
	registry *prometheus.Registry
}

func newPipelineFixture(t *testing.T) pipelineFixture {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	statuses := map[int]int{7: http.StatusNotFound, 23: http.StatusInternalServerError}
	httpmock.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`^`+regexp.QuoteMeta(testBaseURL)+`/plants/(\d+)$`),
		func(req *http.Request) (*http.Response, error) {
			id := int(httpmock.MustGetSubmatchAsInt(req, 1))
			if code, ok := statuses[id]; ok {
				return httpmock.NewStringResponse(code, `{"error": "plant not found"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, plantBody(id)), nil
		})

	cfg := config.Default()
	cfg.API.BaseURL = testBaseURL
	cfg.Limits.Timezone = "UTC"

	repo, err := repository.NewSQLitePlantRepository(context.Background(), filepath.Join(t.TempDir(), "plants.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sender := &recordingSender{}

	api := integration.NewPlantAPI(cfg.API, integration.NewMissingLog(filepath.Join(t.TempDir(), "missing.json")), m)
	uc := NewPipelineUseCase(
		api,
		transform.NewNormalizer(),
		transform.NewValidator(cfg.Limits),
		alerts.NewAlerter(cfg.Limits, sender, m),
		repository.NewLoader(repo, m),
		m,
	)
	return pipelineFixture{uc: uc, repo: repo, sender: sender, registry: reg}
}

func TestPipelineUseCase_Run(t *testing.T) {
	f := newPipelineFixture(t)

	report, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err)

	assert.Equal(t, 48, report.Fetched)
	assert.Equal(t, 2, report.Missing)
	assert.Equal(t, 48, report.Normalized)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 1, report.Alerted)
	assert.Equal(t, 47, report.Loaded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{alerts.TaskTemperatureLow}, f.sender.subjects)

	ctx := context.Background()
	for table, want := range map[string]int{"plant": 47, "botanist": 2, "species": 1, "cycle": 1, "sunlight": 1} {
		n, err := f.repo.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	id, err := f.repo.ResolveDimension(ctx, entities.DimensionSunlight, "full sun, part shade")
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestPipelineUseCase_RunTwice(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	for range 2 {
		_, err := f.uc.Run(ctx)
		require.NoError(t, err)
	}

	for table, want := range map[string]int{"plant": 94, "botanist": 2, "species": 1, "cycle": 1, "sunlight": 1} {
		n, err := f.repo.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	assert.Equal(t, 94.0, counterValue(t, f.registry, "plants_records_loaded_total"))
	assert.Equal(t, 2.0, counterValue(t, f.registry, "plants_records_dropped_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestPipelineUseCase_ReadingWithoutRecordingTimeIsNotLoaded(t *testing.T) {
	f := newPipelineFixture(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/plants/30",
		httpmock.NewStringResponder(http.StatusOK, `{"plant_id": 30, "name": "Plant 30",
"botanist": {"name": "carl linnaeus", "email": "botanist0@lnhm.co.uk", "phone": "(146)994-1635x35992"},
"temperature": 12.5, "soil_moisture": 30.1, "last_watered": "Wed, 30 Aug 2023 13:54:32 GMT"}`))
	ctx := context.Background()

	report, err := f.uc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, 46, report.Loaded)

	// every loaded reading has a recording time, so all of them age out
	entries, err := f.repo.DeleteOlderThan(ctx, time.Now().AddDate(100, 0, 0))
	require.NoError(t, err)
	assert.Len(t, entries, 46)

	n, err := f.repo.CountRows(ctx, "plant")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipelineUseCase_TransportErrorAbortsRun(t *testing.T) {
	f := newPipelineFixture(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/plants/12",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	report, err := f.uc.Run(context.Background())
	require.ErrorIs(t, err, integration.ErrTransport)
	assert.Zero(t, report.Loaded)

	n, err := f.repo.CountRows(context.Background(), "plant")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipelineUseCase_LostConnectionAbortsRun(t *testing.T) {
	f := newPipelineFixture(t)
	require.NoError(t, f.repo.Close())

	_, err := f.uc.Run(context.Background())
	assert.ErrorIs(t, err, repository.ErrConnection)
}

func TestPipelineUseCase_WithoutAlerter(t *testing.T) {
	f := newPipelineFixture(t)
	f.uc.alerter = nil

	report, err := f.uc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Alerted)
	assert.Empty(t, f.sender.subjects)
	assert.Equal(t, 47, report.Loaded)
}

func TestPipelineUseCase_ArchiveNotConfigured(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.uc.Archive(context.Background())
	assert.Error(t, err)
}

func TestRunReport_String(t *testing.T) {
	r := RunReport{Fetched: 48, Missing: 2, Normalized: 48, Dropped: 1, Alerted: 1, Loaded: 47}
	assert.Equal(t, "fetched=48 missing=2 normalized=48 dropped=1 alerted=1 alerts_failed=0 loaded=47 failed=0", r.String())
}

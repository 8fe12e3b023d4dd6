// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/plant-monitor/internal/alerts"
	"github.com/abelzeko/plant-monitor/internal/archive"
	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/metrics"
	"github.com/abelzeko/plant-monitor/internal/repository"
	"github.com/abelzeko/plant-monitor/internal/transform"
)

// Fetcher retrieves the raw readings of one run
type Fetcher interface {
	FetchPlants(ctx context.Context) (map[int]entities.RawReading, error)
	Requested() int
}

// RunReport counts what happened to the readings of one run
type RunReport struct {
	Fetched      int
	Missing      int
	Normalized   int
	Dropped      int
	Alerted      int
	AlertsFailed int
	Loaded       int
	Failed       int
	// Err joins per-record load and alert failures; they do not fail the run
	Err error
}

func (r RunReport) String() string {
	return fmt.Sprintf("fetched=%d missing=%d normalized=%d dropped=%d alerted=%d alerts_failed=%d loaded=%d failed=%d",
		r.Fetched, r.Missing, r.Normalized, r.Dropped, r.Alerted, r.AlertsFailed, r.Loaded, r.Failed)
}

// PipelineUseCase runs fetch, normalize, validate, alert and load once per call
type PipelineUseCase struct {
	fetcher    Fetcher
	normalizer *transform.Normalizer
	validator  *transform.Validator
	alerter    *alerts.Alerter
	loader     *repository.Loader
	archiver   *archive.Archiver
	metrics    *metrics.Metrics
}

// NewPipelineUseCase creates a pipeline. alerter may be nil to skip alerting.
func NewPipelineUseCase(
	fetcher Fetcher,
	normalizer *transform.Normalizer,
	validator *transform.Validator,
	alerter *alerts.Alerter,
	loader *repository.Loader,
	m *metrics.Metrics,
) *PipelineUseCase {
	return &PipelineUseCase{
		fetcher:    fetcher,
		normalizer: normalizer,
		validator:  validator,
		alerter:    alerter,
		loader:     loader,
		metrics:    m,
	}
}

// WithArchiver enables Archive on the pipeline
func (uc *PipelineUseCase) WithArchiver(a *archive.Archiver) *PipelineUseCase {
	uc.archiver = a
	return uc
}

// Run executes one pipeline pass. The returned error is set only for failures
// that abort the run: a transport error while fetching, a 5xx under the abort
// policy, or a lost database connection.
func (uc *PipelineUseCase) Run(ctx context.Context) (report RunReport, err error) {
	start := time.Now()
	defer func() { uc.metrics.ObserveRun(start, err) }()

	log.Println("Starting plant pipeline run...")

	raw, err := uc.fetcher.FetchPlants(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch plant data: %w", err)
	}
	report.Fetched = len(raw)
	report.Missing = uc.fetcher.Requested() - len(raw)

	normalized := uc.normalizer.NormalizeAll(raw)
	report.Normalized = len(normalized)

	validated := uc.validator.ValidateAll(normalized)
	report.Dropped = validated.Dropped
	uc.metrics.AddDropped(validated.Dropped)

	var errs []error
	if uc.alerter != nil {
		alertReport := uc.alerter.Run(ctx, validated.Records)
		report.Alerted = alertReport.Sent
		report.AlertsFailed = alertReport.Failed
		if alertReport.Err != nil {
			errs = append(errs, alertReport.Err)
		}
	}

	loadReport, err := uc.loader.LoadAll(ctx, validated.Records)
	report.Loaded = loadReport.Loaded
	report.Failed = loadReport.Failed
	if loadReport.Err != nil {
		errs = append(errs, loadReport.Err)
	}
	report.Err = errors.Join(errs...)
	if err != nil {
		return report, fmt.Errorf("failed to load plant data: %w", err)
	}

	log.Printf("Pipeline run finished: %s", report)
	return report, nil
}

// Archive moves readings past the retention window to object storage
func (uc *PipelineUseCase) Archive(ctx context.Context) (archive.Result, error) {
	if uc.archiver == nil {
		return archive.Result{}, errors.New("archiving is not configured")
	}
	return uc.archiver.Run(ctx)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/metrics"
)

// Loader writes validated records into the star schema
type Loader struct {
	repo    PlantRepository
	metrics *metrics.Metrics
}

// NewLoader creates a Loader on top of repo
func NewLoader(repo PlantRepository, m *metrics.Metrics) *Loader {
	return &Loader{repo: repo, metrics: m}
}

// LoadReport summarizes one loading pass
type LoadReport struct {
	Loaded int
	Failed int
	// Err joins the per-record failures
	Err error
}

// Load ensures the dimension rows of rec, resolves their ids and inserts the
// fact row. Each statement commits on its own.
func (l *Loader) Load(ctx context.Context, rec entities.ValidatedRecord) (entities.DimensionKeys, error) {
	var keys entities.DimensionKeys

	for _, dim := range entities.Dimensions {
		key, attrs := dimensionKey(dim, rec)
		inserted, err := l.repo.EnsureDimension(ctx, dim, key, attrs...)
		if err != nil {
			return keys, err
		}
		if inserted {
			log.Printf("Added %s %q", dim, key)
		}
	}

	for _, dim := range entities.Dimensions {
		key, _ := dimensionKey(dim, rec)
		id, err := l.repo.ResolveDimension(ctx, dim, key)
		if err != nil {
			return keys, err
		}
		switch dim {
		case entities.DimensionCycle:
			keys.CycleID = id
		case entities.DimensionSpecies:
			keys.SpeciesID = id
		case entities.DimensionBotanist:
			keys.BotanistID = id
		case entities.DimensionSunlight:
			keys.SunlightID = id
		}
	}

	if err := l.repo.InsertPlant(ctx, keys, rec); err != nil {
		return keys, err
	}
	return keys, nil
}

// LoadAll loads every record in order. A failed record is logged and skipped,
// unless the database itself has become unreachable, which stops the pass and
// is returned as an ErrConnection error.
func (l *Loader) LoadAll(ctx context.Context, records []entities.ValidatedRecord) (LoadReport, error) {
	var (
		report LoadReport
		errs   []error
	)

	for _, rec := range records {
		if _, err := l.Load(ctx, rec); err != nil {
			if pingErr := l.repo.Ping(ctx); pingErr != nil {
				report.Err = errors.Join(errs...)
				return report, fmt.Errorf("%w: loading plant_id %d: %w", ErrConnection, rec.PlantID, err)
			}
			log.Printf("Failed to load plant_id %d (%s): %v", rec.PlantID, rec.PlantName, err)
			report.Failed++
			l.metrics.IncLoadFailure()
			errs = append(errs, fmt.Errorf("plant_id %d: %w", rec.PlantID, err))
			continue
		}
		report.Loaded++
		l.metrics.IncLoaded()
	}

	report.Err = errors.Join(errs...)
	return report, nil
}

func dimensionKey(dim entities.Dimension, rec entities.ValidatedRecord) (string, []string) {
	switch dim {
	case entities.DimensionCycle:
		return rec.Cycle, nil
	case entities.DimensionSpecies:
		return rec.ScientificName, nil
	case entities.DimensionBotanist:
		return rec.BotanistEmail, []string{rec.BotanistName, rec.BotanistPhone}
	default:
		return rec.Sunlight, nil
	}
}

// Package archive moves old plant readings out of the warehouse into CSV
// files in object storage
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/metrics"
)

const keyTimeLayout = "2006-01-02_15-04-05"

// Columns is the CSV header of an archive file
var Columns = []string{
	"plant_entry_id", "scientific_name", "botanist_name", "botanist_email",
	"cycle", "sunlight", "temperature", "soil_moisture", "humidity",
	"last_watered", "recording_taken",
}

// Source yields and removes the readings to archive
type Source interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]entities.PlantEntry, error)
}

// Store receives rendered archive files
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Result describes one archive run
type Result struct {
	Rows int
	Key  string
}

// Archiver deletes readings older than the retention window and uploads them
type Archiver struct {
	source   Source
	store    Store
	cfg      config.ArchiveConfig
	loc      *time.Location
	metrics  *metrics.Metrics
	now      func() time.Time
	spillDir string
}

// NewArchiver creates an Archiver. Timestamps in the file are rendered in loc.
func NewArchiver(source Source, store Store, cfg config.ArchiveConfig, loc *time.Location, m *metrics.Metrics) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	return &Archiver{
		source:   source,
		store:    store,
		cfg:      cfg,
		loc:      loc,
		metrics:  m,
		now:      time.Now,
		spillDir: os.TempDir(),
	}
}

// Key returns the object key for an archive taken at t
func (a *Archiver) Key(t time.Time) string {
	return a.cfg.Prefix + "plants_" + t.In(a.loc).Format(keyTimeLayout) + ".csv"
}

// Run archives every reading recorded before now minus the retention window.
// Nothing is uploaded when no rows qualify. The rows are already deleted when
// the upload runs, so a failed upload leaves the file in the spill directory.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	now := a.now()
	cutoff := now.Add(-a.cfg.Retention)

	entries, err := a.source.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("failed to collect old readings: %w", err)
	}
	if len(entries) == 0 {
		log.Printf("No readings older than %s to archive", cutoff.In(a.loc).Format(time.DateTime))
		return Result{}, nil
	}

	body, err := a.Render(entries)
	if err != nil {
		return Result{}, err
	}

	key := a.Key(now)
	if err := a.store.Put(ctx, key, body, "text/csv"); err != nil {
		spill := filepath.Join(a.spillDir, filepath.Base(key))
		if werr := os.WriteFile(spill, body, 0o644); werr != nil {
			log.Printf("Error: failed to keep archive locally: %v", werr)
		} else {
			log.Printf("Upload failed, archive kept at %s", spill)
		}
		return Result{Rows: len(entries)}, err
	}

	a.metrics.AddArchived(len(entries))
	log.Printf("Archived %d readings to %s", len(entries), key)
	return Result{Rows: len(entries), Key: key}, nil
}

// Render writes entries as CSV with a header row
func (a *Archiver) Render(entries []entities.PlantEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.ScientificName,
			e.BotanistName,
			e.BotanistEmail,
			e.Cycle,
			e.Sunlight,
			formatFloat(e.Temperature),
			formatFloat(e.SoilMoisture),
			formatFloat(e.Humidity),
			a.formatTime(e.LastWatered),
			a.formatTime(e.RecordingTaken),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row %d: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to render CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (a *Archiver) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(a.loc).Format(time.DateTime)
}

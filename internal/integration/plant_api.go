// Package integration handles external service interactions
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrTransport is returned when a request could not be completed at all
	ErrTransport = errors.New("plant API transport failure")
	// ErrServer is returned for a 5xx response under the abort policy
	ErrServer = errors.New("plant API server error")
)

// PlantAPI fetches raw plant readings from the plants API
type PlantAPI struct {
	baseURL            string
	startID            int
	endID              int
	concurrency        int
	abortOnServerError bool
	client             *http.Client
	missing            *MissingLog
	metrics            *metrics.Metrics
}

// NewPlantAPI creates a fetcher for ids in [cfg.StartID, cfg.EndID)
func NewPlantAPI(cfg config.APIConfig, missing *MissingLog, m *metrics.Metrics) *PlantAPI {
	if missing == nil {
		missing = NewMissingLog("")
	}
	return &PlantAPI{
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		startID:            cfg.StartID,
		endID:              cfg.EndID,
		concurrency:        cfg.Concurrency,
		abortOnServerError: cfg.ServerErrorPolicy == config.ServerErrorAbort,
		// nil Transport resolves http.DefaultTransport per request
		client:  &http.Client{Timeout: cfg.Timeout},
		missing: missing,
		metrics: m,
	}
}

// PlantURL returns the endpoint for a single plant
func (p *PlantAPI) PlantURL(plantID int) string {
	return fmt.Sprintf("%s/plants/%d", p.baseURL, plantID)
}

// Requested returns how many plant ids one fetch asks for
func (p *PlantAPI) Requested() int { return p.endID - p.startID }

// MissingLog exposes the log of ids that were not served
func (p *PlantAPI) MissingLog() *MissingLog { return p.missing }

// FetchPlants requests every plant id concurrently and returns the readings
// that came back with 200, keyed by plant id. 404 and, under the skip policy,
// 5xx responses are written to the missing-data log and left out. A transport
// failure on any id, or a 5xx under the abort policy, fails the whole fetch.
func (p *PlantAPI) FetchPlants(ctx context.Context) (map[int]entities.RawReading, error) {
	log.Printf("Fetching plants %d..%d from %s", p.startID, p.endID-1, p.baseURL)

	var (
		mu       sync.Mutex
		readings = make(map[int]entities.RawReading, p.endID-p.startID)
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for plantID := p.startID; plantID < p.endID; plantID++ {
		g.Go(func() error {
			reading, ok, err := p.fetchPlant(gctx, plantID)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			readings[plantID] = reading
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("Error fetching plants: %v", err)
		return nil, err
	}

	log.Printf("Fetched %d plants, %d logged as missing", len(readings), p.missing.Len())
	return readings, nil
}

// fetchPlant reports ok=false for responses that are logged and skipped
func (p *PlantAPI) fetchPlant(ctx context.Context, plantID int) (entities.RawReading, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.PlantURL(plantID), nil)
	if err != nil {
		return entities.RawReading{}, false, fmt.Errorf("failed to build request for plant_id %d: %w", plantID, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		p.metrics.ObserveFetch(metrics.FetchTransport)
		return entities.RawReading{}, false, fmt.Errorf("%w for plant_id %d: %w", ErrTransport, plantID, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			p.metrics.ObserveFetch(metrics.FetchTransport)
			return entities.RawReading{}, false, fmt.Errorf("%w reading body of plant_id %d: %w", ErrTransport, plantID, err)
		}
		if !json.Valid(body) {
			p.metrics.ObserveFetch(metrics.FetchBadPayload)
			log.Printf("Warning: plant_id %d returned a body that is not JSON, skipping", plantID)
			return entities.RawReading{}, false, nil
		}
		p.metrics.ObserveFetch(metrics.FetchOK)
		return entities.RawReading{PlantID: plantID, Body: body}, true, nil

	case res.StatusCode == http.StatusNotFound:
		p.metrics.ObserveFetch(metrics.FetchNotFound)
		log.Printf("Warning: no data for plant_id %d (404)", plantID)
		p.missing.Record(plantID, res.StatusCode)
		return entities.RawReading{}, false, nil

	case res.StatusCode >= http.StatusInternalServerError:
		p.metrics.ObserveFetch(metrics.FetchServerError)
		p.missing.Record(plantID, res.StatusCode)
		if p.abortOnServerError {
			return entities.RawReading{}, false, fmt.Errorf("%w: plant_id %d returned %d", ErrServer, plantID, res.StatusCode)
		}
		log.Printf("Warning: server error for plant_id %d (%d)", plantID, res.StatusCode)
		return entities.RawReading{}, false, nil

	default:
		p.metrics.ObserveFetch(metrics.FetchOther)
		log.Printf("Warning: unexpected status for plant_id %d: %d %s", plantID, res.StatusCode, res.Status)
		return entities.RawReading{}, false, nil
	}
}

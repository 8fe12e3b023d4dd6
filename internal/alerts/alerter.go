// Package alerts raises notifications for readings outside the domain bounds
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/abelzeko/plant-monitor/internal/metrics"
)

// Alert tasks, used as notification subjects
const (
	TaskTemperatureLow  = "ALERT: Temperature too low!"
	TaskTemperatureHigh = "ALERT: Temperature too high!"
	TaskSoilMoistureLow = "ALERT: Soil moisture too low!"
)

// soilAlertMargin matches the validation margin: soil moisture only alerts
// once it is below the lower limit by this much
const soilAlertMargin = 5

// Sender delivers one notification
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Alerter checks validated readings against the original domain bounds
type Alerter struct {
	limits  config.Limits
	sender  Sender
	metrics *metrics.Metrics
}

// NewAlerter creates an Alerter that delivers through sender
func NewAlerter(limits config.Limits, sender Sender, m *metrics.Metrics) *Alerter {
	return &Alerter{limits: limits, sender: sender, metrics: m}
}

// Report summarizes one alerting pass
type Report struct {
	Raised int
	Sent   int
	Failed int
	Err    error
}

// Evaluate returns one notification per breached condition of the record
func (a *Alerter) Evaluate(r entities.ValidatedRecord) []entities.Notification {
	var out []entities.Notification

	if t, ok := r.Temperature.Get(); ok {
		if t < a.limits.LowerTemp {
			out = append(out, entities.Notification{
				PlantID: r.PlantID,
				Task:    TaskTemperatureLow,
				Message: fmt.Sprintf("Temperature for %s was noted to be low at %s.", r.PlantName, formatReading(t)),
			})
		}
		if t > a.limits.UpperTemp {
			out = append(out, entities.Notification{
				PlantID: r.PlantID,
				Task:    TaskTemperatureHigh,
				Message: fmt.Sprintf("Temperature for %s was noted to be high at %s.", r.PlantName, formatReading(t)),
			})
		}
	}

	if m, ok := r.SoilMoisture.Get(); ok && m < a.limits.LowerSoil-soilAlertMargin {
		out = append(out, entities.Notification{
			PlantID: r.PlantID,
			Task:    TaskSoilMoistureLow,
			Message: fmt.Sprintf("Soil moisture for %s was noted to be low at %s.", r.PlantName, formatReading(m)),
		})
	}

	return out
}

// Run evaluates every record and sends each notification once. Failed sends
// are counted and reported, never retried.
func (a *Alerter) Run(ctx context.Context, records []entities.ValidatedRecord) Report {
	var (
		rep  Report
		errs []error
	)
	for _, r := range records {
		for _, n := range a.Evaluate(r) {
			rep.Raised++
			if err := a.sender.Send(ctx, n.Task, n.Message); err != nil {
				rep.Failed++
				a.metrics.IncAlertFailure()
				log.Printf("Warning: failed to send %q for plant_id %d: %v", n.Task, n.PlantID, err)
				errs = append(errs, fmt.Errorf("plant_id %d: %w", n.PlantID, err))
				continue
			}
			rep.Sent++
			a.metrics.IncAlertSent(n.Task)
		}
	}
	rep.Err = errors.Join(errs...)
	log.Printf("Alerts raised: %d, sent: %d, failed: %d", rep.Raised, rep.Sent, rep.Failed)
	return rep
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package transform

import (
	"log"
	"time"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
)

// Timestamp layouts accepted from the API
const (
	RecordingTimeLayout = "2006-01-02 15:04:05"
	LastWateredLayout   = "Mon, 02 Jan 2006 15:04:05 MST"
)

// validationMargin widens the domain bounds so that plausible fluctuations
// still load and only sensor faults are excluded
const validationMargin = 5

// Validator applies per-field format and range checks
type Validator struct {
	limits config.Limits
	loc    *time.Location
}

// NewValidator creates a Validator for the given bounds
func NewValidator(limits config.Limits) *Validator {
	return &Validator{limits: limits, loc: limits.Location()}
}

// Result is the outcome of validating a batch
type Result struct {
	Records []entities.ValidatedRecord
	Dropped int
}

// ValidateAll keeps the records with no invalid field and counts the rest
func (v *Validator) ValidateAll(records []entities.NormalizedRecord) Result {
	res := Result{Records: make([]entities.ValidatedRecord, 0, len(records))}
	for _, r := range records {
		validated, invalid := v.Validate(r)
		if len(invalid) > 0 {
			res.Dropped++
			log.Printf("Warning: dropping plant_id %d (%s), invalid fields: %v",
				r.PlantID, r.PlantName.OrSentinel(), invalid)
			continue
		}
		res.Records = append(res.Records, validated)
	}
	log.Printf("Validated %d records, dropped %d", len(res.Records), res.Dropped)
	return res
}

// Validate checks a single record. The returned names list every field that
// failed; the record is only usable when that list is empty.
func (v *Validator) Validate(r entities.NormalizedRecord) (entities.ValidatedRecord, []string) {
	out := entities.ValidatedRecord{
		PlantID:        r.PlantID,
		BotanistName:   r.BotanistName.OrSentinel(),
		BotanistEmail:  r.BotanistEmail.OrSentinel(),
		BotanistPhone:  r.BotanistPhone.OrSentinel(),
		PlantName:      r.PlantName.OrSentinel(),
		ScientificName: r.ScientificName.OrSentinel(),
		Cycle:          r.Cycle.OrSentinel(),
		Sunlight:       r.Sunlight.OrSentinel(),
		RecordingTime:  v.CheckRecordingTime(r.RecordingTime),
		LastWatered:    v.CheckLastWatered(r.LastWatered),
		Temperature:    v.CheckTemperature(r.Temperature),
		SoilMoisture:   v.CheckSoilMoisture(r.SoilMoisture),
		Humidity:       r.Humidity,
	}

	var invalid []string
	// every reading must say when it was taken; archiving keys on it
	if !out.RecordingTime.IsPresent() {
		invalid = append(invalid, "recording_time")
	}
	if out.LastWatered.IsInvalid() {
		invalid = append(invalid, "last_watered")
	}
	if out.Temperature.IsInvalid() {
		invalid = append(invalid, "temperature")
	}
	if out.SoilMoisture.IsInvalid() {
		invalid = append(invalid, "soil_moisture")
	}
	return out, invalid
}

// CheckRecordingTime parses "YYYY-MM-DD HH:MM:SS" in the configured timezone
func (v *Validator) CheckRecordingTime(f entities.Field[string]) entities.Field[time.Time] {
	s, ok := f.Get()
	if !ok {
		return passState[time.Time](f.State)
	}
	t, err := time.ParseInLocation(RecordingTimeLayout, s, v.loc)
	if err != nil {
		return entities.Invalid[time.Time]()
	}
	return entities.Present(t)
}

// CheckLastWatered parses "Wed, 30 Aug 2023 13:54:32 GMT" and converts it to
// the configured timezone
func (v *Validator) CheckLastWatered(f entities.Field[string]) entities.Field[time.Time] {
	s, ok := f.Get()
	if !ok {
		return passState[time.Time](f.State)
	}
	t, err := time.Parse(LastWateredLayout, s)
	if err != nil {
		return entities.Invalid[time.Time]()
	}
	return entities.Present(t.In(v.loc))
}

// CheckTemperature accepts values within the temperature limits widened by
// the validation margin on both sides
func (v *Validator) CheckTemperature(f entities.Field[float64]) entities.Field[float64] {
	t, ok := f.Get()
	if !ok {
		return f
	}
	if t < v.limits.LowerTemp-validationMargin || t > v.limits.UpperTemp+validationMargin {
		return entities.Invalid[float64]()
	}
	return f
}

// CheckSoilMoisture only enforces the widened lower bound
func (v *Validator) CheckSoilMoisture(f entities.Field[float64]) entities.Field[float64] {
	m, ok := f.Get()
	if !ok {
		return f
	}
	if m < v.limits.LowerSoil-validationMargin {
		return entities.Invalid[float64]()
	}
	return f
}

func passState[T any](s entities.FieldState) entities.Field[T] {
	if s == entities.StateInvalid {
		return entities.Invalid[T]()
	}
	return entities.Unknown[T]()
}

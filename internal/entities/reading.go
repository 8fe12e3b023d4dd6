package entities

import (
	"encoding/json"
	"time"
)

// RawReading is one plant payload exactly as the API returned it
type RawReading struct {
	PlantID int
	Body    json.RawMessage
}

// NormalizedRecord is the flat form of a RawReading. Every field is always
// set: values missing from the source are Unknown, never absent.
type NormalizedRecord struct {
	PlantID        int
	BotanistName   Field[string]
	BotanistEmail  Field[string]
	BotanistPhone  Field[string]
	LastWatered    Field[string]
	PlantName      Field[string]
	ScientificName Field[string]
	RecordingTime  Field[string]
	Cycle          Field[string]
	Temperature    Field[float64]
	SoilMoisture   Field[float64]
	Sunlight       Field[string]
	Humidity       Field[float64]
}

// RecordKeys lists the keys of NormalizedRecord.Fields in output order
var RecordKeys = []string{
	"botanist_name",
	"botanist_email",
	"botanist_phone",
	"last_watered",
	"plant_name",
	"scientific_name",
	"recording_time",
	"cycle",
	"temperature",
	"soil_moisture",
	"sunlight",
	"humidity",
}

// Fields returns the record as a key/value view with all twelve keys
func (r NormalizedRecord) Fields() map[string]string {
	return map[string]string{
		"botanist_name":   r.BotanistName.String(),
		"botanist_email":  r.BotanistEmail.String(),
		"botanist_phone":  r.BotanistPhone.String(),
		"last_watered":    r.LastWatered.String(),
		"plant_name":      r.PlantName.String(),
		"scientific_name": r.ScientificName.String(),
		"recording_time":  r.RecordingTime.String(),
		"cycle":           r.Cycle.String(),
		"temperature":     r.Temperature.String(),
		"soil_moisture":   r.SoilMoisture.String(),
		"sunlight":        r.Sunlight.String(),
		"humidity":        r.Humidity.String(),
	}
}

// ValidatedRecord is a NormalizedRecord whose checked fields are all either
// present and accepted or unknown. It never carries an invalid field.
type ValidatedRecord struct {
	PlantID        int
	BotanistName   string
	BotanistEmail  string
	BotanistPhone  string
	PlantName      string
	ScientificName string
	Cycle          string
	Sunlight       string
	LastWatered    Field[time.Time]
	RecordingTime  Field[time.Time]
	Temperature    Field[float64]
	SoilMoisture   Field[float64]
	Humidity       Field[float64]
}

// Notification is a single alert raised for an out-of-range reading
type Notification struct {
	PlantID int
	Task    string
	Message string
}

// Package transform turns raw plant payloads into validated records
package transform

import (
	"log"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/abelzeko/plant-monitor/internal/entities"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalizer flattens raw API payloads into NormalizedRecords
type Normalizer struct {
	title cases.Caser
}

// NewNormalizer creates a Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{title: cases.Title(language.Und)}
}

// NormalizeAll normalizes every reading, ordered by plant id
func (n *Normalizer) NormalizeAll(readings map[int]entities.RawReading) []entities.NormalizedRecord {
	ids := make([]int, 0, len(readings))
	for id := range readings {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	records := make([]entities.NormalizedRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, n.Normalize(readings[id]))
	}
	log.Printf("Normalized %d plant readings", len(records))
	return records
}

// Normalize maps one payload onto a NormalizedRecord. It never fails: any
// value that is missing, null or unusable becomes Unknown.
func (n *Normalizer) Normalize(raw entities.RawReading) entities.NormalizedRecord {
	doc := gjson.ParseBytes(raw.Body)

	name := textField(doc.Get("botanist.name"))
	if v, ok := name.Get(); ok {
		name = entities.Present(n.title.String(v))
	}

	return entities.NormalizedRecord{
		PlantID:        raw.PlantID,
		BotanistName:   name,
		BotanistEmail:  textField(doc.Get("botanist.email")),
		BotanistPhone:  textField(doc.Get("botanist.phone")),
		LastWatered:    textField(doc.Get("last_watered")),
		PlantName:      textField(doc.Get("name")),
		ScientificName: firstOf(doc.Get("scientific_name")),
		RecordingTime:  textField(doc.Get("recording_taken")),
		Cycle:          textField(doc.Get("cycle")),
		Temperature:    NumberField(doc.Get("temperature")),
		SoilMoisture:   NumberField(doc.Get("soil_moisture")),
		Sunlight:       sunlightField(doc.Get("sunlight")),
		Humidity:       NumberField(doc.Get("humidity")),
	}
}

// NumberField accepts JSON numbers and numeric strings. Anything else,
// including NaN and infinities, is Unknown.
func NumberField(r gjson.Result) entities.Field[float64] {
	switch r.Type {
	case gjson.Number:
		return entities.Present(r.Float())
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return entities.Unknown[float64]()
		}
		return entities.Present(v)
	default:
		return entities.Unknown[float64]()
	}
}

// FormatSunlight joins sunlight descriptors the way they are stored: a
// single entry lower-cased, several entries lower-cased, sorted and joined
// with ", ".
func FormatSunlight(values []string) string {
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(strings.TrimSpace(v))
	}
	if len(lowered) == 1 {
		return lowered[0]
	}
	slices.Sort(lowered)
	return strings.Join(lowered, ", ")
}

func textField(r gjson.Result) entities.Field[string] {
	switch r.Type {
	case gjson.String, gjson.Number:
		s := strings.TrimSpace(r.String())
		if s == "" {
			return entities.Unknown[string]()
		}
		return entities.Present(s)
	default:
		return entities.Unknown[string]()
	}
}

func firstOf(r gjson.Result) entities.Field[string] {
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return entities.Unknown[string]()
		}
		return textField(items[0])
	}
	return textField(r)
}

func sunlightField(r gjson.Result) entities.Field[string] {
	var values []string
	switch {
	case r.IsArray():
		for _, item := range r.Array() {
			if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
				values = append(values, item.Str)
			}
		}
	case r.Type == gjson.String && strings.TrimSpace(r.Str) != "":
		values = append(values, r.Str)
	}
	if len(values) == 0 {
		return entities.Unknown[string]()
	}
	return entities.Present(FormatSunlight(values))
}

package entities

import "time"

// Dimension identifies one of the reference tables of the star schema
type Dimension int

const (
	DimensionCycle Dimension = iota
	DimensionSpecies
	DimensionBotanist
	DimensionSunlight
)

// Dimensions lists every dimension in the order the loader upserts them
var Dimensions = []Dimension{DimensionCycle, DimensionSpecies, DimensionBotanist, DimensionSunlight}

func (d Dimension) String() string {
	switch d {
	case DimensionCycle:
		return "cycle"
	case DimensionSpecies:
		return "species"
	case DimensionBotanist:
		return "botanist"
	case DimensionSunlight:
		return "sunlight"
	default:
		return "unknown"
	}
}

// Table returns the table name of the dimension
func (d Dimension) Table() string { return d.String() }

// IDColumn returns the surrogate key column
func (d Dimension) IDColumn() string { return d.String() + "_id" }

// KeyColumn returns the natural key column
func (d Dimension) KeyColumn() string {
	switch d {
	case DimensionSpecies:
		return "scientific_name"
	case DimensionBotanist:
		return "b_email"
	case DimensionCycle:
		return "cycle_name"
	case DimensionSunlight:
		return "s_description"
	default:
		return ""
	}
}

// DimensionKeys holds resolved surrogate ids for one fact row
type DimensionKeys struct {
	SpeciesID  int64
	BotanistID int64
	CycleID    int64
	SunlightID int64
}

// PlantEntry is one row of the plant fact table joined with its dimensions
type PlantEntry struct {
	ID             int64
	ScientificName string
	BotanistName   string
	BotanistEmail  string
	Cycle          string
	Sunlight       string
	Temperature    *float64
	SoilMoisture   *float64
	Humidity       *float64
	LastWatered    *time.Time
	RecordingTaken *time.Time
}

package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders into the $n form Postgres expects
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockQuery returns the statement that serializes dimension inserts per
// natural key, or "" when the store already serializes writers
func (d dialect) lockQuery() string {
	if d != dialectPostgres {
		return ""
	}
	return "SELECT pg_advisory_xact_lock(hashtext($1))"
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS species (
		species_id INTEGER PRIMARY KEY AUTOINCREMENT,
		scientific_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS botanist (
		botanist_id INTEGER PRIMARY KEY AUTOINCREMENT,
		b_name TEXT,
		b_email TEXT NOT NULL,
		b_phone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cycle (
		cycle_id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sunlight (
		sunlight_id INTEGER PRIMARY KEY AUTOINCREMENT,
		s_description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plant (
		plant_entry_id INTEGER PRIMARY KEY AUTOINCREMENT,
		species_id INTEGER REFERENCES species(species_id),
		temperature REAL,
		soil_moisture REAL,
		humidity REAL,
		last_watered TIMESTAMP,
		recording_taken TIMESTAMP,
		sunlight_id INTEGER REFERENCES sunlight(sunlight_id),
		botanist_id INTEGER REFERENCES botanist(botanist_id),
		cycle_id INTEGER REFERENCES cycle(cycle_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plant_recording_taken ON plant(recording_taken)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS species (
		species_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		scientific_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS botanist (
		botanist_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		b_name TEXT,
		b_email TEXT NOT NULL,
		b_phone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cycle (
		cycle_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		cycle_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sunlight (
		sunlight_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		s_description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plant (
		plant_entry_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		species_id BIGINT REFERENCES species(species_id),
		temperature DOUBLE PRECISION,
		soil_moisture DOUBLE PRECISION,
		humidity DOUBLE PRECISION,
		last_watered TIMESTAMPTZ,
		recording_taken TIMESTAMPTZ,
		sunlight_id BIGINT REFERENCES sunlight(sunlight_id),
		botanist_id BIGINT REFERENCES botanist(botanist_id),
		cycle_id BIGINT REFERENCES cycle(cycle_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plant_recording_taken ON plant(recording_taken)`,
}

// ensureSchema creates the star schema tables when they do not exist yet
func (r *SQLPlantRepository) ensureSchema(ctx context.Context) error {
	stmts := sqliteSchema
	if r.dialect == dialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

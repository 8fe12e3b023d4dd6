// Package repository provides data access implementations
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/entities"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnresolvedDimension is returned when a dimension row cannot be found by
// its natural key after it was ensured
var ErrUnresolvedDimension = errors.New("dimension row did not resolve")

// ErrConnection marks a failure of the database handle itself
var ErrConnection = errors.New("database connection failed")

// PlantRepository defines the persistence operations of the plant warehouse
type PlantRepository interface {
	// EnsureDimension inserts the dimension row for key unless one exists.
	// attrs carries directly-owned columns (botanist name and phone).
	EnsureDimension(ctx context.Context, dim entities.Dimension, key string, attrs ...string) (bool, error)
	ResolveDimension(ctx context.Context, dim entities.Dimension, key string) (int64, error)
	InsertPlant(ctx context.Context, keys entities.DimensionKeys, rec entities.ValidatedRecord) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]entities.PlantEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLPlantRepository implements PlantRepository on database/sql for SQLite and Postgres
type SQLPlantRepository struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the configured database and creates missing tables
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLPlantRepository, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLitePlantRepository(ctx, cfg.DSN)
	case config.DriverPostgres:
		return NewPostgresPlantRepository(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLitePlantRepository opens (and creates) a SQLite database at dsn
func NewSQLitePlantRepository(ctx context.Context, dsn string) (*SQLPlantRepository, error) {
	if dsn == "" {
		dsn = filepath.Join("data", "plants.db")
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	log.Printf("Opening SQLite database at %s", dsn)
	return open(ctx, config.DriverSQLite, dsn, dialectSQLite)
}

// NewPostgresPlantRepository connects to Postgres through pgx
func NewPostgresPlantRepository(ctx context.Context, dsn string) (*SQLPlantRepository, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}
	log.Printf("Connecting to Postgres")
	return open(ctx, config.DriverPostgres, dsn, dialectPostgres)
}

func open(ctx context.Context, driver, dsn string, d dialect) (*SQLPlantRepository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one handle per run, used sequentially
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	r := &SQLPlantRepository{db: db, dialect: d}
	if err := r.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the database connection
func (r *SQLPlantRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is still reachable
func (r *SQLPlantRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureDimension checks for the natural key and inserts it when absent.
// Reports whether a row was added.
//
// The insert re-checks the key in the same statement. SQLite serializes
// writers, which makes that enough; on Postgres the insert also holds a
// transaction-level advisory lock on the natural key, since two READ
// COMMITTED statements could otherwise both see the key as missing.
func (r *SQLPlantRepository) EnsureDimension(ctx context.Context, dim entities.Dimension, key string, attrs ...string) (bool, error) {
	var exists bool
	existsQuery := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", dim.Table(), dim.KeyColumn())
	if err := r.db.QueryRowContext(ctx, r.dialect.rebind(existsQuery), key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s %q: %w", dim, key, err)
	}
	if exists {
		return false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if lock := r.dialect.lockQuery(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock, dim.Table()+":"+key); err != nil {
			return false, fmt.Errorf("failed to lock %s %q: %w", dim, key, err)
		}
	}

	query, args := r.insertDimension(dim, key, attrs)
	res, err := tx.ExecContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s %q: %w", dim, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert %s %q: %w", dim, key, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit %s %q: %w", dim, key, err)
	}
	return n > 0, nil
}

func (r *SQLPlantRepository) insertDimension(dim entities.Dimension, key string, attrs []string) (string, []any) {
	guard := fmt.Sprintf("WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", dim.Table(), dim.KeyColumn())

	if dim == entities.DimensionBotanist {
		name, phone := entities.Sentinel, entities.Sentinel
		if len(attrs) > 0 {
			name = attrs[0]
		}
		if len(attrs) > 1 {
			phone = attrs[1]
		}
		query := "INSERT INTO botanist (b_name, b_email, b_phone) " +
			"SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT) " + guard
		return query, []any{name, key, phone, key}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) SELECT CAST(? AS TEXT) %s", dim.Table(), dim.KeyColumn(), guard)
	return query, []any{key, key}
}

// ResolveDimension returns the surrogate id for a natural key
func (r *SQLPlantRepository) ResolveDimension(ctx context.Context, dim entities.Dimension, key string) (int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s LIMIT 1",
		dim.IDColumn(), dim.Table(), dim.KeyColumn(), dim.IDColumn())

	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %q", ErrUnresolvedDimension, dim, key)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s %q: %w", dim, key, err)
	}
	return id, nil
}

// InsertPlant stores one fact row
func (r *SQLPlantRepository) InsertPlant(ctx context.Context, keys entities.DimensionKeys, rec entities.ValidatedRecord) error {
	query := `
		INSERT INTO plant (species_id, temperature, soil_moisture, humidity,
			last_watered, recording_taken, sunlight_id, botanist_id, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(query),
		keys.SpeciesID,
		rec.Temperature.NullableValue(),
		rec.SoilMoisture.NullableValue(),
		rec.Humidity.NullableValue(),
		utcOrNil(rec.LastWatered),
		utcOrNil(rec.RecordingTime),
		keys.SunlightID,
		keys.BotanistID,
		keys.CycleID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plant reading for plant_id %d: %w", rec.PlantID, err)
	}
	return nil
}

// DeleteOlderThan removes fact rows recorded before cutoff and returns them
// joined with their dimension values
func (r *SQLPlantRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]entities.PlantEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT p.plant_entry_id, s.scientific_name, b.b_name, b.b_email, c.cycle_name,
			l.s_description, p.temperature, p.soil_moisture, p.humidity,
			p.last_watered, p.recording_taken
		FROM plant p
		LEFT JOIN species s ON s.species_id = p.species_id
		LEFT JOIN botanist b ON b.botanist_id = p.botanist_id
		LEFT JOIN cycle c ON c.cycle_id = p.cycle_id
		LEFT JOIN sunlight l ON l.sunlight_id = p.sunlight_id
		WHERE p.recording_taken < ?
		ORDER BY p.plant_entry_id`

	rows, err := tx.QueryContext(ctx, r.dialect.rebind(selectQuery), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query old readings: %w", err)
	}

	var entries []entities.PlantEntry
	for rows.Next() {
		entry, err := scanPlantEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return nil, nil
	}

	deleteQuery := "DELETE FROM plant WHERE recording_taken < ?"
	if _, err := tx.ExecContext(ctx, r.dialect.rebind(deleteQuery), cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete old readings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Deleted %d plant readings recorded before %s", len(entries), cutoff.Format(time.DateTime))
	return entries, nil
}

// CountRows returns the number of rows in a warehouse table
func (r *SQLPlantRepository) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "plant", "species", "botanist", "cycle", "sunlight":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", table, err)
	}
	return n, nil
}

func scanPlantEntry(rows *sql.Rows) (entities.PlantEntry, error) {
	var (
		e                               entities.PlantEntry
		species, name, email, cycle, sl sql.NullString
		temp, soil, humidity            sql.NullFloat64
		watered, taken                  sql.NullTime
	)
	if err := rows.Scan(&e.ID, &species, &name, &email, &cycle, &sl,
		&temp, &soil, &humidity, &watered, &taken); err != nil {
		return e, fmt.Errorf("failed to scan row: %w", err)
	}
	e.ScientificName = species.String
	e.BotanistName = name.String
	e.BotanistEmail = email.String
	e.Cycle = cycle.String
	e.Sunlight = sl.String
	e.Temperature = nullFloat(temp)
	e.SoilMoisture = nullFloat(soil)
	e.Humidity = nullFloat(humidity)
	e.LastWatered = nullTime(watered)
	e.RecordingTaken = nullTime(taken)
	return e, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func utcOrNil(f entities.Field[time.Time]) any {
	t, ok := f.Get()
	if !ok {
		return nil
	}
	return t.UTC()
}

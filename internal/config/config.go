// Package config loads the pipeline configuration from defaults, an optional
// YAML file, an optional .env file and PLANTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Europe/London must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PLANTS"

// Server error policies for the plant API fetcher
const (
	ServerErrorSkip  = "skip"
	ServerErrorAbort = "abort"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config is the complete pipeline configuration
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Limits     Limits           `mapstructure:"limits"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MissingLog MissingLogConfig `mapstructure:"missing_log"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

// APIConfig describes the plant API and how it is polled
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	StartID int           `mapstructure:"start_id"`
	EndID   int           `mapstructure:"end_id"` // exclusive
	Timeout time.Duration `mapstructure:"timeout"`
	// Concurrency caps in-flight requests; zero dispatches every id at once.
	Concurrency       int    `mapstructure:"concurrency"`
	ServerErrorPolicy string `mapstructure:"server_error_policy"`
}

// Limits are the domain bounds for sensor values
type Limits struct {
	LowerTemp float64 `mapstructure:"lower_temp"`
	UpperTemp float64 `mapstructure:"upper_temp"`
	LowerSoil float64 `mapstructure:"lower_soil"`
	// UpperSoil is informational only; nothing is excluded or alerted on it.
	UpperSoil float64 `mapstructure:"upper_soil"`
	Timezone  string  `mapstructure:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC
func (l Limits) Location() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		log.Printf("Warning: unknown timezone %q, using UTC: %v", l.Timezone, err)
		return time.UTC
	}
	return loc
}

// DatabaseConfig selects the relational store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// MissingLogConfig controls where the missing-data log is written
type MissingLogConfig struct {
	Path string `mapstructure:"path"`
}

// AlertsConfig configures notification transports
type AlertsConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	ShoutrrrURLs   []string `mapstructure:"shoutrrr_urls"`
	TelegramToken  string   `mapstructure:"telegram_token"`
	TelegramChatID int64    `mapstructure:"telegram_chat_id"`
}

// ScheduleConfig holds the cron expression for scheduled runs
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// MetricsConfig holds the listen address of the /metrics endpoint
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// ArchiveConfig configures archival of old readings to object storage
type ArchiveConfig struct {
	Bucket    string        `mapstructure:"bucket"`
	Region    string        `mapstructure:"region"`
	Endpoint  string        `mapstructure:"endpoint"`
	Prefix    string        `mapstructure:"prefix"`
	PathStyle bool          `mapstructure:"path_style"`
	Retention time.Duration `mapstructure:"retention"`
	// Static credentials; the default AWS chain is used when empty
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://data-eng-plants-api.herokuapp.com")
	v.SetDefault("api.start_id", 1)
	v.SetDefault("api.end_id", 51)
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.concurrency", 0)
	v.SetDefault("api.server_error_policy", ServerErrorSkip)

	v.SetDefault("limits.lower_temp", 8.0)
	v.SetDefault("limits.upper_temp", 40.0)
	v.SetDefault("limits.lower_soil", 21.0)
	v.SetDefault("limits.upper_soil", 40.0)
	v.SetDefault("limits.timezone", "Europe/London")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "data/plants.db")

	v.SetDefault("missing_log.path", "/tmp/missing_plants.json")

	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.shoutrrr_urls", []string{})
	v.SetDefault("alerts.telegram_token", "")
	v.SetDefault("alerts.telegram_chat_id", 0)

	v.SetDefault("schedule.cron", "* * * * *")
	v.SetDefault("metrics.listen", "")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "eu-west-2")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.prefix", "archive/")
	v.SetDefault("archive.path_style", false)
	v.SetDefault("archive.retention", 24*time.Hour)
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
}

// Default returns the configuration with every default applied
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load builds the configuration. configFile may be empty, in which case only
// defaults, .env and the environment are consulted.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		log.Printf("Loaded configuration from %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would make a run meaningless
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url must be set"))
	}
	if c.API.EndID <= c.API.StartID {
		errs = append(errs, fmt.Errorf("api id range [%d, %d) is empty", c.API.StartID, c.API.EndID))
	}
	if c.API.Concurrency < 0 {
		errs = append(errs, errors.New("api.concurrency must not be negative"))
	}
	switch c.API.ServerErrorPolicy {
	case ServerErrorSkip, ServerErrorAbort:
	default:
		errs = append(errs, fmt.Errorf("unknown api.server_error_policy %q", c.API.ServerErrorPolicy))
	}
	if c.Limits.Timezone != "" {
		if _, err := time.LoadLocation(c.Limits.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("unknown limits.timezone %q: %w", c.Limits.Timezone, err))
		}
	}
	if c.Limits.LowerTemp >= c.Limits.UpperTemp {
		errs = append(errs, errors.New("limits.lower_temp must be below limits.upper_temp"))
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Alerts.TelegramToken != "" && c.Alerts.TelegramChatID == 0 {
		errs = append(errs, errors.New("alerts.telegram_chat_id is required with a telegram token"))
	}
	return errors.Join(errs...)
}

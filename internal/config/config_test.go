package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://data-eng-plants-api.herokuapp.com", cfg.API.BaseURL)
	assert.Equal(t, 1, cfg.API.StartID)
	assert.Equal(t, 51, cfg.API.EndID)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, ServerErrorSkip, cfg.API.ServerErrorPolicy)
	assert.InDelta(t, 8.0, cfg.Limits.LowerTemp, 0)
	assert.InDelta(t, 40.0, cfg.Limits.UpperTemp, 0)
	assert.InDelta(t, 21.0, cfg.Limits.LowerSoil, 0)
	assert.Equal(t, 24*time.Hour, cfg.Archive.Retention)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLANTS_API_BASE_URL", "http://plants.test")
	t.Setenv("PLANTS_API_END_ID", "11")
	t.Setenv("PLANTS_API_SERVER_ERROR_POLICY", "abort")
	t.Setenv("PLANTS_LIMITS_LOWER_TEMP", "9")
	t.Setenv("PLANTS_DATABASE_DRIVER", "pgx")
	t.Setenv("PLANTS_ALERTS_SHOUTRRR_URLS", "smtp://a@b:25/?to=c@d,generic://hook.test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://plants.test", cfg.API.BaseURL)
	assert.Equal(t, 11, cfg.API.EndID)
	assert.Equal(t, ServerErrorAbort, cfg.API.ServerErrorPolicy)
	assert.InDelta(t, 9.0, cfg.Limits.LowerTemp, 0)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Len(t, cfg.Alerts.ShoutrrrURLs, 2)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "pipeline.yaml")
	content := `
api:
  start_id: 5
  end_id: 8
  concurrency: 2
limits:
  upper_temp: 35
archive:
  retention: 48h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.API.StartID)
	assert.Equal(t, 8, cfg.API.EndID)
	assert.Equal(t, 2, cfg.API.Concurrency)
	assert.InDelta(t, 35.0, cfg.Limits.UpperTemp, 0)
	assert.Equal(t, 48*time.Hour, cfg.Archive.Retention)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty range", func(c *Config) { c.API.EndID = c.API.StartID }, "is empty"},
		{"bad policy", func(c *Config) { c.API.ServerErrorPolicy = "retry" }, "server_error_policy"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"inverted limits", func(c *Config) { c.Limits.LowerTemp = 50 }, "lower_temp"},
		{"telegram without chat", func(c *Config) { c.Alerts.TelegramToken = "t" }, "telegram_chat_id"},
		{"negative concurrency", func(c *Config) { c.API.Concurrency = -1 }, "concurrency"},
		{"unknown timezone", func(c *Config) { c.Limits.Timezone = "Europe/Lodnon" }, "limits.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLimitsLocation(t *testing.T) {
	assert.Equal(t, time.UTC, Limits{}.Location())
	assert.Equal(t, time.UTC, Limits{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "Europe/London", Limits{Timezone: "Europe/London"}.Location().String())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "biogas.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "biogestor/sensors", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.InDelta(t, 0.95, cfg.Model.TargetFraction, 0.001)
	assert.Equal(t, 120, cfg.Model.MaxDays)
	assert.Equal(t, "UTC", cfg.Telemetry.Timezone)
	assert.InDelta(t, 990, cfg.Alerts.PressureMinHPa, 0.001)
	assert.InDelta(t, 1015, cfg.Alerts.PressureMaxHPa, 0.001)
	assert.InDelta(t, 20, cfg.Alerts.TemperatureMinC, 0.001)
	assert.InDelta(t, 45, cfg.Alerts.TemperatureMaxC, 0.001)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
	assert.Equal(t, 256, cfg.Dashboard.SimulationCacheSize)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/biogas
log:
  level: debug
  format: console
server:
  port: 9090
alerts:
  pressure_max_hpa: 1020
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/biogas", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 1020, cfg.Alerts.PressureMaxHPa, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 990, cfg.Alerts.PressureMinHPa, 0.001)
}

func TestLoadExplicitPath(t *testing.T) {
	chdirTemp(t)

	path := filepath.Join(t.TempDir(), "plant.yaml")
	yaml := `
model:
  max_days: 30
telemetry:
  timezone: America/Bogota
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Model.MaxDays)
	assert.Equal(t, "America/Bogota", cfg.Telemetry.Timezone)
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("BIOGAS_STORE_DRIVER", "postgres")
	t.Setenv("BIOGAS_STORE_DATABASE_URL", "postgres://db/biogas")
	t.Setenv("BIOGAS_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/biogas", cfg.Store.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	// Register restoration, then clear so .env can set it.
	t.Setenv("BIOGAS_SERVER_PORT", "")
	require.NoError(t, os.Unsetenv("BIOGAS_SERVER_PORT"))
	t.Setenv("BIOGAS_MQTT_TOPIC", "plant/override")

	env := "BIOGAS_SERVER_PORT=7070\nBIOGAS_MQTT_TOPIC=plant/dotenv\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	// Real environment wins over .env.
	assert.Equal(t, "plant/override", cfg.MQTT.Topic)
}

func TestTelemetryLocation(t *testing.T) {
	loc, err := TelemetryConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	loc, err = TelemetryConfig{Timezone: "America/Bogota"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Bogota", loc.String())

	_, err = TelemetryConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "biogas.db"
	cfg.Server.Port = 8080
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.Topic = "biogestor/sensors"
	cfg.MQTT.QoS = 1
	cfg.Model.TargetFraction = 0.95
	cfg.Model.MaxDays = 120
	cfg.Alerts.PressureMinHPa = 990
	cfg.Alerts.PressureMaxHPa = 1015
	cfg.Alerts.TemperatureMinC = 20
	cfg.Alerts.TemperatureMaxC = 45
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults serve", "serve", func(*Config) {}, ""},
		{"postgres without url", "migrate", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url is required"},
		{"postgres with url", "migrate", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = "postgres://localhost/biogas"
		}, ""},
		{"unknown driver", "migrate", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver must be sqlite or postgres"},
		{"invalid port", "serve", func(c *Config) { c.Server.Port = 0 }, "server.port must be in 1-65535"},
		{"port ignored outside serve", "migrate", func(c *Config) { c.Server.Port = 0 }, ""},
		{"ingest needs broker", "ingest", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker is required"},
		{"serve skips disabled mqtt", "serve", func(c *Config) {
			c.MQTT.Enabled = false
			c.MQTT.Topic = ""
		}, ""},
		{"bad qos", "ingest", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos must be 0, 1 or 2"},
		{"target fraction", "simulate", func(c *Config) { c.Model.TargetFraction = 1.5 }, "model.target_fraction"},
		{"max days", "simulate", func(c *Config) { c.Model.MaxDays = 0 }, "model.max_days must be > 0"},
		{"pressure band", "serve", func(c *Config) { c.Alerts.PressureMinHPa = 2000 }, "alerts.pressure_min_hpa"},
		{"temperature band", "serve", func(c *Config) { c.Alerts.TemperatureMaxC = 10 }, "alerts.temperature_min_c"},
		{"timezone", "reconcile", func(c *Config) { c.Telemetry.Timezone = "Nowhere/Land" }, "telemetry.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

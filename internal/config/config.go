package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	MQTT      MQTTConfig      `yaml:"mqtt" mapstructure:"mqtt"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MQTTConfig configures the sensor subscriber.
type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker             string `yaml:"broker" mapstructure:"broker"`
	Topic              string `yaml:"topic" mapstructure:"topic"`
	ClientID           string `yaml:"client_id" mapstructure:"client_id"`
	Username           string `yaml:"username" mapstructure:"username"`
	Password           string `yaml:"password" mapstructure:"password"`
	QoS                byte   `yaml:"qos" mapstructure:"qos"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	ConnectRetries     int    `yaml:"connect_retries" mapstructure:"connect_retries"`
}

// ModelConfig configures the kinetic model.
type ModelConfig struct {
	MaterialsFile  string  `yaml:"materials_file" mapstructure:"materials_file"`
	TargetFraction float64 `yaml:"target_fraction" mapstructure:"target_fraction"`
	MaxDays        int     `yaml:"max_days" mapstructure:"max_days"`
}

// TelemetryConfig configures reconciliation of sensor readings.
type TelemetryConfig struct {
	// Timezone decides calendar-day boundaries (IANA name).
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// Location resolves Timezone, defaulting to UTC.
func (c TelemetryConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// AlertsConfig holds sensor thresholds and the optional webhook.
type AlertsConfig struct {
	PressureMinHPa     float64 `yaml:"pressure_min_hpa" mapstructure:"pressure_min_hpa"`
	PressureMaxHPa     float64 `yaml:"pressure_max_hpa" mapstructure:"pressure_max_hpa"`
	TemperatureMinC    float64 `yaml:"temperature_min_c" mapstructure:"temperature_min_c"`
	TemperatureMaxC    float64 `yaml:"temperature_max_c" mapstructure:"temperature_max_c"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookPerMinute   int     `yaml:"webhook_per_minute" mapstructure:"webhook_per_minute"`
	WebhookTimeoutSecs int     `yaml:"webhook_timeout_secs" mapstructure:"webhook_timeout_secs"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	SystemName string `yaml:"system_name" mapstructure:"system_name"`
}

// DashboardConfig configures the dashboard service.
type DashboardConfig struct {
	SimulationCacheSize int `yaml:"simulation_cache_size" mapstructure:"simulation_cache_size"`
}

// Load reads configuration from an optional .env file, a config file and the
// environment (BIOGAS_ prefix). An empty path looks for an optional
// ./config.yaml; an explicit path must exist.
func Load(path string) (*Config, error) {
	// Variables already in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("BIOGAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults (empty values register keys for env overrides)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "biogas.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "biogestor/sensors")
	v.SetDefault("mqtt.client_id", "biogas-ingest")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout_secs", 10)
	v.SetDefault("mqtt.connect_retries", 5)
	v.SetDefault("model.materials_file", "")
	v.SetDefault("model.target_fraction", 0.95)
	v.SetDefault("model.max_days", 120)
	v.SetDefault("telemetry.timezone", "UTC")
	v.SetDefault("alerts.pressure_min_hpa", 990.0)
	v.SetDefault("alerts.pressure_max_hpa", 1015.0)
	v.SetDefault("alerts.temperature_min_c", 20.0)
	v.SetDefault("alerts.temperature_max_c", 45.0)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.webhook_per_minute", 6)
	v.SetDefault("alerts.webhook_timeout_secs", 10)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.system_name", "Biogas digester")
	v.SetDefault("dashboard.simulation_cache_size", 256)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is the command name
// ("serve", "ingest", "migrate", ...); store checks apply to every mode.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Model.TargetFraction <= 0 || c.Model.TargetFraction > 1 {
		errs = append(errs, "model.target_fraction must be in (0, 1]")
	}
	if c.Model.MaxDays <= 0 {
		errs = append(errs, "model.max_days must be > 0")
	}
	if _, err := c.Telemetry.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("telemetry.timezone %q is not a known zone", c.Telemetry.Timezone))
	}
	if c.Alerts.PressureMinHPa >= c.Alerts.PressureMaxHPa {
		errs = append(errs, "alerts.pressure_min_hpa must be below alerts.pressure_max_hpa")
	}
	if c.Alerts.TemperatureMinC >= c.Alerts.TemperatureMaxC {
		errs = append(errs, "alerts.temperature_min_c must be below alerts.temperature_max_c")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be in 1-65535, got %d", c.Server.Port))
		}
		if c.MQTT.Enabled {
			errs = append(errs, c.mqttErrors()...)
		}
	case "ingest":
		errs = append(errs, c.mqttErrors()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) mqttErrors() []string {
	var errs []string
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

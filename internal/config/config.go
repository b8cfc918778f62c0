// Package config loads service configuration from a YAML file and
// SOLAR_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SOLAR_REPORTS_LANGUAGE.
const EnvPrefix = "SOLAR"

type Config struct {
	Reports ReportsConfig `mapstructure:"reports"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ReportsConfig struct {
	Enabled                   bool    `mapstructure:"enabled"`
	Language                  string  `mapstructure:"language"`
	ReportTime                string  `mapstructure:"report_time"`
	EstimatedDailyCapacityKWh float64 `mapstructure:"estimated_daily_capacity_kwh"`
	TimeZone                  string  `mapstructure:"time_zone"`
	// LocalesDir optionally holds extra <code>.yaml locale files.
	LocalesDir string `mapstructure:"locales_dir"`
	// RetentionDays bounds the day store; 0 keeps every day.
	RetentionDays int `mapstructure:"retention_days"`
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PowerTopic   string `mapstructure:"power_topic"`
	ReportTopic  string `mapstructure:"report_topic"`
	PulseSeconds int    `mapstructure:"pulse_seconds"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.language", "en")
	v.SetDefault("reports.report_time", "sunset+30")
	v.SetDefault("reports.estimated_daily_capacity_kwh", 10.0)
	v.SetDefault("reports.time_zone", "Local")
	v.SetDefault("reports.locales_dir", "")
	v.SetDefault("reports.retention_days", 0)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "solar-report")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.power_topic", "solar/power")
	v.SetDefault("mqtt.report_topic", "solar/daily_report")
	v.SetDefault("mqtt.pulse_seconds", 5)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration. If path is empty, config.yaml is searched in
// the working directory and ./configs; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot fall back to a default. A malformed
// report time is not checked here; the scheduler substitutes its default.
func (c *Config) Validate() error {
	if c.Reports.EstimatedDailyCapacityKWh <= 0 {
		return fmt.Errorf("reports.estimated_daily_capacity_kwh must be positive, got %v", c.Reports.EstimatedDailyCapacityKWh)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Reports.RetentionDays < 0 {
		return fmt.Errorf("reports.retention_days must not be negative, got %d", c.Reports.RetentionDays)
	}
	if c.MQTT.PulseSeconds < 0 {
		return fmt.Errorf("mqtt.pulse_seconds must not be negative, got %d", c.MQTT.PulseSeconds)
	}
	return nil
}

// Location resolves reports.time_zone. Empty and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Reports.TimeZone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reports.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("reports.time_zone: %w", err)
	}
	return loc, nil
}

// PulseDuration is how long the report pulse stays active.
func (c *Config) PulseDuration() time.Duration {
	return time.Duration(c.MQTT.PulseSeconds) * time.Second
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-sentry/")
	v.AddConfigPath("$HOME/.mail-sentry")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_SENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Scoring defaults. The weight split and breakpoints must match
	// existing deployments.
	v.SetDefault("scoring.weights.rules", 0.30)
	v.SetDefault("scoring.weights.keywords", 0.20)
	v.SetDefault("scoring.weights.anomaly", 0.25)
	v.SetDefault("scoring.weights.classifier", 0.25)
	v.SetDefault("scoring.case_threshold", 8.0)
	v.SetDefault("scoring.flag_threshold", 5.0)
	v.SetDefault("scoring.critical_threshold", 9.0)
	v.SetDefault("scoring.intra_aggregation", "max")

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.ml_timeout", "2s")

	// Detection configuration snapshot
	v.SetDefault("rules.path", "./configs/rules.yaml")

	// Model snapshots
	v.SetDefault("models.anomaly_path", "/data/models/anomaly.json")
	v.SetDefault("models.classifier_path", "/data/models/classifier.json")

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "/data/mail_sentry.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_sentry?parseTime=true")
	v.SetDefault("store.retention", "720h")
	v.SetDefault("store.cleanup_frequency", "1h")

	// Ingest defaults
	v.SetDefault("ingest.file", "")

	// Metrics defaults; empty address disables the listener
	v.SetDefault("metrics.listen_address", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

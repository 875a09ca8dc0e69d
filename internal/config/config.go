package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"accident-forecast/internal/models"
	"accident-forecast/pkg/database"
)

// EnvPrefix prefixes every environment override, e.g. FORECAST_DATASET_PATH
const EnvPrefix = "FORECAST"

// Dataset source kinds
const (
	SourceCSV = "csv"
	SourceDB  = "db"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Database DatabaseConfig `mapstructure:"database"`
	Model    ModelConfig    `mapstructure:"model"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatasetConfig selects where the training series is read from
type DatasetConfig struct {
	Source      string `mapstructure:"source" validate:"oneof=csv db"`
	Path        string `mapstructure:"path"`
	DateColumn  string `mapstructure:"date_column" validate:"required"`
	ValueColumn string `mapstructure:"value_column" validate:"required"`
	Series      string `mapstructure:"series"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ModelConfig holds the fixed model order and the accepted prediction years
type ModelConfig struct {
	Order   models.ModelOrder `mapstructure:"order"`
	MinYear int               `mapstructure:"min_year" validate:"min=1"`
	MaxYear int               `mapstructure:"max_year" validate:"min=1"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	Path      string `mapstructure:"path" validate:"startswith=/"`
}

// LoadConfig reads configuration from the file named by FORECAST_CONFIG, if
// any, and environment variables
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "_CONFIG"))
}

// Load reads configuration from path and environment variables.
// An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Dataset defaults
	v.SetDefault("dataset.source", SourceCSV)
	v.SetDefault("dataset.path", "cleaned_data.csv")
	v.SetDefault("dataset.date_column", "Date")
	v.SetDefault("dataset.value_column", "Value")
	v.SetDefault("dataset.series", "accidents")

	// Database defaults
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "forecast")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "forecast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "./data/forecast.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Model defaults
	v.SetDefault("model.order.p", 2)
	v.SetDefault("model.order.d", 1)
	v.SetDefault("model.order.q", 1)
	v.SetDefault("model.min_year", 2000)
	v.SetDefault("model.max_year", 2100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "accident_forecast")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &models.ValidationError{
				Field:   fe.Namespace(),
				Value:   fmt.Sprint(fe.Value()),
				Message: fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()),
			}
		}
		return err
	}

	if err := c.Model.Order.Validate(); err != nil {
		return err
	}
	if c.Model.MaxYear < c.Model.MinYear {
		return &models.ValidationError{
			Field:   "model.max_year",
			Value:   fmt.Sprint(c.Model.MaxYear),
			Message: "model.max_year must not be before model.min_year",
		}
	}

	switch c.Dataset.Source {
	case SourceCSV:
		if c.Dataset.Path == "" {
			return &models.ValidationError{Field: "dataset.path", Message: "dataset.path is required for csv source"}
		}
	case SourceDB:
		if c.Dataset.Series == "" {
			return &models.ValidationError{Field: "dataset.series", Message: "dataset.series is required for db source"}
		}
	}

	return c.Database.validate()
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case database.DriverSQLite:
		if d.Path == "" {
			return &models.ValidationError{Field: "database.path", Message: "database.path is required for sqlite"}
		}
	case database.DriverPostgres:
		if d.Host == "" || d.Database == "" {
			return &models.ValidationError{Field: "database.host", Message: "database.host and database.database are required for postgres"}
		}
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return &models.ValidationError{
			Field:   "database.max_idle_conns",
			Value:   fmt.Sprint(d.MaxIdleConns),
			Message: "database.max_idle_conns must not exceed database.max_open_conns",
		}
	}
	return nil
}

// Connection converts the configuration into database connection settings
func (d DatabaseConfig) Connection() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// Address returns the host:port the HTTP server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

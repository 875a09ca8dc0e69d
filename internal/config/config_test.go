package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"accident-forecast/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Model.Order != (models.ModelOrder{P: 2, D: 1, Q: 1}) {
		t.Errorf("Model.Order = %v, want (2,1,1)", cfg.Model.Order)
	}
	if cfg.Model.MinYear != 2000 || cfg.Model.MaxYear != 2100 {
		t.Errorf("year bounds = %d-%d, want 2000-2100", cfg.Model.MinYear, cfg.Model.MaxYear)
	}
	if cfg.Dataset.Source != SourceCSV || cfg.Dataset.Path != "cleaned_data.csv" {
		t.Errorf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Address() != "0.0.0.0:8000" {
		t.Errorf("Server.Address() = %v", cfg.Server.Address())
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
dataset:
  source: db
  series: injuries
model:
  order:
    p: 1
    d: 0
    q: 2
  max_year: 2050
database:
  driver: postgres
  host: db.internal
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FORECAST_SERVER_PORT", "9191")
	t.Setenv("FORECAST_MODEL_ORDER_Q", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"env overrides file", cfg.Server.Port, 9191},
		{"file value", cfg.Dataset.Series, "injuries"},
		{"nested order from file and env", cfg.Model.Order, models.ModelOrder{P: 1, D: 0, Q: 1}},
		{"file year bound", cfg.Model.MaxYear, 2050},
		{"default kept", cfg.Model.MinYear, 2000},
		{"database driver", cfg.Database.Connection().Driver, "postgres"},
		{"database host", cfg.Database.Connection().Host, "db.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with a missing file should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "Config.Server.Port"},
		{"unknown source", func(c *Config) { c.Dataset.Source = "s3" }, "Config.Dataset.Source"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "Config.Logging.Level"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "Config.Database.Driver"},
		{"negative order", func(c *Config) { c.Model.Order.P = -1 }, "order"},
		{"inverted year bounds", func(c *Config) { c.Model.MinYear, c.Model.MaxYear = 2050, 2040 }, "model.max_year"},
		{"csv without path", func(c *Config) { c.Dataset.Path = "" }, "dataset.path"},
		{"db without series", func(c *Config) { c.Dataset.Source, c.Dataset.Series = SourceDB, "" }, "dataset.series"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"idle above open", func(c *Config) { c.Database.MaxIdleConns = 50 }, "database.max_idle_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %v, want %v", verr.Field, tt.field)
			}
		})
	}
}

// Package app wires configuration into the logger, database and dataset
// loader shared by the server and the command line tool.
package app

import (
	"context"
	"os"

	"accident-forecast/internal/config"
	"accident-forecast/internal/dataset"
	"accident-forecast/internal/models"
	"accident-forecast/internal/repository"
	"accident-forecast/internal/services"
	"accident-forecast/pkg/database"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// Version is reported in every log entry
const Version = "1.0.0"

// NewLogger builds the structured logger for service from the logging section
func NewLogger(service string, cfg config.LoggingConfig) *logging.StructuredLogger {
	logger := logging.NewStructuredLogger(service, Version, logging.ParseLevel(cfg.Level))
	if cfg.Format != "" {
		logger.SetFormat(cfg.Format)
	}
	return logger
}

// NewStderrLogger is NewLogger writing to stderr, keeping stdout for command output
func NewStderrLogger(service string, cfg config.LoggingConfig) *logging.StructuredLogger {
	logger := NewLogger(service, cfg)
	logger.SetOutput(os.Stderr)
	return logger
}

// OpenDatabase connects to the configured database
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*database.DB, error) {
	return database.Open(ctx, cfg.Database.Connection(), logger, metricsCollector)
}

// CSVOptions converts the dataset section into CSV reader options
func CSVOptions(cfg config.DatasetConfig) dataset.CSVOptions {
	opts := dataset.DefaultCSVOptions()
	if cfg.DateColumn != "" {
		opts.DateColumn = cfg.DateColumn
	}
	if cfg.ValueColumn != "" {
		opts.ValueColumn = cfg.ValueColumn
	}
	return opts
}

// YearBounds returns the configured prediction year range
func YearBounds(cfg config.ModelConfig) services.YearBounds {
	return services.YearBounds{Min: cfg.MinYear, Max: cfg.MaxYear}
}

// NewLoader returns the dataset loader selected by the configuration and a
// function releasing its resources. A database that cannot be reached yields
// a loader failing with MissingSource so startup still completes degraded.
func NewLoader(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (dataset.Loader, func()) {
	if cfg.Dataset.Source != config.SourceDB {
		return dataset.NewCSVLoader(cfg.Dataset.Path, CSVOptions(cfg.Dataset)), func() {}
	}

	db, err := OpenDatabase(ctx, cfg, logger, metricsCollector)
	if err != nil {
		return unavailableLoader{source: "db:" + cfg.Dataset.Series, err: err}, func() {}
	}

	repo := repository.NewObservationRepository(db, logger, metricsCollector)
	return dataset.NewDBLoader(repo, cfg.Dataset.Series), func() { db.Close() }
}

// Bootstrap loads the configured dataset and fits the model, releasing the
// loader once the series is in memory
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *services.PredictionService {
	loader, release := NewLoader(ctx, cfg, logger, metricsCollector)
	defer release()

	return services.Bootstrap(ctx, loader, cfg.Model.Order, YearBounds(cfg.Model), logger, metricsCollector)
}

type unavailableLoader struct {
	source string
	err    error
}

func (l unavailableLoader) Load(ctx context.Context) (*models.TimeSeries, error) {
	return nil, models.WrapError(models.FailureMissingSource, l.err, "dataset database unavailable")
}

func (l unavailableLoader) Source() string { return l.source }

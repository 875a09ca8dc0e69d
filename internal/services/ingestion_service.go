package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"accident-forecast/internal/dataset"
	"accident-forecast/internal/models"
	"accident-forecast/internal/repository"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// IngestionService loads CSV datasets into the monthly_observations table
type IngestionService struct {
	repo    repository.ObservationRepository
	opts    dataset.CSVOptions
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles        int
	TotalRecords      int
	SuccessfulRecords int
	Series            []string
	Duration          time.Duration
	Errors            []string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.ObservationRepository, opts dataset.CSVOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		opts:    opts,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestDirectory ingests every *.csv file in dataDir, one series per file named after the file
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	result := &IngestionResult{
		TotalFiles: len(files),
		Errors:     make([]string, 0),
	}

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	for _, filePath := range files {
		name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))

		count, err := s.ingestFile(ctx, filePath, name, batchSize)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", filePath, err))
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			continue
		}

		result.TotalRecords += count
		result.SuccessfulRecords += count
		result.Series = append(result.Series, name)
	}

	s.finish(ctx, result, startTime)
	return result, nil
}

// IngestFile ingests a single CSV file into series
func (s *IngestionService) IngestFile(ctx context.Context, filePath, series string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"file_path":  filePath,
		"series":     series,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	count, err := s.ingestFile(ctx, filePath, series, batchSize)
	if err != nil {
		s.metrics.RecordIngestionError("file_error")
		return nil, err
	}

	result := &IngestionResult{
		TotalFiles:        1,
		TotalRecords:      count,
		SuccessfulRecords: count,
		Series:            []string{series},
		Errors:            make([]string, 0),
	}
	s.finish(ctx, result, startTime)
	return result, nil
}

// ingestFile validates the whole file before writing so a malformed file leaves the table untouched
func (s *IngestionService) ingestFile(ctx context.Context, filePath, series string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	parsed, err := dataset.ReadCSV(file, series, s.opts)
	if err != nil {
		s.metrics.RecordIngestionError(string(models.KindOf(err)))
		return 0, err
	}

	observations := parsed.Observations
	for start := 0; start < len(observations); start += batchSize {
		end := start + batchSize
		if end > len(observations) {
			end = len(observations)
		}
		if err := s.repo.UpsertObservationsBatch(ctx, series, observations[start:end]); err != nil {
			return start, fmt.Errorf("failed to write batch: %w", err)
		}
	}

	s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", logging.Fields{
		"file_path":    filePath,
		"series":       series,
		"observations": len(observations),
		"first":        parsed.First().Format("2006-01"),
		"last":         parsed.Last().Format("2006-01"),
		"stage":        "FILE_COMPLETE",
	})

	return len(observations), nil
}

func (s *IngestionService) finish(ctx context.Context, result *IngestionResult, startTime time.Time) {
	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":        result.TotalFiles,
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"duration_seconds":   result.Duration.Seconds(),
		"error_count":        len(result.Errors),
		"stage":              "COMPLETE",
	})
}

package services

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"accident-forecast/internal/arima"
	"accident-forecast/internal/models"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// SeriesStatistics describes the series the model was fitted on
type SeriesStatistics struct {
	Name         string                `json:"name"`
	Observations int                   `json:"observations"`
	Mean         float64               `json:"mean"`
	StdDev       float64               `json:"std_dev"`
	Min          float64               `json:"min"`
	Max          float64               `json:"max"`
	MissingGaps  int                   `json:"missing_months"`
	Yearly       []YearlyTotal         `json:"yearly"`
	Seasonality  *arima.LjungBoxResult `json:"seasonality,omitempty"`
}

// YearlyTotal aggregates the observations of one calendar year
type YearlyTotal struct {
	Year   int     `json:"year"`
	Months int     `json:"months"`
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
}

// StatisticsService computes descriptive statistics of a loaded series
type StatisticsService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Describe calculates summary and per-year statistics. It returns nil for an empty series.
func (s *StatisticsService) Describe(ctx context.Context, series *models.TimeSeries) *SeriesStatistics {
	if series.Len() == 0 {
		return nil
	}

	values := series.Values()
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}

	stats := &SeriesStatistics{
		Name:         series.Name,
		Observations: len(values),
		Mean:         mean,
		StdDev:       std,
		Min:          floats.Min(values),
		Max:          floats.Max(values),
		MissingGaps:  models.MonthsBetween(series.First(), series.Last()) + 1 - len(values),
		Yearly:       yearlyTotals(series),
		// lag-12 portmanteau on the raw series flags an annual cycle
		Seasonality: arima.LjungBox(values, 12, 0),
	}

	s.logger.Debug(ctx, "[STATS_CALC_COMPLETE] Series statistics calculated", logging.Fields{
		"series":       series.Name,
		"observations": stats.Observations,
		"years":        len(stats.Yearly),
	})

	return stats
}

func yearlyTotals(series *models.TimeSeries) []YearlyTotal {
	byYear := make(map[int]*YearlyTotal)
	for _, obs := range series.Observations {
		year := obs.Date.Year()
		total, ok := byYear[year]
		if !ok {
			total = &YearlyTotal{Year: year}
			byYear[year] = total
		}
		total.Months++
		total.Total += obs.Value
	}

	totals := make([]YearlyTotal, 0, len(byYear))
	for _, total := range byYear {
		total.Mean = total.Total / float64(total.Months)
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Year < totals[j].Year
	})
	return totals
}

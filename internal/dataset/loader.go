// Package dataset loads the monthly series the forecast model is fitted on.
package dataset

import (
	"context"
	"math"
	"sort"

	"accident-forecast/internal/models"
)

// Loader reads a monthly series from a configured source.
// Failures are *models.ForecastError of kind MissingSource or MalformedData.
type Loader interface {
	Load(ctx context.Context) (*models.TimeSeries, error)
	Source() string
}

// normalize truncates dates to month start, sorts ascending and rejects
// duplicate months and non-finite values.
func normalize(name, source string, observations []models.Observation) (*models.TimeSeries, error) {
	if len(observations) == 0 {
		return nil, models.NewError(models.FailureMalformedData, "dataset %s contains no observations", source)
	}

	normalized := make([]models.Observation, len(observations))
	for i, obs := range observations {
		if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
			return nil, models.NewError(models.FailureMalformedData,
				"dataset %s: non-finite value %v on %s", source, obs.Value, obs.Date.Format("2006-01-02"))
		}
		normalized[i] = models.Observation{
			Date:  models.MonthStart(obs.Date),
			Value: obs.Value,
		}
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Date.Before(normalized[j].Date)
	})

	for i := 1; i < len(normalized); i++ {
		if normalized[i].Date.Equal(normalized[i-1].Date) {
			return nil, models.NewError(models.FailureMalformedData,
				"dataset %s: duplicate observation for %s", source, normalized[i].Date.Format("2006-01"))
		}
	}

	return &models.TimeSeries{
		Name:         name,
		Observations: normalized,
	}, nil
}

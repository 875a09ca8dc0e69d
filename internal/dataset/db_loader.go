package dataset

import (
	"context"

	"accident-forecast/internal/models"
	"accident-forecast/internal/repository"
)

// DBLoader reads a series from the monthly_observations table
type DBLoader struct {
	repo   repository.ObservationRepository
	series string
}

// NewDBLoader creates a loader for the named series
func NewDBLoader(repo repository.ObservationRepository, series string) *DBLoader {
	return &DBLoader{repo: repo, series: series}
}

// Source identifies the dataset in logs and status output
func (l *DBLoader) Source() string {
	return "db:" + l.series
}

// Load reads every observation of the series. An unreachable database or an
// unknown series is a missing source.
func (l *DBLoader) Load(ctx context.Context) (*models.TimeSeries, error) {
	if err := l.repo.HealthCheck(ctx); err != nil {
		return nil, models.WrapError(models.FailureMissingSource, err, "dataset %s unreachable", l.Source())
	}

	observations, err := l.repo.ListObservations(ctx, repository.ObservationFilter{Series: l.series})
	if err != nil {
		return nil, models.WrapError(models.FailureMissingSource, err, "dataset %s cannot be read", l.Source())
	}
	if len(observations) == 0 {
		notFound := &repository.NotFoundError{Resource: "series", ID: l.series}
		return nil, models.WrapError(models.FailureMissingSource, notFound, "dataset %s has no observations", l.Source())
	}

	return normalize(l.series, l.Source(), observations)
}

package services

import (
	"context"

	"accident-forecast/internal/dataset"
	"accident-forecast/internal/models"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// Bootstrap loads the dataset and fits the model exactly once, then returns
// the prediction service with the resulting readiness. It never fails: load
// and fit errors leave the service Degraded with the failure as reason.
func Bootstrap(
	ctx context.Context,
	loader dataset.Loader,
	order models.ModelOrder,
	bounds YearBounds,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PredictionService {
	logger.Info(ctx, "[BOOTSTRAP_START] Loading dataset and fitting model", logging.Fields{
		"source": loader.Source(),
		"order":  order.String(),
		"stage":  "INITIALIZATION",
	})

	degraded := func(stage string, series *models.TimeSeries, err error) *PredictionService {
		readiness := models.DegradedState(err)

		metricsCollector.RecordStartupFailure(readiness.Reason)
		metricsCollector.SetReadiness(false)
		logger.Error(ctx, "[BOOTSTRAP_DEGRADED] Model unavailable, serving degraded status", logging.Fields{
			"source": loader.Source(),
			"order":  order.String(),
			"reason": readiness.Reason,
			"stage":  stage,
		}, err)

		s := NewPredictionService(nil, readiness, bounds, logger, metricsCollector)
		s.source = loader.Source()
		s.order = order
		s.series = series
		return s
	}

	series, err := loader.Load(ctx)
	if err != nil {
		return degraded("LOAD", nil, err)
	}

	metricsCollector.DatasetObservations.Set(float64(series.Len()))
	logger.Info(ctx, "[BOOTSTRAP_LOADED] Dataset loaded", logging.Fields{
		"observations": series.Len(),
		"first":        series.First().Format("2006-01"),
		"last":         series.Last().Format("2006-01"),
		"stage":        "LOAD",
	})

	timer := metricsCollector.NewTimer(metricsCollector.ModelFitDuration)
	model, err := safeFit(series, order)
	duration := timer.ObserveDuration()
	if err != nil {
		return degraded("FIT", series, err)
	}

	summary := model.Summary()
	if !model.Converged() {
		logger.Warn(ctx, "[BOOTSTRAP_NOT_CONVERGED] Optimiser stopped at its iteration limit", logging.Fields{
			"order": order.String(),
			"stage": "FIT",
		})
	}

	logger.Info(ctx, "[BOOTSTRAP_READY] Model fitted", logging.Fields{
		"order":       order.String(),
		"aic":         summary.AIC,
		"sigma2":      summary.Sigma2,
		"converged":   summary.Converged,
		"duration_ms": duration.Milliseconds(),
		"stage":       "COMPLETE",
	})

	metricsCollector.SetReadiness(true)

	s := NewPredictionService(model, models.ReadyState(), bounds, logger, metricsCollector)
	s.source = loader.Source()
	s.order = order
	s.series = series
	s.summary = summary
	return s
}

// safeFit turns an estimator panic into a fit failure
func safeFit(series *models.TimeSeries, order models.ModelOrder) (model *ForecastModel, err error) {
	defer func() {
		if r := recover(); r != nil {
			model = nil
			err = models.NewError(models.FailureFit, "estimation of %s panicked: %v", order, r)
		}
	}()
	return FitForecastModel(series, order)
}

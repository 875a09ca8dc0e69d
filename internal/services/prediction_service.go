package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"accident-forecast/internal/arima"
	"accident-forecast/internal/models"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// YearBounds is the inclusive range of years a prediction may target
type YearBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultYearBounds returns the range accepted when none is configured
func DefaultYearBounds() YearBounds {
	return YearBounds{Min: 2000, Max: 2100}
}

// Contains reports whether year lies inside the bounds
func (b YearBounds) Contains(year int) bool {
	return year >= b.Min && year <= b.Max
}

// PredictionService validates prediction requests and dispatches them to the
// fitted model. It is built once at startup and never mutated afterwards.
type PredictionService struct {
	forecaster Forecaster
	readiness  models.Readiness
	bounds     YearBounds
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector

	// status details, set by Bootstrap
	source  string
	order   models.ModelOrder
	series  *models.TimeSeries
	summary *arima.Summary
}

// NewPredictionService creates a prediction service around forecaster.
// forecaster may be nil when readiness is not Ready.
func NewPredictionService(
	forecaster Forecaster,
	readiness models.Readiness,
	bounds YearBounds,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PredictionService {
	return &PredictionService{
		forecaster: forecaster,
		readiness:  readiness,
		bounds:     bounds,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// GetStatus returns the readiness computed at startup
func (s *PredictionService) GetStatus() models.Readiness {
	return s.readiness
}

// Bounds returns the accepted year range
func (s *PredictionService) Bounds() YearBounds {
	return s.bounds
}

// Predict validates req and returns the forecast for the requested month.
// Failures are *models.ForecastError of kind InvalidInput, ServiceUnavailable
// or PredictionFailed. Validation happens before the readiness check, so
// invalid input is reported the same way whether or not the model is ready.
func (s *PredictionService) Predict(ctx context.Context, req models.PredictionRequest) (*models.Prediction, error) {
	prediction, err := s.predict(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	s.metrics.RecordPrediction(outcome)

	return prediction, err
}

func (s *PredictionService) predict(ctx context.Context, req models.PredictionRequest) (*models.Prediction, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, models.NewError(models.FailureInvalidInput, "month out of range: %d, expected 1-12", req.Month)
	}
	if !s.bounds.Contains(req.Year) {
		return nil, models.NewError(models.FailureInvalidInput,
			"year out of range: %d, expected %d-%d", req.Year, s.bounds.Min, s.bounds.Max)
	}

	if !s.readiness.IsReady() || s.forecaster == nil {
		s.logger.Warn(ctx, "[PREDICT_UNAVAILABLE] Prediction requested while model is not ready", logging.Fields{
			"state":  s.readiness.State.String(),
			"reason": s.readiness.Reason,
		})
		return nil, models.NewError(models.FailureServiceUnavailable, "model not ready: %s", unavailableReason(s.readiness))
	}

	target := req.TargetDate()

	timer := s.metrics.NewTimer(s.metrics.ForecastDuration)
	value, horizon, err := s.forecast(target)
	duration := timer.ObserveDuration()

	if err != nil {
		s.logger.Error(ctx, "[PREDICT_FAILED] Forecast computation failed", logging.Fields{
			"year":    req.Year,
			"month":   req.Month,
			"horizon": horizon,
		}, err)
		return nil, models.WrapError(models.FailurePredictionFailed, err, "forecast for %s failed", target.Format("2006-01"))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		s.logger.Error(ctx, "[PREDICT_FAILED] Forecast is not finite", logging.Fields{
			"year":    req.Year,
			"month":   req.Month,
			"horizon": horizon,
			"value":   fmt.Sprint(value),
		}, nil)
		return nil, models.NewError(models.FailurePredictionFailed, "forecast for %s is not finite", target.Format("2006-01"))
	}

	s.metrics.ForecastHorizon.Observe(float64(horizon))
	s.logger.Debug(ctx, "[PREDICT_SUCCESS] Forecast computed", logging.Fields{
		"target":      target.Format("2006-01"),
		"horizon":     horizon,
		"prediction":  value,
		"duration_us": duration.Microseconds(),
	})

	return &models.Prediction{
		Value:      value,
		TargetDate: target,
		Horizon:    horizon,
	}, nil
}

// forecast isolates the model call so a panic fails only the current request
func (s *PredictionService) forecast(target time.Time) (value float64, horizon int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forecast panicked: %v", r)
		}
	}()
	return s.forecaster.ForecastAt(target)
}

func unavailableReason(r models.Readiness) string {
	if r.Reason == "" {
		return r.State.String()
	}
	if r.Detail == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

// StatusReport is the readiness plus what the model was fitted on
type StatusReport struct {
	Ready            bool           `json:"ready"`
	State            string         `json:"state"`
	Reason           *string        `json:"reason"`
	Detail           string         `json:"detail,omitempty"`
	Source           string         `json:"source,omitempty"`
	Order            string         `json:"order"`
	Observations     int            `json:"observations"`
	FirstObservation *time.Time     `json:"first_observation,omitempty"`
	LastObservation  *time.Time     `json:"last_observation,omitempty"`
	YearBounds       YearBounds     `json:"year_bounds"`
	Model            *arima.Summary `json:"model,omitempty"`
}

// Status returns the readiness together with dataset and model details
func (s *PredictionService) Status() *StatusReport {
	report := &StatusReport{
		Ready:        s.readiness.IsReady(),
		State:        s.readiness.State.String(),
		Detail:       s.readiness.Detail,
		Source:       s.source,
		Order:        s.order.String(),
		Observations: s.series.Len(),
		YearBounds:   s.bounds,
		Model:        s.summary,
	}

	if s.readiness.Reason != "" {
		reason := s.readiness.Reason
		report.Reason = &reason
	}

	if s.series.Len() > 0 {
		first, last := s.series.First(), s.series.Last()
		report.FirstObservation = &first
		report.LastObservation = &last
	}

	return report
}

// Series returns the series the model was fitted on, or nil
func (s *PredictionService) Series() *models.TimeSeries {
	return s.series
}

package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"accident-forecast/internal/arima"
	"accident-forecast/internal/models"
)

// Forecaster produces a point forecast for a calendar month
type Forecaster interface {
	ForecastAt(target time.Time) (value float64, horizon int, err error)
}

// ForecastModel is an ARIMA model fitted once on a series. It is immutable
// and safe for concurrent use.
type ForecastModel struct {
	series *models.TimeSeries
	order  models.ModelOrder
	model  *arima.Model
}

// FitForecastModel fits the configured order on series.
// Every failure is a *models.ForecastError of kind FitFailure.
func FitForecastModel(series *models.TimeSeries, order models.ModelOrder) (*ForecastModel, error) {
	if err := order.Validate(); err != nil {
		return nil, models.WrapError(models.FailureFit, err, "invalid model order %s", order)
	}
	if series.Len() == 0 {
		return nil, models.NewError(models.FailureFit, "cannot fit %s on an empty series", order)
	}

	model, err := arima.Fit(series.Values(), arima.Order{P: order.P, D: order.D, Q: order.Q})
	if err != nil {
		switch {
		case errors.Is(err, arima.ErrInsufficientData):
			return nil, models.WrapError(models.FailureFit, err,
				"series has %d observations, order %s needs at least %d", series.Len(), order, order.MinObservations())
		case errors.Is(err, arima.ErrNonFinite):
			return nil, models.WrapError(models.FailureFit, err, "series contains non-finite values")
		default:
			return nil, models.WrapError(models.FailureFit, err, "estimation of %s failed", order)
		}
	}

	return &ForecastModel{
		series: series,
		order:  order,
		model:  model,
	}, nil
}

// ForecastAt returns the forecast for the month of target and the horizon it used.
//
// The model is a fixed-origin forecaster anchored at the last observation.
// The horizon is the number of months from that observation to target; a
// target at or before the last observation is forecast one step ahead.
// The value is the h-th point of the h-step path.
func (m *ForecastModel) ForecastAt(target time.Time) (float64, int, error) {
	h := models.MonthsBetween(m.series.Last(), models.MonthStart(target))
	if h < 1 {
		h = 1
	}

	path, err := m.model.Forecast(h)
	if err != nil {
		return 0, h, fmt.Errorf("forecast %d steps: %w", h, err)
	}

	value := path[h-1]
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, h, fmt.Errorf("forecast %d steps: non-finite value %v", h, value)
	}
	return value, h, nil
}

// Order returns the fitted order
func (m *ForecastModel) Order() models.ModelOrder {
	return m.order
}

// Series returns the series the model was fitted on
func (m *ForecastModel) Series() *models.TimeSeries {
	return m.series
}

// Converged reports whether the optimiser converged within its budget
func (m *ForecastModel) Converged() bool {
	return m.model.Converged
}

// Summary returns coefficients, information criteria and residual diagnostics
func (m *ForecastModel) Summary() *arima.Summary {
	return m.model.Summary()
}

package models

import (
	"fmt"
	"time"
)

// Observation is a single monthly data point of the accident series
type Observation struct {
	Date  time.Time `json:"date" db:"observed_on"`
	Value float64   `json:"value" db:"value"`
}

// TimeSeries is a monthly series ordered strictly ascending by Date.
// Gaps are allowed and are not resampled.
type TimeSeries struct {
	Name         string        `json:"name"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations
func (s *TimeSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Observations)
}

// Values returns a copy of the observation values in date order
func (s *TimeSeries) Values() []float64 {
	values := make([]float64, len(s.Observations))
	for i, obs := range s.Observations {
		values[i] = obs.Value
	}
	return values
}

// First returns the earliest observation date
func (s *TimeSeries) First() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Observations[0].Date
}

// Last returns the latest observation date, the forecast origin
func (s *TimeSeries) Last() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Observations[len(s.Observations)-1].Date
}

// MonthStart truncates t to the first day of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the number of whole calendar months from 'from' to 'to'.
// Negative when 'to' precedes 'from'.
func MonthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// ModelOrder is the fixed ARIMA order (p, d, q)
type ModelOrder struct {
	P int `json:"p" mapstructure:"p"`
	D int `json:"d" mapstructure:"d"`
	Q int `json:"q" mapstructure:"q"`
}

// String renders the order the way it is usually written, e.g. (2,1,1)
func (o ModelOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// MinObservations is the shortest series the order can be fitted on
func (o ModelOrder) MinObservations() int {
	return o.P + o.D + o.Q + 1
}

// Validate checks that every component is non-negative
func (o ModelOrder) Validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return &ValidationError{
			Field:   "order",
			Value:   o.String(),
			Message: "model order components must be non-negative",
		}
	}
	return nil
}

// ReadinessState is the startup outcome of dataset loading and model fitting
type ReadinessState int

const (
	Uninitialized ReadinessState = iota
	Ready
	Degraded
)

// String returns string representation of the readiness state
func (s ReadinessState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Readiness is computed once at startup and never mutated afterwards.
// Reason carries the failure kind code when Degraded, Detail the human readable cause.
type Readiness struct {
	State  ReadinessState
	Reason string
	Detail string
}

// IsReady reports whether predictions can be served
func (r Readiness) IsReady() bool {
	return r.State == Ready
}

// ReadyState returns the Ready readiness value
func ReadyState() Readiness {
	return Readiness{State: Ready}
}

// DegradedState builds a Degraded readiness from a startup failure
func DegradedState(err error) Readiness {
	kind := KindOf(err)
	if kind == "" {
		kind = FailureFit
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Readiness{
		State:  Degraded,
		Reason: string(kind),
		Detail: detail,
	}
}

// PredictionRequest asks for the forecast of a calendar month
type PredictionRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// TargetDate returns the first day of the requested month in UTC
func (r PredictionRequest) TargetDate() time.Time {
	return time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC)
}

// Prediction is a successful forecast outcome
type Prediction struct {
	Value      float64   `json:"prediction"`
	TargetDate time.Time `json:"target_date"`
	Horizon    int       `json:"horizon"`
}

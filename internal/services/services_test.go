package services

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"accident-forecast/internal/dataset"
	"accident-forecast/internal/models"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	logger := logging.NewStructuredLogger("test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollector("test", prometheus.NewRegistry())
}

// accidentSeries returns n monthly observations starting January 2019
func accidentSeries(n int) *models.TimeSeries {
	rng := rand.New(rand.NewSource(2019))
	observations := make([]models.Observation, n)
	level := 400.0
	for i := range observations {
		level += rng.NormFloat64() * 5
		seasonal := 30 * math.Sin(2*math.Pi*float64(i)/12)
		observations[i] = models.Observation{
			Date:  time.Date(2019, time.January+time.Month(i), 1, 0, 0, 0, 0, time.UTC),
			Value: math.Round(level + seasonal),
		}
	}
	return &models.TimeSeries{Name: "accidents", Observations: observations}
}

type staticLoader struct {
	series *models.TimeSeries
	err    error
	calls  int
}

func (l *staticLoader) Load(ctx context.Context) (*models.TimeSeries, error) {
	l.calls++
	return l.series, l.err
}

func (l *staticLoader) Source() string {
	return "static"
}

type countingForecaster struct {
	mu    sync.Mutex
	calls int
	value float64
	err   error
	panic bool
}

func (f *countingForecaster) ForecastAt(target time.Time) (float64, int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("index out of range")
	}
	return f.value, 1, f.err
}

func TestFitForecastModel_HorizonMapping(t *testing.T) {
	series := accidentSeries(24)
	model, err := FitForecastModel(series, models.ModelOrder{P: 2, D: 1, Q: 1})
	if err != nil {
		t.Fatalf("FitForecastModel() error = %v", err)
	}

	path, err := model.model.Forecast(13)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	tests := []struct {
		name        string
		target      time.Time
		wantHorizon int
		wantValue   float64
	}{
		{"next month is step 1", time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), 1, path[0]},
		{"thirteen months ahead is step 13", time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), 13, path[12]},
		{"mid-month target", time.Date(2021, time.June, 20, 0, 0, 0, 0, time.UTC), 6, path[5]},
		{"last observed month forecasts one step", time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC), 1, path[0]},
		{"past target forecasts one step", time.Date(2019, time.June, 1, 0, 0, 0, 0, time.UTC), 1, path[0]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, horizon, err := model.ForecastAt(tt.target)
			if err != nil {
				t.Fatalf("ForecastAt() error = %v", err)
			}
			if horizon != tt.wantHorizon {
				t.Errorf("horizon = %d, want %d", horizon, tt.wantHorizon)
			}
			if value != tt.wantValue {
				t.Errorf("value = %v, want %v", value, tt.wantValue)
			}
		})
	}
}

func TestFitForecastModel_Deterministic(t *testing.T) {
	order := models.ModelOrder{P: 2, D: 1, Q: 1}
	target := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)

	first, err := FitForecastModel(accidentSeries(36), order)
	if err != nil {
		t.Fatalf("FitForecastModel() error = %v", err)
	}
	second, err := FitForecastModel(accidentSeries(36), order)
	if err != nil {
		t.Fatalf("FitForecastModel() error = %v", err)
	}

	a, _, _ := first.ForecastAt(target)
	b, _, _ := first.ForecastAt(target)
	c, _, _ := second.ForecastAt(target)
	if a != b || a != c {
		t.Errorf("forecasts differ: %v, %v, %v", a, b, c)
	}
}

func TestFitForecastModel_Failures(t *testing.T) {
	tests := []struct {
		name   string
		series *models.TimeSeries
		order  models.ModelOrder
	}{
		{"empty series", &models.TimeSeries{}, models.ModelOrder{P: 1}},
		{"too short", accidentSeries(4), models.ModelOrder{P: 2, D: 1, Q: 1}},
		{"negative order", accidentSeries(24), models.ModelOrder{P: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitForecastModel(tt.series, tt.order)
			if !models.IsKind(err, models.FailureFit) {
				t.Errorf("FitForecastModel() error = %v, want FitFailure", err)
			}
		})
	}
}

func TestBootstrap_Ready(t *testing.T) {
	logger, collector := testDeps()
	loader := &staticLoader{series: accidentSeries(24)}

	svc := Bootstrap(context.Background(), loader, models.ModelOrder{P: 2, D: 1, Q: 1}, DefaultYearBounds(), logger, collector)

	if !svc.GetStatus().IsReady() {
		t.Fatalf("GetStatus() = %+v, want ready", svc.GetStatus())
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times, want 1", loader.calls)
	}

	prediction, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2021, Month: 1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.IsNaN(prediction.Value) || math.IsInf(prediction.Value, 0) {
		t.Errorf("Predict() = %v, want a finite value", prediction.Value)
	}
	if prediction.Horizon != 1 {
		t.Errorf("Horizon = %d, want 1", prediction.Horizon)
	}

	status := svc.Status()
	if !status.Ready || status.Reason != nil {
		t.Errorf("Status() = %+v", status)
	}
	if status.Observations != 24 || status.Order != "(2,1,1)" || status.Model == nil {
		t.Errorf("Status() = %+v", status)
	}
	if status.LastObservation == nil || !status.LastObservation.Equal(time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LastObservation = %v", status.LastObservation)
	}

	if got := testutil.ToFloat64(collector.ModelReady); got != 1 {
		t.Errorf("model_ready = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PredictionsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("predictions_total{success} = %v, want 1", got)
	}
}

func TestBootstrap_Degraded(t *testing.T) {
	tests := []struct {
		name       string
		loader     dataset.Loader
		order      models.ModelOrder
		wantReason string
	}{
		{
			name:       "missing source file",
			loader:     dataset.NewCSVLoader(filepath.Join(os.TempDir(), "does-not-exist", "accidents.csv"), dataset.DefaultCSVOptions()),
			order:      models.ModelOrder{P: 2, D: 1, Q: 1},
			wantReason: "MissingSource",
		},
		{
			name:       "malformed data",
			loader:     &staticLoader{err: models.NewError(models.FailureMalformedData, "bad value")},
			order:      models.ModelOrder{P: 2, D: 1, Q: 1},
			wantReason: "MalformedData",
		},
		{
			name:       "series too short for order",
			loader:     &staticLoader{series: accidentSeries(3)},
			order:      models.ModelOrder{P: 2, D: 1, Q: 1},
			wantReason: "FitFailure",
		},
		{
			name:       "unclassified loader error",
			loader:     &staticLoader{err: errors.New("boom")},
			order:      models.ModelOrder{P: 1},
			wantReason: "FitFailure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, collector := testDeps()
			svc := Bootstrap(context.Background(), tt.loader, tt.order, DefaultYearBounds(), logger, collector)

			status := svc.GetStatus()
			if status.IsReady() {
				t.Fatal("GetStatus() reports ready after a startup failure")
			}
			if status.Reason != tt.wantReason {
				t.Errorf("Reason = %v, want %v", status.Reason, tt.wantReason)
			}

			_, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2021, Month: 1})
			if !models.IsKind(err, models.FailureServiceUnavailable) {
				t.Errorf("Predict() error = %v, want ServiceUnavailable", err)
			}

			_, err = svc.Predict(context.Background(), models.PredictionRequest{Year: 2021, Month: 13})
			if !models.IsKind(err, models.FailureInvalidInput) {
				t.Errorf("Predict(2021, 13) error = %v, want InvalidInput", err)
			}

			report := svc.Status()
			if report.Reason == nil || *report.Reason != tt.wantReason {
				t.Errorf("Status().Reason = %v, want %v", report.Reason, tt.wantReason)
			}
			if got := testutil.ToFloat64(collector.StartupFailures.WithLabelValues(tt.wantReason)); got != 1 {
				t.Errorf("startup_failures_total{%s} = %v, want 1", tt.wantReason, got)
			}
		})
	}
}

func TestPredictionService_Validation(t *testing.T) {
	tests := []struct {
		name      string
		readiness models.Readiness
		request   models.PredictionRequest
		wantKind  models.FailureKind
		wantCalls int
	}{
		{"month zero", models.ReadyState(), models.PredictionRequest{Year: 2021, Month: 0}, models.FailureInvalidInput, 0},
		{"month thirteen", models.ReadyState(), models.PredictionRequest{Year: 2021, Month: 13}, models.FailureInvalidInput, 0},
		{"negative month", models.ReadyState(), models.PredictionRequest{Year: 2021, Month: -3}, models.FailureInvalidInput, 0},
		{"year below range", models.ReadyState(), models.PredictionRequest{Year: 1999, Month: 6}, models.FailureInvalidInput, 0},
		{"year above range", models.ReadyState(), models.PredictionRequest{Year: 2101, Month: 6}, models.FailureInvalidInput, 0},
		{"month checked before readiness", models.Readiness{}, models.PredictionRequest{Year: 2021, Month: 13}, models.FailureInvalidInput, 0},
		{"not ready", models.Readiness{}, models.PredictionRequest{Year: 2021, Month: 1}, models.FailureServiceUnavailable, 0},
		{"lower year bound inclusive", models.ReadyState(), models.PredictionRequest{Year: 2000, Month: 1}, "", 1},
		{"upper year bound inclusive", models.ReadyState(), models.PredictionRequest{Year: 2100, Month: 12}, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, collector := testDeps()
			forecaster := &countingForecaster{value: 42}
			svc := NewPredictionService(forecaster, tt.readiness, DefaultYearBounds(), logger, collector)

			prediction, err := svc.Predict(context.Background(), tt.request)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Predict() error = %v", err)
				}
				if prediction.Value != 42 {
					t.Errorf("Value = %v, want 42", prediction.Value)
				}
			} else if !models.IsKind(err, tt.wantKind) {
				t.Fatalf("Predict() error = %v, want %v", err, tt.wantKind)
			}

			if forecaster.calls != tt.wantCalls {
				t.Errorf("forecaster called %d times, want %d", forecaster.calls, tt.wantCalls)
			}
		})
	}
}

func TestPredictionService_ForecastFailures(t *testing.T) {
	tests := []struct {
		name       string
		forecaster *countingForecaster
	}{
		{"forecast error", &countingForecaster{err: errors.New("singular matrix")}},
		{"forecast panic", &countingForecaster{panic: true}},
		{"non-finite value", &countingForecaster{value: math.NaN()}},
		{"infinite value", &countingForecaster{value: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, collector := testDeps()
			svc := NewPredictionService(tt.forecaster, models.ReadyState(), DefaultYearBounds(), logger, collector)

			_, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2021, Month: 1})
			if !models.IsKind(err, models.FailurePredictionFailed) {
				t.Fatalf("Predict() error = %v, want PredictionFailed", err)
			}
			if !svc.GetStatus().IsReady() {
				t.Error("a failed prediction must not change readiness")
			}
			if got := testutil.ToFloat64(collector.PredictionsTotal.WithLabelValues("PredictionFailed")); got != 1 {
				t.Errorf("predictions_total{PredictionFailed} = %v, want 1", got)
			}
		})
	}
}

func TestPredictionService_CustomBounds(t *testing.T) {
	logger, collector := testDeps()
	svc := NewPredictionService(&countingForecaster{value: 1}, models.ReadyState(), YearBounds{Min: 2020, Max: 2030}, logger, collector)

	if _, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2019, Month: 1}); !models.IsKind(err, models.FailureInvalidInput) {
		t.Errorf("Predict(2019) error = %v, want InvalidInput", err)
	}
	if _, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2025, Month: 1}); err != nil {
		t.Errorf("Predict(2025) error = %v", err)
	}
}

func TestPredictionService_Concurrent(t *testing.T) {
	logger, collector := testDeps()
	svc := Bootstrap(context.Background(), &staticLoader{series: accidentSeries(48)}, models.ModelOrder{P: 2, D: 1, Q: 1}, DefaultYearBounds(), logger, collector)
	if !svc.GetStatus().IsReady() {
		t.Fatalf("GetStatus() = %+v", svc.GetStatus())
	}

	want, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2023, Month: 6})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Predict(context.Background(), models.PredictionRequest{Year: 2023, Month: 6})
			if err != nil {
				errs <- err
				return
			}
			if got.Value != want.Value {
				errs <- errors.New("concurrent forecast differs")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestStatisticsService_Describe(t *testing.T) {
	logger, collector := testDeps()
	svc := NewStatisticsService(logger, collector)

	series := &models.TimeSeries{
		Name: "accidents",
		Observations: []models.Observation{
			{Date: time.Date(2019, time.November, 1, 0, 0, 0, 0, time.UTC), Value: 10},
			{Date: time.Date(2019, time.December, 1, 0, 0, 0, 0, time.UTC), Value: 20},
			{Date: time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC), Value: 30},
		},
	}

	stats := svc.Describe(context.Background(), series)
	if stats.Observations != 3 || stats.Mean != 20 || stats.Min != 10 || stats.Max != 30 {
		t.Errorf("Describe() = %+v", stats)
	}
	if stats.MissingGaps != 1 {
		t.Errorf("MissingGaps = %d, want 1", stats.MissingGaps)
	}
	if len(stats.Yearly) != 2 || stats.Yearly[0].Year != 2019 || stats.Yearly[0].Total != 30 || stats.Yearly[1].Mean != 30 {
		t.Errorf("Yearly = %+v", stats.Yearly)
	}
	if stats.Seasonality != nil {
		t.Error("Seasonality should be nil for a short series")
	}

	if svc.Describe(context.Background(), nil) != nil {
		t.Error("Describe(nil) should be nil")
	}
}

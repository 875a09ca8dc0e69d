package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Recorders(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.RecordAPIRequest("/api/predict", "POST", "200")
	c.RecordAPIRequest("/api/predict", "POST", "200")
	c.RecordPrediction("success")
	c.RecordPrediction("InvalidInput")
	c.RecordStartupFailure("MissingSource")

	if got := testutil.ToFloat64(c.APIRequestsTotal.WithLabelValues("/api/predict", "POST", "200")); got != 2 {
		t.Errorf("api_requests_total = %v, want %v", got, 2)
	}
	if got := testutil.ToFloat64(c.PredictionsTotal.WithLabelValues("InvalidInput")); got != 1 {
		t.Errorf("predictions_total{InvalidInput} = %v, want %v", got, 1)
	}
	if got := testutil.ToFloat64(c.StartupFailures.WithLabelValues("MissingSource")); got != 1 {
		t.Errorf("startup_failures_total{MissingSource} = %v, want %v", got, 1)
	}
}

func TestCollector_SetReadiness(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.SetReadiness(true)
	if got := testutil.ToFloat64(c.ModelReady); got != 1 {
		t.Errorf("model_ready = %v, want 1", got)
	}

	c.SetReadiness(false)
	if got := testutil.ToFloat64(c.ModelReady); got != 0 {
		t.Errorf("model_ready = %v, want 0", got)
	}
}

func TestCollector_UpdateDBConnectionPool(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())
	c.UpdateDBConnectionPool(2, 3, 5)

	if got := testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")); got != 5 {
		t.Errorf("db_connection_pool{total} = %v, want 5", got)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"accident-forecast/internal/models"
	"accident-forecast/internal/services"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

// ForecastHandler handles forecast API endpoints
type ForecastHandler struct {
	predictions *services.PredictionService
	statistics  *services.StatisticsService
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
	validate    *validator.Validate
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(
	predictions *services.PredictionService,
	statistics *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastHandler {
	return &ForecastHandler{
		predictions: predictions,
		statistics:  statistics,
		logger:      logger,
		metrics:     metricsCollector,
		validate:    validator.New(),
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
}

// PredictRequest is the body of POST /api/predict. Query parameters take precedence.
type PredictRequest struct {
	Year  *int `json:"year" validate:"required"`
	Month *int `json:"month" validate:"required"`
}

// PredictResponse is a successful prediction
type PredictResponse struct {
	Prediction float64 `json:"prediction"`
	TargetDate string  `json:"target_date"`
	Horizon    int     `json:"horizon"`
}

// GetStatus handles GET /api/status
func (h *ForecastHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/status").Observe(time.Since(startTime).Seconds())
	}()

	h.metrics.RecordAPIRequest("/api/status", r.Method, "200")
	h.sendJSON(w, h.predictions.Status(), http.StatusOK)
}

// Predict handles POST /api/predict
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/predict").Observe(time.Since(startTime).Seconds())
	}()

	req, err := h.parsePredictRequest(r)
	if err != nil {
		h.metrics.RecordAPIError(string(models.FailureInvalidInput), "/api/predict")
		h.sendError(w, r, "/api/predict", err.Error(), http.StatusBadRequest, models.FailureInvalidInput)
		return
	}

	prediction, err := h.predictions.Predict(ctx, req)
	if err != nil {
		kind := models.KindOf(err)
		status := statusForKind(kind)
		if status >= http.StatusInternalServerError {
			h.logger.Error(ctx, "[API_PREDICT_ERROR] Prediction failed", logging.Fields{
				"year":  req.Year,
				"month": req.Month,
				"kind":  string(kind),
			}, err)
		}
		h.metrics.RecordAPIError(string(kind), "/api/predict")
		h.sendError(w, r, "/api/predict", messageOf(err), status, kind)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict", r.Method, "200")
	h.sendJSON(w, PredictResponse{
		Prediction: prediction.Value,
		TargetDate: prediction.TargetDate.Format("2006-01-02"),
		Horizon:    prediction.Horizon,
	}, http.StatusOK)
}

// GetSeriesStatistics handles GET /api/series/stats
func (h *ForecastHandler) GetSeriesStatistics(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/series/stats").Observe(time.Since(startTime).Seconds())
	}()

	stats := h.statistics.Describe(r.Context(), h.predictions.Series())
	if stats == nil {
		h.sendError(w, r, "/api/series/stats", "no dataset loaded", http.StatusServiceUnavailable, models.FailureServiceUnavailable)
		return
	}

	h.metrics.RecordAPIRequest("/api/series/stats", r.Method, "200")
	h.sendJSON(w, stats, http.StatusOK)
}

// HealthCheck handles GET /health. The process is alive even when the model is degraded.
func (h *ForecastHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":    "healthy",
		"model":     h.predictions.GetStatus().State.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(r.Context(), "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// ReadyCheck handles GET /ready, reporting 503 until the model is ready
func (h *ForecastHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	readiness := h.predictions.GetStatus()
	if !readiness.IsReady() {
		h.sendJSON(w, map[string]interface{}{"ready": false, "reason": readiness.Reason}, http.StatusServiceUnavailable)
		return
	}
	h.sendJSON(w, map[string]interface{}{"ready": true, "reason": nil}, http.StatusOK)
}

// parsePredictRequest reads year and month from the query string or, when
// absent there, from a JSON body
func (h *ForecastHandler) parsePredictRequest(r *http.Request) (models.PredictionRequest, error) {
	var body PredictRequest

	query := r.URL.Query()
	if query.Has("year") || query.Has("month") {
		var err error
		if body.Year, err = queryInt(query.Get("year"), "year"); err != nil {
			return models.PredictionRequest{}, err
		}
		if body.Month, err = queryInt(query.Get("month"), "month"); err != nil {
			return models.PredictionRequest{}, err
		}
	} else if r.Body != nil {
		decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return models.PredictionRequest{}, fmt.Errorf("invalid request body: %v", err)
		}
	}

	if err := h.validate.Struct(body); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return models.PredictionRequest{}, fmt.Errorf("%s is required", jsonName(fieldErrs[0].Field()))
		}
		return models.PredictionRequest{}, err
	}

	return models.PredictionRequest{Year: *body.Year, Month: *body.Month}, nil
}

func queryInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}

func jsonName(field string) string {
	switch field {
	case "Year":
		return "year"
	case "Month":
		return "month"
	default:
		return field
	}
}

// statusForKind maps a failure kind onto an HTTP status code
func statusForKind(kind models.FailureKind) int {
	switch kind {
	case models.FailureInvalidInput:
		return http.StatusBadRequest
	case models.FailureServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var fe *models.ForecastError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// sendJSON sends a JSON response
func (h *ForecastHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ForecastHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int, kind models.FailureKind) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
		Kind:    string(kind),
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all forecast API routes
func (h *ForecastHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/status", h.GetStatus).Methods("GET")
	router.HandleFunc("/api/predict", h.Predict).Methods("POST")
	router.HandleFunc("/api/series/stats", h.GetSeriesStatistics).Methods("GET")
	router.HandleFunc("/predict", h.Predict).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/ready", h.ReadyCheck).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}

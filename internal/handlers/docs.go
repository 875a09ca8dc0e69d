package handlers

import (
	"encoding/json"
	"net/http"
)

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func errorResponse(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content":     jsonContent(ref("Error")),
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	predict := map[string]interface{}{
		"summary":     "Forecast a month",
		"description": "Point forecast of the accident count for the requested calendar month. Year and month may be sent as query parameters or as a JSON body.",
		"parameters": []map[string]interface{}{
			{
				"name":        "year",
				"in":          "query",
				"description": "Target year (default bounds 2000-2100)",
				"required":    false,
				"schema":      map[string]string{"type": "integer"},
			},
			{
				"name":        "month",
				"in":          "query",
				"description": "Target month (1-12)",
				"required":    false,
				"schema":      map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 12},
			},
		},
		"requestBody": map[string]interface{}{
			"required": false,
			"content":  jsonContent(ref("PredictRequest")),
		},
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "Forecast computed",
				"content":     jsonContent(ref("Prediction")),
			},
			"400": errorResponse("InvalidInput: month or year out of range, or missing"),
			"500": errorResponse("PredictionFailed: the forecast computation failed"),
			"503": errorResponse("ServiceUnavailable: the model is not ready"),
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Accident Forecast API",
			"description": "Monthly accident count forecasts from a single ARIMA model fitted at startup",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8000", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/status": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Model readiness",
					"description": "Readiness computed at startup with dataset and model details. Never fails.",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Current status",
							"content":     jsonContent(ref("Status")),
						},
					},
				},
			},
			"/api/predict": map[string]interface{}{"post": predict},
			"/predict":     map[string]interface{}{"post": predict},
			"/api/series/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Statistics of the fitted series",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Descriptive and yearly statistics"},
						"503": errorResponse("No dataset loaded"),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Liveness probe",
					"responses": map[string]interface{}{"200": map[string]string{"description": "Process is alive"}},
				},
			},
			"/ready": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Readiness probe",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Model ready"},
						"503": map[string]string{"description": "Model degraded"},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"PredictRequest": map[string]interface{}{
					"type":     "object",
					"required": []string{"year", "month"},
					"properties": map[string]interface{}{
						"year":  map[string]string{"type": "integer"},
						"month": map[string]string{"type": "integer"},
					},
				},
				"Prediction": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prediction":  map[string]string{"type": "number", "format": "double"},
						"target_date": map[string]string{"type": "string", "format": "date"},
						"horizon":     map[string]string{"type": "integer"},
					},
				},
				"Status": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"ready":            map[string]string{"type": "boolean"},
						"state":            map[string]string{"type": "string"},
						"reason":           map[string]interface{}{"type": "string", "nullable": true, "enum": []string{"MissingSource", "MalformedData", "FitFailure"}},
						"detail":           map[string]string{"type": "string"},
						"source":           map[string]string{"type": "string"},
						"order":            map[string]string{"type": "string"},
						"observations":     map[string]string{"type": "integer"},
						"last_observation": map[string]string{"type": "string", "format": "date-time"},
						"model":            map[string]string{"type": "object"},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
						"kind":    map[string]string{"type": "string"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

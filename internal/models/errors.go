package models

import (
	"errors"
	"fmt"
)

// FailureKind classifies every failure the forecast core can report
type FailureKind string

const (
	// Startup failures, absorbed into Readiness
	FailureMissingSource FailureKind = "MissingSource"
	FailureMalformedData FailureKind = "MalformedData"
	FailureFit           FailureKind = "FitFailure"

	// Per-request failures, returned to the caller
	FailureInvalidInput       FailureKind = "InvalidInput"
	FailureServiceUnavailable FailureKind = "ServiceUnavailable"
	FailurePredictionFailed   FailureKind = "PredictionFailed"
)

// ForecastError is a classified failure of the forecast core
type ForecastError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *ForecastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *ForecastError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether retrying the same call may succeed.
// Only an unavailable service can change state, and only through an operator restart.
func (e *ForecastError) IsTransient() bool {
	return e.Kind == FailureServiceUnavailable
}

// NewError builds a ForecastError without an underlying cause
func NewError(kind FailureKind, format string, args ...interface{}) *ForecastError {
	return &ForecastError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a ForecastError around err
func WrapError(kind FailureKind, err error, format string, args ...interface{}) *ForecastError {
	return &ForecastError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from err, or "" when err is not classified
func KindOf(err error) FailureKind {
	var fe *ForecastError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is a ForecastError of the given kind
func IsKind(err error, kind FailureKind) bool {
	return KindOf(err) == kind
}

// ValidationError represents a configuration or data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

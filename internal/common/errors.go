package common

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error codes surfaced at the API boundary.
const (
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeState            = "STATE_ERROR"
	CodePredictionInput  = "PREDICTION_INPUT_ERROR"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodePrediction       = "PREDICTION_ERROR"
	CodeNotFound         = "NOT_FOUND"
)

// CodedError is implemented by every error in the taxonomy.
type CodedError interface {
	error
	Code() string
	HTTPStatus() int
}

// ConfigurationError reports missing or malformed artifacts, datasets or settings.
// It is fatal at startup.
type ConfigurationError struct {
	Msg      string
	Path     string
	Err      error
	NotFound bool
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + e.Msg
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error   { return e.Err }
func (e *ConfigurationError) Code() string    { return CodeConfiguration }
func (e *ConfigurationError) HTTPStatus() int { return http.StatusInternalServerError }

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(msg string, err error) *ConfigurationError {
	return &ConfigurationError{Msg: msg, Err: err}
}

// NewNotFoundError reports a required file that does not exist.
func NewNotFoundError(path string) *ConfigurationError {
	return &ConfigurationError{Msg: "required file not found", Path: path, NotFound: true}
}

// IsNotFound reports whether err is a missing-file ConfigurationError.
func IsNotFound(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr) && cfgErr.NotFound
}

// StateError means an operation ran before the component was fitted or loaded.
type StateError struct {
	Op  string
	Msg string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error in %s: %s", e.Op, e.Msg)
}

func (e *StateError) Code() string    { return CodeState }
func (e *StateError) HTTPStatus() int { return http.StatusInternalServerError }

// PredictionInputError carries field-level validation failures.
type PredictionInputError struct {
	FieldErrors map[string][]string
}

// NewPredictionInputError returns an empty error ready for Add calls.
func NewPredictionInputError() *PredictionInputError {
	return &PredictionInputError{FieldErrors: make(map[string][]string)}
}

// Add records a problem with field.
func (e *PredictionInputError) Add(field, msg string) {
	e.FieldErrors[field] = append(e.FieldErrors[field], msg)
}

// HasErrors reports whether any field failed.
func (e *PredictionInputError) HasErrors() bool {
	return len(e.FieldErrors) > 0
}

func (e *PredictionInputError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.FieldErrors[f], "; "))
	}
	return "invalid prediction input: " + strings.Join(parts, ", ")
}

func (e *PredictionInputError) Code() string    { return CodePredictionInput }
func (e *PredictionInputError) HTTPStatus() int { return http.StatusBadRequest }

// ModelUnavailableError is transient; callers may retry.
type ModelUnavailableError struct {
	Reason string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model unavailable: %s: %v", e.Reason, e.Err)
	}
	return "model unavailable: " + e.Reason
}

func (e *ModelUnavailableError) Unwrap() error   { return e.Err }
func (e *ModelUnavailableError) Code() string    { return CodeModelUnavailable }
func (e *ModelUnavailableError) HTTPStatus() int { return http.StatusServiceUnavailable }

// Retryable is true for every ModelUnavailableError.
func (e *ModelUnavailableError) Retryable() bool { return true }

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
)

// ErrorDetail is the body of every non-2xx response.
type ErrorDetail struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RateLimitError is returned when a caller exhausts its bucket.
type RateLimitError struct {
	Bucket     string
	Limit      string
	Requests   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit %s exceeded for %s", e.Limit, e.Bucket)
}

func (e *RateLimitError) Code() string    { return common.CodeRateLimit }
func (e *RateLimitError) HTTPStatus() int { return http.StatusTooManyRequests }

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string   { return e.msg }
func (e *badRequestError) Code() string    { return common.CodePredictionInput }
func (e *badRequestError) HTTPStatus() int { return http.StatusBadRequest }

// errorDetail maps err onto the error taxonomy. ModelUnavailableError is
// checked first because a missing artifact also wraps a ConfigurationError.
func errorDetail(err error) (int, ErrorDetail) {
	d := ErrorDetail{Timestamp: time.Now().UTC()}

	var (
		unavailable *common.ModelUnavailableError
		input       *common.PredictionInputError
		rateLimited *RateLimitError
		coded       common.CodedError
	)
	switch {
	case errors.As(err, &unavailable):
		d.ErrorCode = unavailable.Code()
		d.Message = "Models are temporarily unavailable"
		d.Details = map[string]any{"reason": unavailable.Reason, "retryable": unavailable.Retryable()}
		return unavailable.HTTPStatus(), d
	case errors.As(err, &input):
		d.ErrorCode = input.Code()
		d.Message = "Invalid prediction input"
		d.Details = map[string]any{"field_errors": input.FieldErrors}
		return input.HTTPStatus(), d
	case errors.As(err, &rateLimited):
		d.ErrorCode = rateLimited.Code()
		d.Message = "Rate limit exceeded"
		d.Details = map[string]any{
			"limit":               rateLimited.Limit,
			"retry_after_seconds": int(math.Ceil(rateLimited.RetryAfter.Seconds())),
		}
		return rateLimited.HTTPStatus(), d
	case errors.As(err, &coded):
		d.ErrorCode = coded.Code()
		d.Message = coded.Error()
		return coded.HTTPStatus(), d
	default:
		d.ErrorCode = common.CodePrediction
		d.Message = "Internal error while serving the request"
		return http.StatusInternalServerError, d
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, d := errorDetail(err)
	d.RequestID = RequestIDFromContext(r.Context())

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("request_id", d.RequestID).
		Str("error_code", d.ErrorCode).
		Int("status", status).
		Msg("Request failed")

	var rl *RateLimitError
	if errors.As(err, &rl) {
		retry := d.Details["retry_after_seconds"].(int)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Requests))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rl.RetryAfter).Unix(), 10))
	}
	writeJSON(w, status, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

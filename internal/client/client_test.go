package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/health"
	"titanic-predictor/internal/validation"
)

func pclass(v int) *int { return &v }

func input() validation.PassengerInput {
	return validation.PassengerInput{
		Pclass: pclass(3),
		Sex:    features.String("male"),
		SibSp:  pclass(0),
		Parch:  pclass(0),
	}
}

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in validation.PassengerInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, 3, *in.Pclass)
		assert.Nil(t, in.Age)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"individual_models": {"logistic_regression": {"probability": 0.1, "prediction": "did_not_survive"}},
			"ensemble_result": {"probability": 0.12, "prediction": "did_not_survive", "confidence": 0.96, "confidence_level": "high"},
			"prediction_id": "p-1",
			"latency_ms": 1.5
		}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/", "tok", time.Second).Predict(context.Background(), input())
	require.NoError(t, err)
	require.NotNil(t, resp.PredictionResult)
	assert.Equal(t, common.LabelDidNotSurvive, resp.EnsembleResult.Prediction)
	assert.Equal(t, common.ConfidenceHigh, resp.EnsembleResult.ConfidenceLevel)
	assert.Equal(t, "p-1", resp.PredictionID)
}

func TestPredict_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"PREDICTION_INPUT_ERROR","message":"Invalid prediction input","details":{"field_errors":{"sex":["must be male or female"]}}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok", time.Second).Predict(context.Background(), input())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, common.CodePredictionInput, apiErr.Detail.ErrorCode)
	assert.False(t, apiErr.Retryable())
}

func TestRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error_code":"MODEL_UNAVAILABLE","message":"Models are temporarily unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy","state":"loaded","models_loaded":true}`))
	}))
	defer srv.Close()

	st, err := New(srv.URL, "", time.Second, WithRetries(2, time.Millisecond)).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, st.Status)
	assert.True(t, st.ModelsLoaded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealthDetailed_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("detailed"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","message":"Service unhealthy: 1 critical issues","checks":{"model_files":{"name":"model_files","status":"unhealthy"}}}`))
	}))
	defer srv.Close()

	report, err := New(srv.URL, "", time.Second).HealthDetailed(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())
	require.NotNil(t, report)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, health.StatusUnhealthy, report.Checks["model_files"].Status)
}

func TestModelsInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models_loaded":false,"state":"ready","feature_columns":[],"model_types":["logistic_regression","decision_tree","ensemble"],"loading_mode":"lazy"}`))
	}))
	defer srv.Close()

	info, err := New(srv.URL, "", 0).ModelsInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.LoadingModeLazy, info.LoadingMode)
	assert.Len(t, info.ModelTypes, 3)
}

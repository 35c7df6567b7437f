// Package metrics provides Prometheus metrics collection for the survival predictor.
// It defines the prediction, model-loading, preprocessing and API metrics that are
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal    *prometheus.CounterVec // Predictions served, by ensemble label
	PredictionFailures  prometheus.Counter     // Predictions that returned an error
	PredictionLatency   prometheus.Histogram   // End-to-end prediction latency
	EnsembleProbability prometheus.Histogram   // Distribution of ensemble survival probability
	ConfidenceScores    prometheus.Histogram   // Distribution of model agreement confidence

	// Model loading metrics
	ModelLoads        prometheus.Counter   // Successful lazy model loads
	ModelLoadFailures prometheus.Counter   // Failed or timed out lazy model loads
	ModelLoadTimeouts prometheus.Counter   // Lazy model loads that exceeded the timeout
	ModelLoadDuration prometheus.Histogram // Time spent loading artifacts
	ModelsLoaded      prometheus.Gauge     // 1 once models are resident
	ModelAccuracy     *prometheus.GaugeVec // Evaluation accuracy by model

	// Preprocessing metrics
	UnseenCategories *prometheus.CounterVec // Unseen categorical values replaced by fallback, by column

	// API metrics
	HTTPRequests    *prometheus.CounterVec // Requests by route and status code
	InputRejections prometheus.Counter     // Requests rejected by input validation
	AuthFailures    prometheus.Counter     // Requests with missing or invalid tokens
	RateLimited     prometheus.Counter     // Requests rejected by the rate limiter
	StreamClients   prometheus.Gauge       // Connected prediction stream clients

	// Training metrics
	TrainingRuns prometheus.Counter // Completed training runs
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of survival predictions served",
		}, []string{"label"}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (preprocessing and both models)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		EnsembleProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_probability",
			Help:    "Distribution of ensemble survival probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ConfidenceScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of model agreement confidence",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_loads_total",
			Help: "Total number of successful model loads",
		}),
		ModelLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_load_failures_total",
			Help: "Total number of failed model loads",
		}),
		ModelLoadTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_load_timeouts_total",
			Help: "Total number of model loads that timed out",
		}),
		ModelLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_load_duration_seconds",
			Help:    "Duration of model artifact loading in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ModelsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "models_loaded",
			Help: "Whether models are loaded (1) or not (0)",
		}),
		ModelAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "Held-out accuracy recorded at training time",
		}, []string{"model"}),
		UnseenCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "unseen_categories_total",
			Help: "Categorical values not seen at fit time, replaced by the fallback code",
		}, []string{"column"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		InputRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "input_rejections_total",
			Help: "Total number of requests rejected by input validation",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected prediction stream clients",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}),
	}
}

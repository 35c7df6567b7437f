package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the small interfaces the preprocessing,
// prediction and API packages depend on, so they never import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Preprocessing

func (w *MetricsWrapper) UnseenCategoryInc(column string) {
	w.m.UnseenCategories.WithLabelValues(column).Inc()
}

// Prediction

func (w *MetricsWrapper) PredictionInc(label string) {
	w.m.PredictionsTotal.WithLabelValues(label).Inc()
}

func (w *MetricsWrapper) PredictionFailureInc() {
	w.m.PredictionFailures.Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) EnsembleProbabilityObserve(p float64) {
	w.m.EnsembleProbability.Observe(p)
}

func (w *MetricsWrapper) ConfidenceObserve(c float64) {
	w.m.ConfidenceScores.Observe(c)
}

// Model loading

func (w *MetricsWrapper) ModelLoadInc() {
	w.m.ModelLoads.Inc()
}

func (w *MetricsWrapper) ModelLoadFailureInc() {
	w.m.ModelLoadFailures.Inc()
}

func (w *MetricsWrapper) ModelLoadTimeoutInc() {
	w.m.ModelLoadTimeouts.Inc()
}

func (w *MetricsWrapper) ModelLoadDurationObserve(seconds float64) {
	w.m.ModelLoadDuration.Observe(seconds)
}

func (w *MetricsWrapper) ModelsLoadedSet(loaded bool) {
	if loaded {
		w.m.ModelsLoaded.Set(1)
		return
	}
	w.m.ModelsLoaded.Set(0)
}

func (w *MetricsWrapper) ModelAccuracySet(model string, accuracy float64) {
	w.m.ModelAccuracy.WithLabelValues(model).Set(accuracy)
}

// API

func (w *MetricsWrapper) HTTPRequestInc(route string, code int) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (w *MetricsWrapper) InputRejectionInc() {
	w.m.InputRejections.Inc()
}

func (w *MetricsWrapper) AuthFailureInc() {
	w.m.AuthFailures.Inc()
}

func (w *MetricsWrapper) RateLimitedInc() {
	w.m.RateLimited.Inc()
}

func (w *MetricsWrapper) StreamClientsSet(n int) {
	w.m.StreamClients.Set(float64(n))
}

// Training

func (w *MetricsWrapper) TrainingRunInc() {
	w.m.TrainingRuns.Inc()
}

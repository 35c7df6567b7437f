package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu              sync.Mutex
	predictions     map[string]int
	failures        int
	latencySum      float64
	probabilities   []float64
	confidences     []float64
	loads           int
	loadFailures    int
	loadTimeouts    int
	loadDurationSum float64
	loaded          bool
	accuracies      map[string]float64
}

func (m *MockMetrics) PredictionInc(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[label]++
}

func (m *MockMetrics) PredictionFailureInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) EnsembleProbabilityObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probabilities = append(m.probabilities, v)
}

func (m *MockMetrics) ConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

func (m *MockMetrics) ModelLoadInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
}

func (m *MockMetrics) ModelLoadFailureInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadFailures++
}

func (m *MockMetrics) ModelLoadTimeoutInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadTimeouts++
}

func (m *MockMetrics) ModelLoadDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadDurationSum += v
}

func (m *MockMetrics) ModelsLoadedSet(loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = loaded
}

func (m *MockMetrics) ModelAccuracySet(model string, accuracy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accuracies == nil {
		m.accuracies = make(map[string]float64)
	}
	m.accuracies[model] = accuracy
}

// Loads returns how many successful loads were recorded.
func (m *MockMetrics) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Predictions returns how many predictions were recorded for label.
func (m *MockMetrics) Predictions(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[label]
}

// Failures returns the number of recorded prediction failures.
func (m *MockMetrics) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Timeouts returns the number of recorded load timeouts.
func (m *MockMetrics) Timeouts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadTimeouts
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/health"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/storage"
	"titanic-predictor/internal/validation"
)

const serviceVersion = "1.0.0"

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	*ml.PredictionResult
	PredictionID string   `json:"prediction_id"`
	Anomalies    []string `json:"anomalies,omitempty"`
	LatencyMS    float64  `json:"latency_ms"`
}

type ModelsInfo struct {
	ModelsLoaded   bool               `json:"models_loaded"`
	State          string             `json:"state"`
	FeatureColumns []string           `json:"feature_columns"`
	ModelAccuracy  map[string]float64 `json:"model_accuracy,omitempty"`
	ModelTypes     []string           `json:"model_types"`
	LoadingMode    string             `json:"loading_mode"`
	LoadedAt       *time.Time         `json:"loaded_at,omitempty"`
}

type ServiceInfo struct {
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Endpoints   map[string]string `json:"endpoints"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := RequestIDFromContext(r.Context())

	var in validation.PassengerInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, r, &badRequestError{msg: fmt.Sprintf("malformed request body: %v", err)})
		return
	}

	rec, anomalies, err := s.validator.Validate(in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.settings.RequestTimeout)
	defer cancel()
	result, err := s.predictor.Predict(ctx, rec)
	if err != nil {
		var unavailable *common.ModelUnavailableError
		if errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &unavailable) {
			err = &common.ModelUnavailableError{Reason: "prediction timed out", Err: err}
		}
		writeError(w, r, err)
		return
	}

	elapsed := time.Since(start)
	resp := PredictResponse{
		PredictionResult: result,
		PredictionID:     uuid.NewString(),
		Anomalies:        anomalies,
		LatencyMS:        float64(elapsed.Microseconds()) / 1000,
	}

	ev := log.Info()
	if elapsed > slowRequest {
		ev = log.Warn().Bool("slow", true)
	}
	ev.Str("request_id", reqID).
		Str("prediction_id", resp.PredictionID).
		Str("prediction", result.EnsembleResult.Prediction).
		Float64("probability", result.EnsembleResult.Probability).
		Str("confidence_level", result.EnsembleResult.ConfidenceLevel).
		Dur("duration", elapsed).
		Msg("Prediction served")

	s.audit(r.Context(), resp, rec)
	if s.hub != nil {
		s.hub.Publish(PredictionEvent{
			Type:            "prediction",
			ID:              resp.PredictionID,
			RequestID:       reqID,
			Timestamp:       time.Now().UTC(),
			Prediction:      result.EnsembleResult.Prediction,
			Probability:     result.EnsembleResult.Probability,
			Confidence:      result.EnsembleResult.Confidence,
			ConfidenceLevel: result.EnsembleResult.ConfidenceLevel,
			Anomalies:       anomalies,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// audit stores the prediction when storage is configured. Failures are
// logged and never fail the request.
func (s *Server) audit(ctx context.Context, resp PredictResponse, rec features.RawRecord) {
	if s.store == nil {
		return
	}
	record := storage.PredictionRecord{
		ID:                  resp.PredictionID,
		RequestID:           RequestIDFromContext(ctx),
		Timestamp:           time.Now().UTC(),
		Input:               recordInput(rec),
		ModelProbabilities:  make(map[string]float64, len(resp.IndividualModels)),
		EnsembleProbability: resp.EnsembleResult.Probability,
		Prediction:          resp.EnsembleResult.Prediction,
		Confidence:          resp.EnsembleResult.Confidence,
		ConfidenceLevel:     resp.EnsembleResult.ConfidenceLevel,
		LatencyMS:           resp.LatencyMS,
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		record.Subject = claims.UserID
	}
	for name, p := range resp.IndividualModels {
		record.ModelProbabilities[name] = p.Probability
	}
	if err := s.store.StorePrediction(record); err != nil {
		log.Error().Err(err).Str("prediction_id", record.ID).Msg("Failed to store prediction audit record")
	}
}

func recordInput(rec features.RawRecord) map[string]any {
	in := map[string]any{
		features.ColPclass: rec.Pclass,
		features.ColSex:    rec.Sex,
		features.ColSibSp:  rec.SibSp,
		features.ColParch:  rec.Parch,
	}
	if rec.Age != nil {
		in[features.ColAge] = *rec.Age
	}
	if rec.Fare != nil {
		in[features.ColFare] = *rec.Fare
	}
	if rec.Embarked != nil {
		in[features.ColEmbarked] = *rec.Embarked
	}
	return in
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("detailed") == "true" {
		report := s.health.RunAll(r.Context())
		writeJSON(w, healthStatusCode(report.Status), report)
		return
	}
	q := s.health.Quick()
	writeJSON(w, healthStatusCode(q.Status), q)
}

func healthStatusCode(st health.Status) int {
	if st == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (s *Server) handleModelsInfo(w http.ResponseWriter, r *http.Request) {
	info := ModelsInfo{
		State:          s.predictor.State().String(),
		FeatureColumns: []string{},
		ModelTypes:     []string{common.ModelLogisticRegression, common.ModelDecisionTree, common.ModelEnsemble},
		LoadingMode:    common.LoadingModeLazy,
	}
	if m, ok := s.predictor.Loaded(); ok {
		info.ModelsLoaded = true
		info.FeatureColumns = m.FeatureColumns
		loadedAt := m.LoadedAt.UTC()
		info.LoadedAt = &loadedAt
		if m.Evaluation != nil {
			info.ModelAccuracy = m.Evaluation.ByModel()
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"predict":     "POST /predict",
		"health":      "GET /health?detailed=true",
		"models_info": "GET /models/info",
		"metrics":     "GET /metrics",
	}
	if s.hub != nil {
		endpoints["stream"] = "GET /ws/predictions"
	}
	writeJSON(w, http.StatusOK, ServiceInfo{
		Service:     common.DefaultJWTIssuer,
		Version:     serviceVersion,
		Environment: s.settings.Environment,
		Endpoints:   endpoints,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorDetail{
		ErrorCode: common.CodeNotFound,
		Message:   "no route for " + r.Method + " " + r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorDetail{
		ErrorCode: common.CodeNotFound,
		Message:   r.Method + " is not allowed on " + r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

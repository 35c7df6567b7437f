// Package backtest re-scores saved model artifacts offline, either against a
// labeled passenger dataset or by replaying predictions from the audit log.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/model"
)

var modelNames = []string{common.ModelLogisticRegression, common.ModelDecisionTree, common.ModelEnsemble}

// Row is the outcome for one sample.
type Row struct {
	Index           int                `json:"index"`
	Actual          *int               `json:"actual,omitempty"`
	Probabilities   map[string]float64 `json:"probabilities"`
	Prediction      string             `json:"prediction"`
	Confidence      float64            `json:"confidence"`
	ConfidenceLevel string             `json:"confidence_level"`
	Correct         *bool              `json:"correct,omitempty"`
	RecordedID      string             `json:"recorded_id,omitempty"`
	Recorded        string             `json:"recorded_prediction,omitempty"`
	Changed         bool               `json:"changed,omitempty"`
}

// Scores are binary classification metrics for the survived class.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// LevelStats is accuracy within one confidence level.
type LevelStats struct {
	Count    int     `json:"count"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

type Results struct {
	Rows            []Row                 `json:"rows"`
	Samples         int                   `json:"samples"`
	Labeled         int                   `json:"labeled"`
	Replayed        int                   `json:"replayed"`
	Changed         int                   `json:"changed"`
	ModelScores     map[string]Scores     `json:"model_scores,omitempty"`
	ByConfidence    map[string]LevelStats `json:"by_confidence"`
	MeanProbability float64               `json:"mean_probability"`
	SurvivedRate    float64               `json:"survived_rate"`
	Importance      *ml.ImportanceReport  `json:"feature_importance,omitempty"`
	Drift           *ml.DriftReport       `json:"drift,omitempty"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
}

// Engine scores every sample from a DataLoader with one set of models.
type Engine struct {
	models  *ml.Models
	data    *DataLoader
	results *Results

	importanceRepeats int
	seed              int64
	driftThreshold    float64
	drift             bool

	// labeled feature matrix kept for permutation importance
	x [][]float64
	y []int
}

type EngineOption func(*Engine)

// WithImportance computes permutation importance over labeled samples.
func WithImportance(repeats int, seed int64) EngineOption {
	return func(e *Engine) {
		e.importanceRepeats = repeats
		e.seed = seed
	}
}

// WithDrift compares the scored passengers with the training statistics.
func WithDrift(threshold float64) EngineOption {
	return func(e *Engine) {
		e.drift = true
		e.driftThreshold = threshold
	}
}

func NewEngine(models *ml.Models, data *DataLoader, opts ...EngineOption) *Engine {
	e := &Engine{models: models, data: data, results: &Results{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run scores all samples. It stops early when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.models == nil || e.models.Preprocessor == nil || e.models.Ensemble == nil {
		return &common.ModelUnavailableError{Reason: "backtest needs loaded models"}
	}
	if e.data.GetDataCount() == 0 {
		return common.NewConfigurationError(common.ErrMsgEmptyDataset, nil)
	}

	log.Info().Int("samples", e.data.GetDataCount()).Msg("Starting backtest")
	e.results = &Results{StartTime: time.Now()}
	e.x, e.y = nil, nil
	e.data.Reset()

	for e.data.HasNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := e.data.Next()
		row, vec, err := e.score(s)
		if err != nil {
			return fmt.Errorf("sample %d: %w", s.Index, err)
		}
		e.results.Rows = append(e.results.Rows, row)
		if row.Actual != nil {
			e.x = append(e.x, vec)
			e.y = append(e.y, *row.Actual)
		}

		if n := len(e.results.Rows); n%500 == 0 {
			log.Debug().Float64("progress", e.data.GetProgress()).Int("scored", n).Msg("Backtest progress")
		}
	}

	e.calculateMetrics()
	if err := e.analyze(ctx); err != nil {
		return err
	}
	e.results.EndTime = time.Now()
	log.Info().
		Int("samples", e.results.Samples).
		Int("labeled", e.results.Labeled).
		Int("changed", e.results.Changed).
		Dur("duration", e.results.EndTime.Sub(e.results.StartTime)).
		Msg("Backtest completed")
	return nil
}

func (e *Engine) score(s Sample) (Row, []float64, error) {
	vec, err := e.models.Preprocessor.PreprocessSingle(s.Record)
	if err != nil {
		return Row{}, nil, err
	}
	res, err := e.models.Ensemble.Predict(vec.Values)
	if err != nil {
		return Row{}, nil, err
	}

	row := Row{
		Index:           s.Index,
		Actual:          s.Record.Survived,
		Probabilities:   make(map[string]float64, len(modelNames)),
		Prediction:      res.EnsembleResult.Prediction,
		Confidence:      res.EnsembleResult.Confidence,
		ConfidenceLevel: res.EnsembleResult.ConfidenceLevel,
	}
	for name, p := range res.IndividualModels {
		row.Probabilities[name] = p.Probability
	}
	row.Probabilities[common.ModelEnsemble] = res.EnsembleResult.Probability

	if row.Actual != nil {
		correct := (*row.Actual == 1) == res.Survived()
		row.Correct = &correct
	}
	if s.Recorded != nil {
		row.RecordedID = s.Recorded.ID
		row.Recorded = s.Recorded.Prediction
		row.Changed = s.Recorded.Prediction != row.Prediction
	}
	return row, vec.Values, nil
}

func (e *Engine) analyze(ctx context.Context) error {
	if e.drift {
		d, err := ml.NewDriftDetector(e.models.Preprocessor, e.driftThreshold)
		if err != nil {
			return err
		}
		records := make([]features.RawRecord, 0, len(e.data.samples))
		for _, s := range e.data.samples {
			records = append(records, s.Record)
		}
		e.results.Drift = d.Detect(records)
		for _, a := range e.results.Drift.Alerts {
			log.Warn().
				Str("feature", a.Feature).
				Str("method", a.Method).
				Float64("score", a.Score).
				Str("severity", a.Severity).
				Msg(a.Description)
		}
	}

	if e.importanceRepeats > 0 && len(e.x) > 1 {
		report, err := ml.PermutationImportance(ctx, e.models.Ensemble, e.models.FeatureColumns, e.x, e.y, e.importanceRepeats, e.seed)
		if err != nil {
			return fmt.Errorf("feature importance: %w", err)
		}
		e.results.Importance = report
	}
	return nil
}

func (e *Engine) calculateMetrics() {
	r := e.results
	r.Samples = len(r.Rows)
	r.ByConfidence = map[string]LevelStats{
		common.ConfidenceHigh:   {},
		common.ConfidenceMedium: {},
		common.ConfidenceLow:    {},
	}

	var (
		yTrue    []int
		proba    = make(map[string][]float64, len(modelNames))
		ensemble = make([]float64, 0, len(r.Rows))
		survived int
	)
	for _, row := range r.Rows {
		ensemble = append(ensemble, row.Probabilities[common.ModelEnsemble])
		if row.Prediction == common.LabelSurvived {
			survived++
		}
		if row.Recorded != "" {
			r.Replayed++
			if row.Changed {
				r.Changed++
			}
		}
		if row.Actual == nil {
			continue
		}

		r.Labeled++
		yTrue = append(yTrue, *row.Actual)
		for _, name := range modelNames {
			proba[name] = append(proba[name], row.Probabilities[name])
		}
		ls := r.ByConfidence[row.ConfidenceLevel]
		ls.Count++
		if *row.Correct {
			ls.Correct++
		}
		r.ByConfidence[row.ConfidenceLevel] = ls
	}

	if r.Samples > 0 {
		r.MeanProbability = stat.Mean(ensemble, nil)
		r.SurvivedRate = float64(survived) / float64(r.Samples)
	}
	for level, ls := range r.ByConfidence {
		if ls.Count > 0 {
			ls.Accuracy = float64(ls.Correct) / float64(ls.Count)
			r.ByConfidence[level] = ls
		}
	}

	if r.Labeled == 0 {
		return
	}
	r.ModelScores = make(map[string]Scores, len(modelNames))
	for _, name := range modelNames {
		yPred := model.BinaryPredFromProba(proba[name], common.SurvivalThreshold)
		prec, rec, f1 := model.PrecisionRecallF1(yTrue, yPred)
		r.ModelScores[name] = Scores{
			Accuracy:  model.Accuracy(yTrue, yPred),
			Precision: prec,
			Recall:    rec,
			F1:        f1,
		}
	}
}

// GetResults returns the results of the last Run.
func (e *Engine) GetResults() *Results {
	return e.results
}

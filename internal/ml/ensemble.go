package ml

import (
	"errors"
	"fmt"
	"math"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/model"
)

type ModelPrediction struct {
	Probability float64 `json:"probability"`
	Prediction  string  `json:"prediction"`
}

type EnsemblePrediction struct {
	Probability     float64 `json:"probability"`
	Prediction      string  `json:"prediction"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidence_level"`
}

type PredictionResult struct {
	IndividualModels map[string]ModelPrediction `json:"individual_models"`
	EnsembleResult   EnsemblePrediction         `json:"ensemble_result"`
}

// Survived reports the ensemble decision.
func (r *PredictionResult) Survived() bool {
	return r.EnsembleResult.Prediction == common.LabelSurvived
}

// Ensemble averages the survival probabilities of a logistic regression and a
// decision tree.
type Ensemble struct {
	logistic model.Classifier
	tree     model.Classifier
}

func NewEnsemble(logistic, tree model.Classifier) *Ensemble {
	return &Ensemble{logistic: logistic, tree: tree}
}

// Predict scores one feature vector in canonical column order.
func (e *Ensemble) Predict(features []float64) (*PredictionResult, error) {
	probs, err := e.probabilities([][]float64{features})
	if err != nil {
		return nil, err
	}
	return Combine(probs[0][0], probs[1][0]), nil
}

// PredictProba returns ensemble probabilities for a batch.
func (e *Ensemble) PredictProba(X [][]float64) ([]float64, error) {
	probs, err := e.probabilities(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		out[i] = (probs[0][i] + probs[1][i]) / 2
	}
	return out, nil
}

func (e *Ensemble) probabilities(X [][]float64) ([2][]float64, error) {
	var out [2][]float64
	if e == nil || e.logistic == nil || e.tree == nil {
		return out, &common.ModelUnavailableError{Reason: "classifiers are not loaded"}
	}
	for k, c := range []model.Classifier{e.logistic, e.tree} {
		p, err := c.PredictProba(X)
		if errors.Is(err, model.ErrNotFitted) {
			return out, &common.ModelUnavailableError{Reason: c.Name() + " is not fitted", Err: err}
		}
		if err != nil {
			return out, fmt.Errorf("%s prediction failed: %w", c.Name(), err)
		}
		out[k] = p
	}
	return out, nil
}

// Combine builds a PredictionResult from the two model probabilities.
// Confidence is the agreement between the models, 1 - |pLR - pDT|.
func Combine(pLR, pDT float64) *PredictionResult {
	ens := (pLR + pDT) / 2
	confidence := 1 - math.Abs(pLR-pDT)
	return &PredictionResult{
		IndividualModels: map[string]ModelPrediction{
			common.ModelLogisticRegression: {Probability: pLR, Prediction: Label(pLR)},
			common.ModelDecisionTree:       {Probability: pDT, Prediction: Label(pDT)},
		},
		EnsembleResult: EnsemblePrediction{
			Probability:     ens,
			Prediction:      Label(ens),
			Confidence:      confidence,
			ConfidenceLevel: ConfidenceLevel(confidence),
		},
	}
}

// Label maps a probability to "survived" (p >= 0.5) or "did_not_survive".
func Label(p float64) string {
	if p >= common.SurvivalThreshold {
		return common.LabelSurvived
	}
	return common.LabelDidNotSurvive
}

// ConfidenceLevel buckets an agreement score. Thresholds are inclusive, so a
// confidence of exactly 0.8 is "high".
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= common.HighConfidenceMin:
		return common.ConfidenceHigh
	case confidence >= common.MediumConfidenceMin:
		return common.ConfidenceMedium
	default:
		return common.ConfidenceLow
	}
}

package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"titanic-predictor/internal/common"
)

// EvaluationResults is the held-out accuracy summary written by training.
type EvaluationResults struct {
	LogisticRegressionAccuracy float64 `json:"logistic_regression_accuracy"`
	DecisionTreeAccuracy       float64 `json:"decision_tree_accuracy"`
	EnsembleAccuracy           float64 `json:"ensemble_accuracy"`
}

// ByModel keys accuracies by model name.
func (e EvaluationResults) ByModel() map[string]float64 {
	return map[string]float64{
		common.ModelLogisticRegression: e.LogisticRegressionAccuracy,
		common.ModelDecisionTree:       e.DecisionTreeAccuracy,
		common.ModelEnsemble:           e.EnsembleAccuracy,
	}
}

func SaveEvaluation(path string, e EvaluationResults) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write evaluation results: %w", err)
	}
	return nil
}

func LoadEvaluation(path string) (*EvaluationResults, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.NewNotFoundError(path)
	}
	if err != nil {
		return nil, &common.ConfigurationError{Msg: "cannot read evaluation results", Path: path, Err: err}
	}
	var e EvaluationResults
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &common.ConfigurationError{Msg: "malformed evaluation results", Path: path, Err: err}
	}
	return &e, nil
}

package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/model"
)

// fixedClassifier always returns the same probability.
type fixedClassifier struct {
	name string
	p    float64
	err  error
}

func (f *fixedClassifier) Name() string                     { return f.name }
func (f *fixedClassifier) Fit(X [][]float64, y []int) error { return nil }
func (f *fixedClassifier) PredictProba(X [][]float64) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = f.p
	}
	return out, nil
}

func TestEnsemble_AveragesProbabilities(t *testing.T) {
	e := NewEnsemble(
		&fixedClassifier{name: common.ModelLogisticRegression, p: 0.8},
		&fixedClassifier{name: common.ModelDecisionTree, p: 1.0},
	)

	res, err := e.Predict([]float64{1, 2, 3})
	require.NoError(t, err)

	assert.InDelta(t, 0.9, res.EnsembleResult.Probability, 1e-12)
	assert.Equal(t, common.LabelSurvived, res.EnsembleResult.Prediction)
	assert.InDelta(t, 0.8, res.EnsembleResult.Confidence, 1e-12)
	assert.Equal(t, common.ConfidenceHigh, res.EnsembleResult.ConfidenceLevel)
	assert.True(t, res.Survived())

	require.Contains(t, res.IndividualModels, common.ModelLogisticRegression)
	require.Contains(t, res.IndividualModels, common.ModelDecisionTree)
	assert.Equal(t, 0.8, res.IndividualModels[common.ModelLogisticRegression].Probability)
	assert.Equal(t, common.LabelSurvived, res.IndividualModels[common.ModelDecisionTree].Prediction)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name      string
		pLR, pDT  float64
		wantLabel string
		wantLevel string
	}{
		{"full agreement survived", 0.9, 0.9, common.LabelSurvived, common.ConfidenceHigh},
		{"full agreement died", 0.1, 0.1, common.LabelDidNotSurvive, common.ConfidenceHigh},
		{"exact threshold", 0.5, 0.5, common.LabelSurvived, common.ConfidenceHigh},
		{"medium disagreement", 0.3, 0.6, common.LabelDidNotSurvive, common.ConfidenceMedium},
		{"strong disagreement", 0.0, 1.0, common.LabelSurvived, common.ConfidenceLow},
		{"just below half", 0.49, 0.49, common.LabelDidNotSurvive, common.ConfidenceHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Combine(tt.pLR, tt.pDT)
			assert.Equal(t, tt.wantLabel, res.EnsembleResult.Prediction)
			assert.Equal(t, tt.wantLevel, res.EnsembleResult.ConfidenceLevel)
			assert.GreaterOrEqual(t, res.EnsembleResult.Probability, 0.0)
			assert.LessOrEqual(t, res.EnsembleResult.Probability, 1.0)
		})
	}
}

func TestConfidenceLevel(t *testing.T) {
	assert.Equal(t, common.ConfidenceHigh, ConfidenceLevel(1.0))
	assert.Equal(t, common.ConfidenceHigh, ConfidenceLevel(0.8))
	assert.Equal(t, common.ConfidenceMedium, ConfidenceLevel(0.79))
	assert.Equal(t, common.ConfidenceMedium, ConfidenceLevel(0.6))
	assert.Equal(t, common.ConfidenceLow, ConfidenceLevel(0.59))
	assert.Equal(t, common.ConfidenceLow, ConfidenceLevel(0))
}

func TestEnsemble_Unavailable(t *testing.T) {
	var unavailable *common.ModelUnavailableError

	_, err := NewEnsemble(nil, &fixedClassifier{p: 0.5}).Predict([]float64{1})
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, unavailable.Retryable())

	var nilEnsemble *Ensemble
	_, err = nilEnsemble.Predict([]float64{1})
	require.ErrorAs(t, err, &unavailable)

	_, err = NewEnsemble(model.NewLogisticRegression(), model.NewDecisionTree()).Predict([]float64{1})
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, errors.Is(err, model.ErrNotFitted))
}

func TestEnsemble_ClassifierError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEnsemble(&fixedClassifier{name: "a", p: 0.5}, &fixedClassifier{name: "b", err: boom})
	_, err := e.Predict([]float64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var unavailable *common.ModelUnavailableError
	assert.False(t, errors.As(err, &unavailable))
}

func TestEnsemble_PredictProba(t *testing.T) {
	e := NewEnsemble(&fixedClassifier{p: 0.2}, &fixedClassifier{p: 0.6})
	proba, err := e.PredictProba([][]float64{{1}, {2}})
	require.NoError(t, err)
	require.Len(t, proba, 2)
	assert.InDelta(t, 0.4, proba[0], 1e-12)
	assert.InDelta(t, 0.4, proba[1], 1e-12)
}

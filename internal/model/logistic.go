package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"titanic-predictor/internal/common"
)

// LogisticRegression is an L2-regularized binary logistic regression trained with
// full-batch gradient descent on standardized inputs. Initial weights are zero,
// so training is deterministic.
type LogisticRegression struct {
	W     []float64 // weights in standardized space
	B     float64   // bias
	Mean  []float64 // per-feature mean seen at fit
	Scale []float64 // per-feature std seen at fit, 1 for constant columns

	LearningRate float64
	MaxIter      int
	L2           float64 // inverse regularization strength, 1/C
	Tol          float64 // stop once the largest gradient component falls below
}

type LogisticOption func(*LogisticRegression)

func WithLearningRate(lr float64) LogisticOption {
	return func(m *LogisticRegression) { m.LearningRate = lr }
}

func WithMaxIter(n int) LogisticOption {
	return func(m *LogisticRegression) { m.MaxIter = n }
}

func WithL2(l2 float64) LogisticOption {
	return func(m *LogisticRegression) { m.L2 = l2 }
}

func WithTolerance(tol float64) LogisticOption {
	return func(m *LogisticRegression) { m.Tol = tol }
}

func NewLogisticRegression(opts ...LogisticOption) *LogisticRegression {
	m := &LogisticRegression{
		LearningRate: 0.1,
		MaxIter:      common.DefaultLogisticMaxIter,
		L2:           1.0,
		Tol:          1e-6,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *LogisticRegression) Name() string { return common.ModelLogisticRegression }

func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	p, err := validateTrainingData(X, y)
	if err != nil {
		return fmt.Errorf("logistic regression: %w", err)
	}
	n := len(X)

	m.Mean = make([]float64, p)
	m.Scale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		m.Mean[j] = mean
		m.Scale[j] = std
		if std == 0 {
			m.Scale[j] = 1
		}
	}

	Z := make([][]float64, n)
	for i := range X {
		Z[i] = m.standardize(X[i])
	}

	m.W = make([]float64, p)
	m.B = 0
	gW := make([]float64, p)
	for iter := 0; iter < m.MaxIter; iter++ {
		for j := range gW {
			gW[j] = 0
		}
		gb := 0.0
		for i, z := range Z {
			d := sigmoid(floats.Dot(m.W, z)+m.B) - float64(y[i])
			floats.AddScaled(gW, d, z)
			gb += d
		}
		floats.Scale(1/float64(n), gW)
		gb /= float64(n)
		floats.AddScaled(gW, m.L2/float64(n), m.W)

		floats.AddScaled(m.W, -m.LearningRate, gW)
		m.B -= m.LearningRate * gb

		if math.Max(floats.Norm(gW, math.Inf(1)), math.Abs(gb)) < m.Tol {
			break
		}
	}
	return nil
}

func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	if m == nil || m.W == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.W) {
			return nil, fmt.Errorf("logistic regression: expected %d features, got %d", len(m.W), len(row))
		}
		out[i] = sigmoid(floats.Dot(m.W, m.standardize(row)) + m.B)
	}
	return out, nil
}

func (m *LogisticRegression) standardize(row []float64) []float64 {
	z := make([]float64, len(row))
	for j, v := range row {
		z[j] = (v - m.Mean[j]) / m.Scale[j]
	}
	return z
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

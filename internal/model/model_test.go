package model

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/common"
)

// separable: label is 1 when the first feature exceeds 5; second feature is noise.
func separable() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for i := 0; i < 40; i++ {
		v := float64(i % 11)
		X = append(X, []float64{v, float64((i * 7) % 5)})
		label := 0
		if v > 5 {
			label = 1
		}
		y = append(y, label)
	}
	return X, y
}

func TestLogisticRegression_LearnsSeparableData(t *testing.T) {
	X, y := separable()
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(X, y))

	proba, err := m.PredictProba(X)
	require.NoError(t, err)
	for _, p := range proba {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.GreaterOrEqual(t, Accuracy(y, BinaryPredFromProba(proba, 0.5)), 0.95)

	low, _ := m.PredictProba([][]float64{{0, 2}})
	high, _ := m.PredictProba([][]float64{{10, 2}})
	assert.Less(t, low[0], 0.5)
	assert.Greater(t, high[0], 0.5)
}

func TestLogisticRegression_Deterministic(t *testing.T) {
	X, y := separable()
	a := NewLogisticRegression(WithMaxIter(200))
	b := NewLogisticRegression(WithMaxIter(200))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	assert.Equal(t, a.W, b.W)
	assert.Equal(t, a.B, b.B)
}

func TestLogisticRegression_ConstantColumn(t *testing.T) {
	X := [][]float64{{1, 3}, {2, 3}, {3, 3}, {4, 3}}
	y := []int{0, 0, 1, 1}
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, 1.0, m.Scale[1])

	proba, err := m.PredictProba(X)
	require.NoError(t, err)
	assert.Less(t, proba[0], proba[3])
}

func TestDecisionTree_FitsAndRespectsDepth(t *testing.T) {
	X, y := separable()
	tree := NewDecisionTree(WithMinSamplesSplit(2))
	require.NoError(t, tree.Fit(X, y))

	proba, err := tree.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, 1.0, Accuracy(y, BinaryPredFromProba(proba, 0.5)))
	assert.Equal(t, 0, tree.Root.Feature)
	assert.Equal(t, 5.5, tree.Root.Threshold)

	stump := NewDecisionTree(WithMaxDepth(1), WithMinSamplesSplit(2))
	require.NoError(t, stump.Fit(X, y))
	assert.LessOrEqual(t, stump.Depth(), 1)
}

func TestDecisionTree_MinSamplesSplit(t *testing.T) {
	X, y := separable()
	tree := NewDecisionTree(WithMinSamplesSplit(len(X) + 1))
	require.NoError(t, tree.Fit(X, y))
	assert.True(t, tree.Root.Leaf)

	proba, err := tree.PredictProba([][]float64{{0, 0}})
	require.NoError(t, err)
	pos := 0
	for _, l := range y {
		pos += l
	}
	assert.InDelta(t, float64(pos)/float64(len(y)), proba[0], 1e-12)
}

func TestClassifiers_NotFitted(t *testing.T) {
	for _, c := range []Classifier{NewLogisticRegression(), NewDecisionTree()} {
		_, err := c.PredictProba([][]float64{{1, 2}})
		assert.True(t, errors.Is(err, ErrNotFitted), c.Name())
	}
}

func TestClassifiers_FeatureMismatch(t *testing.T) {
	X, y := separable()
	for _, c := range []Classifier{NewLogisticRegression(), NewDecisionTree()} {
		require.NoError(t, c.Fit(X, y))
		_, err := c.PredictProba([][]float64{{1, 2, 3}})
		assert.Error(t, err, c.Name())
	}
}

func TestFit_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float64{{1}}, []int{0, 1}},
		{"ragged", [][]float64{{1, 2}, {1}}, []int{0, 1}},
		{"bad label", [][]float64{{1}, {2}}, []int{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewLogisticRegression().Fit(tt.X, tt.y))
			assert.Error(t, NewDecisionTree().Fit(tt.X, tt.y))
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	X, y := separable()

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	dt := NewDecisionTree(WithMinSamplesSplit(2))
	require.NoError(t, dt.Fit(X, y))

	lrPath := filepath.Join(dir, common.LogisticModelFile)
	dtPath := filepath.Join(dir, common.DecisionTreeModelFile)
	require.NoError(t, Save(lrPath, lr))
	require.NoError(t, Save(dtPath, dt))

	lr2, err := LoadLogisticRegression(lrPath)
	require.NoError(t, err)
	dt2, err := LoadDecisionTree(dtPath)
	require.NoError(t, err)

	for _, pair := range [][2]Classifier{{lr, lr2}, {dt, dt2}} {
		want, err := pair[0].PredictProba(X)
		require.NoError(t, err)
		got, err := pair[1].PredictProba(X)
		require.NoError(t, err)
		assert.Equal(t, want, got, pair[0].Name())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), common.DecisionTreeModelFile)
	_, err := LoadDecisionTree(path)
	var cfgErr *common.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), common.DecisionTreeModelFile)
}

func TestLoadDecisionTree_Malformed(t *testing.T) {
	leaf := func() *Node { return &Node{Leaf: true, Samples: 1, Positive: 1} }
	tests := []struct {
		name string
		tree *DecisionTree
	}{
		{"split without children", &DecisionTree{NFeatures: 10, Root: &Node{Samples: 2}}},
		{"split missing right child", &DecisionTree{NFeatures: 10, Root: &Node{Samples: 2, Left: leaf()}}},
		{"feature past width", &DecisionTree{NFeatures: 2, Root: &Node{Feature: 5, Left: leaf(), Right: leaf()}}},
		{"negative feature", &DecisionTree{NFeatures: 2, Root: &Node{Feature: -1, Left: leaf(), Right: leaf()}}},
		{"nested bad split", &DecisionTree{NFeatures: 2, Root: &Node{Left: leaf(), Right: &Node{Feature: 1, Samples: 1}}}},
		{"no features", &DecisionTree{Root: leaf()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), common.DecisionTreeModelFile)
			require.NoError(t, Save(path, tt.tree))

			tree, err := LoadDecisionTree(path)
			assert.Nil(t, tree)
			var cfgErr *common.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), "malformed decision tree")
		})
	}
}

func TestPrecisionRecallF1(t *testing.T) {
	prec, rec, f1 := PrecisionRecallF1([]int{1, 1, 0, 0}, []int{1, 0, 1, 0})
	assert.Equal(t, 0.5, prec)
	assert.Equal(t, 0.5, rec)
	assert.Equal(t, 0.5, f1)
}

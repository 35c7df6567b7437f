package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	require.NoError(t, err)
	defer store.Close()

	require.NotNil(t, store.db)
	_, err = os.Stat(filepath.Join(tempDir, dbFileName))
	assert.NoError(t, err, "database file was not created")
	assert.NoError(t, store.Ping())
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir"))
	assert.Error(t, err)
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "closing twice should be a no-op")
	assert.Error(t, store.Ping())
}

func TestStore_Predictions(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := PredictionRecord{
			ID:                  id,
			RequestID:           "req-" + id,
			Subject:             "analyst",
			Timestamp:           base.Add(time.Duration(i) * time.Minute),
			Input:               map[string]any{"pclass": 1, "sex": "female"},
			ModelProbabilities:  map[string]float64{"logistic_regression": 0.8, "decision_tree": 1.0},
			EnsembleProbability: 0.9,
			Prediction:          "survived",
			Confidence:          0.8,
			ConfidenceLevel:     "high",
		}
		require.NoError(t, store.StorePrediction(rec))
	}

	n, err := store.CountPredictions()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.GetPredictions(base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, 0.9, all[1].EnsembleProbability)
	assert.Equal(t, "female", all[1].Input["sex"])

	// end bound is inclusive
	some, err := store.GetPredictions(base.Add(time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "b", some[0].ID)

	none, err := store.GetPredictions(base.Add(-time.Hour), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_PredictionRequiresID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.StorePrediction(PredictionRecord{Timestamp: time.Now()}))
}

func TestStore_TrainingRuns(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestTrainingRun()
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		require.NoError(t, store.StoreTrainingRun(TrainingRun{
			ID:         id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Rows:       1309,
			TrainRows:  1047,
			TestRows:   262,
			Seed:       42,
			Accuracy:   map[string]float64{"ensemble": 0.8 + float64(i)/100},
		}))
	}

	latest, err := store.LatestTrainingRun()
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.InDelta(t, 0.81, latest.Accuracy["ensemble"], 1e-12)

	runs, err := store.GetTrainingRuns(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.StorePrediction(PredictionRecord{ID: "x", Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.CountPredictions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/storage"
	"titanic-predictor/internal/training"
)

func writeDataset(t *testing.T, dir string, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("PassengerId,Survived,Pclass,Name,Sex,Age,SibSp,Parch,Ticket,Fare,Cabin,Embarked\n")
	for i := 0; i < rows; i++ {
		sex, survived := "male", 0
		if i%3 == 0 {
			sex, survived = "female", 1
		}
		embarked := []string{"S", "C", "Q", "S"}[i%4]
		fmt.Fprintf(&b, "%d,%d,%d,\"Passenger, No. %d\",%s,%d,%d,%d,T%d,%.2f,,%s\n",
			i+1, survived, 1+(i/3)%3, i, sex, 4+i%70, i%2, (i/2)%3, i, 7.25+float64(i), embarked)
	}
	path := filepath.Join(dir, "passengers.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// trainedModels trains on a synthetic dataset and loads the saved artifacts.
func trainedModels(t *testing.T) (*ml.Models, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := training.DefaultConfig()
	cfg.DataPath = writeDataset(t, dir, 120)
	cfg.ModelsDir = filepath.Join(dir, "models")

	p, err := training.NewPipeline(cfg, nil, nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	models, err := ml.LoadModels(context.Background(), cfg.ModelsDir, nil)
	require.NoError(t, err)
	return models, cfg.DataPath
}

func TestEngine_LabeledDataset(t *testing.T) {
	models, dataPath := trainedModels(t)

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(dataPath))
	assert.Equal(t, 120, dl.GetDataCount())

	engine := NewEngine(models, dl)
	require.NoError(t, engine.Run(context.Background()))
	res := engine.GetResults()

	assert.Equal(t, 120, res.Samples)
	assert.Equal(t, 120, res.Labeled)
	assert.Zero(t, res.Replayed)
	assert.Equal(t, 1.0, dl.GetProgress())

	require.Contains(t, res.ModelScores, common.ModelEnsemble)
	// survival follows sex exactly, so every model separates it
	assert.Greater(t, res.ModelScores[common.ModelEnsemble].Accuracy, 0.9)
	assert.Greater(t, res.ModelScores[common.ModelDecisionTree].F1, 0.9)
	assert.InDelta(t, 1.0/3, res.SurvivedRate, 0.1)

	total := 0
	for _, ls := range res.ByConfidence {
		total += ls.Count
		assert.LessOrEqual(t, ls.Correct, ls.Count)
	}
	assert.Equal(t, 120, total)
	assert.False(t, res.EndTime.Before(res.StartTime))
}

func TestEngine_ReplayAuditLog(t *testing.T) {
	models, _ := trainedModels(t)

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	recs := []storage.PredictionRecord{
		{
			ID: "a", Timestamp: now.Add(-2 * time.Minute), Prediction: common.LabelSurvived,
			Input: map[string]any{"pclass": 1.0, "sex": "female", "age": 30.0, "sibsp": 0.0, "parch": 0.0, "fare": 80.0, "embarked": "C"},
		},
		{
			// served as survived, the models now say otherwise
			ID: "b", Timestamp: now.Add(-time.Minute), Prediction: common.LabelSurvived,
			Input: map[string]any{"pclass": 3.0, "sex": "male", "sibsp": 0.0, "parch": 0.0},
		},
		{
			ID: "broken", Timestamp: now.Add(-30 * time.Second), Prediction: common.LabelSurvived,
			Input: map[string]any{"sex": "female"},
		},
	}
	for _, r := range recs {
		require.NoError(t, store.StorePrediction(r))
	}

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromBoltDB(store, now.Add(-time.Hour), now))
	assert.Equal(t, 2, dl.GetDataCount())

	engine := NewEngine(models, dl)
	require.NoError(t, engine.Run(context.Background()))
	res := engine.GetResults()

	assert.Equal(t, 2, res.Replayed)
	assert.Equal(t, 1, res.Changed)
	assert.Zero(t, res.Labeled)
	assert.Nil(t, res.ModelScores)
	assert.Equal(t, "a", res.Rows[0].RecordedID)
	assert.False(t, res.Rows[0].Changed)
	assert.True(t, res.Rows[1].Changed)
}

func TestEngine_Errors(t *testing.T) {
	err := NewEngine(nil, NewDataLoader()).Run(context.Background())
	var mu *common.ModelUnavailableError
	assert.ErrorAs(t, err, &mu)

	models, dataPath := trainedModels(t)
	err = NewEngine(models, NewDataLoader()).Run(context.Background())
	var ce *common.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(dataPath))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewEngine(models, dl).Run(ctx), context.Canceled)
}

func TestLoadFromCSV_Unlabeled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.csv")
	require.NoError(t, os.WriteFile(path, []byte("pclass,sex,age,sibsp,parch,fare,embarked\n1,male,3,0,0,7,S\n"), 0o644))
	assert.Error(t, NewDataLoader().LoadFromCSV(path))
}

func TestReporter_GenerateReport(t *testing.T) {
	models, dataPath := trainedModels(t)
	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(dataPath))
	engine := NewEngine(models, dl)
	require.NoError(t, engine.Run(context.Background()))

	out := filepath.Join(t.TempDir(), "report")
	reporter := NewReporter(engine.GetResults(), out)
	require.NoError(t, reporter.GenerateReport())

	summary, err := os.ReadFile(filepath.Join(out, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Samples: 120 (labeled 120, replayed 0)")
	assert.Contains(t, string(summary), common.ModelLogisticRegression)

	csvData, err := os.ReadFile(filepath.Join(out, PredictionsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	assert.Len(t, lines, 121)
	assert.True(t, strings.HasPrefix(lines[0], "index,actual,logistic_regression"))

	raw, err := os.ReadFile(filepath.Join(out, ResultsFile))
	require.NoError(t, err)
	var decoded Results
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 120, decoded.Samples)
	assert.Len(t, decoded.Rows, 120)
}

func TestEngine_ImportanceAndDrift(t *testing.T) {
	models, dataPath := trainedModels(t)
	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(dataPath))

	engine := NewEngine(models, dl, WithImportance(3, 7), WithDrift(0.25))
	require.NoError(t, engine.Run(context.Background()))
	res := engine.GetResults()

	require.NotNil(t, res.Importance)
	assert.Len(t, res.Importance.Features, len(models.FeatureColumns))
	assert.Equal(t, "sex", res.Importance.Top(1)[0])

	require.NotNil(t, res.Drift)
	assert.Equal(t, 120, res.Drift.Rows)
	assert.False(t, res.Drift.Drifted, "alerts: %+v", res.Drift.Alerts)

	out := t.TempDir()
	require.NoError(t, NewReporter(res, out).GenerateReport())
	summary, err := os.ReadFile(filepath.Join(out, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Permutation importance")
	assert.Contains(t, string(summary), "No drift detected")
}

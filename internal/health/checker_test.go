package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/model"
)

type fakeSource struct {
	dir    string
	state  ml.State
	models *ml.Models
}

func (f *fakeSource) State() ml.State   { return f.state }
func (f *fakeSource) ModelsDir() string { return f.dir }
func (f *fakeSource) Loaded() (*ml.Models, bool) {
	return f.models, f.models != nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

func records() []features.RawRecord {
	var out []features.RawRecord
	for i := 0; i < 40; i++ {
		sex, survived := "male", 0
		if i%2 == 0 {
			sex, survived = "female", 1
		}
		out = append(out, features.RawRecord{
			Pclass:   1 + i%3,
			Sex:      sex,
			Age:      features.Float(float64(10 + i)),
			SibSp:    i % 2,
			Fare:     features.Float(float64(8 + i)),
			Embarked: features.String([]string{"S", "C", "Q"}[i%3]),
			Survived: features.Int(survived),
		})
	}
	return out
}

// fixture writes a full artifact set and returns the in-memory models.
func fixture(t *testing.T) (string, *ml.Models) {
	t.Helper()
	dir := t.TempDir()
	prep := features.NewPreprocessor()
	m, err := prep.FitTransform(records())
	require.NoError(t, err)
	require.NoError(t, prep.SaveArtifacts(dir))

	lr := model.NewLogisticRegression(model.WithMaxIter(50))
	require.NoError(t, lr.Fit(m.X, m.Y))
	dt := model.NewDecisionTree()
	require.NoError(t, dt.Fit(m.X, m.Y))
	require.NoError(t, model.Save(filepath.Join(dir, common.LogisticModelFile), lr))
	require.NoError(t, model.Save(filepath.Join(dir, common.DecisionTreeModelFile), dt))

	eval := ml.EvaluationResults{LogisticRegressionAccuracy: 0.81, DecisionTreeAccuracy: 0.78, EnsembleAccuracy: 0.83}
	require.NoError(t, ml.SaveEvaluation(filepath.Join(dir, common.EvaluationResultsFile), eval))

	return dir, &ml.Models{
		Preprocessor:   prep,
		Ensemble:       ml.NewEnsemble(lr, dt),
		Evaluation:     &eval,
		FeatureColumns: m.Columns,
		LoadedAt:       time.Now(),
	}
}

func settings(dir string) cfg.Settings {
	return cfg.Settings{
		Environment:      "test",
		ModelsPath:       dir,
		MinModelAccuracy: common.DefaultMinModelAccuracy,
		JWT: cfg.JWTSettings{
			Algorithm:  "HS256",
			Secret:     "0123456789abcdef0123456789abcdef",
			Issuer:     common.DefaultJWTIssuer,
			Expiration: time.Hour,
		},
	}
}

func TestRunAll_Healthy(t *testing.T) {
	dir, models := fixture(t)
	src := &fakeSource{dir: dir, state: ml.StateLoaded, models: models}
	report := NewChecker(src, settings(dir), fakePinger{}).RunAll(context.Background())

	assert.Equal(t, StatusHealthy, report.Status, report.Checks)
	assert.Equal(t, 5, report.Summary.Total)
	assert.Equal(t, 5, report.Summary.Healthy)
	for _, name := range []string{CheckModelFiles, CheckPreprocessor, CheckConfiguration, CheckMLModels, CheckStorage} {
		require.Contains(t, report.Checks, name)
		assert.Equal(t, name, report.Checks[name].Name)
	}
}

func TestRunAll_LazyNotLoadedIsDegraded(t *testing.T) {
	dir, _ := fixture(t)
	src := &fakeSource{dir: dir, state: ml.StateReady}
	report := NewChecker(src, settings(dir), nil).RunAll(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDegraded, report.Checks[CheckMLModels].Status)
	assert.Equal(t, StatusDegraded, report.Checks[CheckPreprocessor].Status)
	assert.Equal(t, StatusHealthy, report.Checks[CheckStorage].Status)
}

func TestCheckMLModels_LowAccuracy(t *testing.T) {
	dir, models := fixture(t)
	models.Evaluation = &ml.EvaluationResults{LogisticRegressionAccuracy: 0.65, DecisionTreeAccuracy: 0.8, EnsembleAccuracy: 0.75}
	src := &fakeSource{dir: dir, state: ml.StateLoaded, models: models}

	ch := NewChecker(src, settings(dir), nil).CheckMLModels(context.Background())
	assert.Equal(t, StatusDegraded, ch.Status)
	assert.Contains(t, ch.Message, common.ModelLogisticRegression)
	assert.NotContains(t, ch.Message, common.ModelDecisionTree)
}

func TestCheckModelFiles(t *testing.T) {
	t.Run("missing required file", func(t *testing.T) {
		dir, _ := fixture(t)
		require.NoError(t, os.Remove(filepath.Join(dir, common.FeatureColumnsFile)))
		ch := NewChecker(&fakeSource{dir: dir}, settings(dir), nil).CheckModelFiles(context.Background())
		assert.Equal(t, StatusUnhealthy, ch.Status)
		assert.Contains(t, ch.Message, common.FeatureColumnsFile)
	})

	t.Run("empty file", func(t *testing.T) {
		dir, _ := fixture(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, common.LogisticModelFile), nil, 0o644))
		ch := NewChecker(&fakeSource{dir: dir}, settings(dir), nil).CheckModelFiles(context.Background())
		assert.Equal(t, StatusUnhealthy, ch.Status)
	})

	t.Run("evaluation optional", func(t *testing.T) {
		dir, _ := fixture(t)
		require.NoError(t, os.Remove(filepath.Join(dir, common.EvaluationResultsFile)))
		ch := NewChecker(&fakeSource{dir: dir}, settings(dir), nil).CheckModelFiles(context.Background())
		assert.Equal(t, StatusDegraded, ch.Status)
	})
}

func TestCheckConfiguration(t *testing.T) {
	dir, _ := fixture(t)

	bad := settings(dir)
	bad.JWT.Secret = ""
	ch := NewChecker(&fakeSource{dir: dir}, bad, nil).CheckConfiguration(context.Background())
	assert.Equal(t, StatusUnhealthy, ch.Status)

	noDir := settings(filepath.Join(dir, "absent"))
	ch = NewChecker(&fakeSource{dir: dir}, noDir, nil).CheckConfiguration(context.Background())
	assert.Equal(t, StatusUnhealthy, ch.Status)

	ch = NewChecker(&fakeSource{dir: dir}, settings(dir), nil).CheckConfiguration(context.Background())
	assert.Equal(t, StatusHealthy, ch.Status)
	assert.Equal(t, true, ch.Details["can_issue_tokens"])
}

func TestCheckStorage(t *testing.T) {
	dir, _ := fixture(t)
	ch := NewChecker(&fakeSource{dir: dir}, settings(dir), fakePinger{err: errors.New("closed")}).CheckStorage(context.Background())
	assert.Equal(t, StatusDegraded, ch.Status)
}

func TestRunStartupChecks(t *testing.T) {
	dir, _ := fixture(t)
	src := &fakeSource{dir: dir, state: ml.StateReady}

	report, err := NewChecker(src, settings(dir), nil).RunStartupChecks(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Checks, 2)

	require.NoError(t, os.Remove(filepath.Join(dir, common.DecisionTreeModelFile)))
	_, err = NewChecker(src, settings(dir), nil).RunStartupChecks(context.Background())
	var cfgErr *common.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), common.DecisionTreeModelFile)
}

func TestQuick(t *testing.T) {
	dir, models := fixture(t)

	q := NewChecker(&fakeSource{dir: dir, state: ml.StateReady}, settings(dir), nil).Quick()
	assert.Equal(t, StatusHealthy, q.Status)
	assert.False(t, q.ModelsLoaded)
	assert.Equal(t, "ready", q.State)

	q = NewChecker(&fakeSource{dir: dir, state: ml.StateLoaded, models: models}, settings(dir), nil).Quick()
	assert.True(t, q.ModelsLoaded)
	assert.True(t, q.PreprocessorReady)
	assert.Equal(t, 0.83, q.ModelAccuracy[common.ModelEnsemble])

	q = NewChecker(&fakeSource{dir: dir, state: ml.StateUninitialized}, settings(dir), nil).Quick()
	assert.Equal(t, StatusUnhealthy, q.Status)
}

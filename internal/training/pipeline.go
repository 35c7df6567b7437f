// Package training fits the preprocessor and both classifiers on a labeled
// dataset, evaluates them on a stratified hold-out split and writes every
// artifact the prediction service needs.
package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/dataset"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/model"
	"titanic-predictor/internal/storage"
)

type Config struct {
	DataPath        string
	ModelsDir       string
	TestSize        float64
	Seed            int64
	MaxIter         int
	MaxDepth        int
	MinSamplesSplit int
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		ModelsDir:       common.DefaultModelsPath,
		TestSize:        common.DefaultTestSize,
		Seed:            common.DefaultRandomSeed,
		MaxIter:         common.DefaultLogisticMaxIter,
		MaxDepth:        common.DefaultTreeMaxDepth,
		MinSamplesSplit: common.DefaultTreeMinSamplesSplit,
	}
}

func (c Config) validate() error {
	if c.DataPath == "" {
		return common.NewConfigurationError("dataset path is required", nil)
	}
	if c.ModelsDir == "" {
		return common.NewConfigurationError(common.ErrMsgModelsPathRequired, nil)
	}
	if c.TestSize < common.MinTestSize || c.TestSize > common.MaxTestSize {
		return common.NewConfigurationError(fmt.Sprintf("test size must be between %.2f and %.2f", common.MinTestSize, common.MaxTestSize), nil)
	}
	if c.MaxIter <= 0 || c.MaxDepth <= 0 || c.MinSamplesSplit < 2 {
		return common.NewConfigurationError("max iter and max depth must be positive, min samples split at least 2", nil)
	}
	return nil
}

// MetricsInterface defines metrics methods needed by training
type MetricsInterface interface {
	TrainingRunInc()
	ModelAccuracySet(model string, accuracy float64)
}

// Report is what a training run produced.
type Report struct {
	Run        storage.TrainingRun
	Evaluation ml.EvaluationResults
}

type Pipeline struct {
	cfg     Config
	store   *storage.Store
	metrics MetricsInterface
}

// NewPipeline builds a pipeline. store and metrics may be nil.
func NewPipeline(cfg Config, store *storage.Store, metrics MetricsInterface) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, store: store, metrics: metrics}, nil
}

// Run executes the pipeline end to end.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	records, err := dataset.LoadCSV(p.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	report, err := p.Train(ctx, records)
	if err != nil {
		return nil, err
	}
	report.Run.StartedAt = started
	report.Run.DatasetPath = p.cfg.DataPath

	if p.store != nil {
		if err := p.store.StoreTrainingRun(report.Run); err != nil {
			return nil, fmt.Errorf("failed to record training run: %w", err)
		}
	}
	return report, nil
}

// Train fits, evaluates and persists models for already-loaded records.
func (p *Pipeline) Train(ctx context.Context, records []features.RawRecord) (*Report, error) {
	started := time.Now()

	prep := features.NewPreprocessor()
	matrix, err := prep.FitTransform(records)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := dataset.StratifiedSplit(matrix.Y, p.cfg.TestSize, p.cfg.Seed)
	if err != nil {
		return nil, common.NewConfigurationError("cannot split dataset", err)
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, common.NewConfigurationError("dataset too small to split", nil)
	}
	xTrain, yTrain := dataset.Select(matrix.X, matrix.Y, trainIdx)
	xTest, yTest := dataset.Select(matrix.X, matrix.Y, testIdx)

	log.Info().
		Int("train_rows", len(trainIdx)).
		Int("test_rows", len(testIdx)).
		Int64("seed", p.cfg.Seed).
		Msg("Dataset split")

	logistic := model.NewLogisticRegression(model.WithMaxIter(p.cfg.MaxIter))
	tree := model.NewDecisionTree(
		model.WithMaxDepth(p.cfg.MaxDepth),
		model.WithMinSamplesSplit(p.cfg.MinSamplesSplit),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range []model.Classifier{logistic, tree} {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fitStart := time.Now()
			if err := c.Fit(xTrain, yTrain); err != nil {
				return fmt.Errorf("failed to fit %s: %w", c.Name(), err)
			}
			log.Info().Str("model", c.Name()).Dur("duration", time.Since(fitStart)).Msg("Model fitted")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	eval, err := Evaluate(ml.NewEnsemble(logistic, tree), logistic, tree, xTest, yTest)
	if err != nil {
		return nil, err
	}
	log.Info().
		Float64(common.ModelLogisticRegression, eval.LogisticRegressionAccuracy).
		Float64(common.ModelDecisionTree, eval.DecisionTreeAccuracy).
		Float64(common.ModelEnsemble, eval.EnsembleAccuracy).
		Msg("Evaluation complete")

	if err := p.save(prep, logistic, tree, eval); err != nil {
		return nil, err
	}

	run := storage.TrainingRun{
		ID:             uuid.NewString(),
		StartedAt:      started,
		FinishedAt:     time.Now(),
		ModelsDir:      p.cfg.ModelsDir,
		Rows:           len(records),
		TrainRows:      len(trainIdx),
		TestRows:       len(testIdx),
		Seed:           p.cfg.Seed,
		FeatureColumns: matrix.Columns,
		Accuracy:       eval.ByModel(),
	}
	if p.metrics != nil {
		p.metrics.TrainingRunInc()
		for name, acc := range run.Accuracy {
			p.metrics.ModelAccuracySet(name, acc)
		}
	}
	return &Report{Run: run, Evaluation: eval}, nil
}

// Evaluate computes held-out accuracy for both models and their ensemble.
func Evaluate(ens *ml.Ensemble, logistic, tree model.Classifier, X [][]float64, y []int) (ml.EvaluationResults, error) {
	var res ml.EvaluationResults
	pLR, err := logistic.PredictProba(X)
	if err != nil {
		return res, err
	}
	pDT, err := tree.PredictProba(X)
	if err != nil {
		return res, err
	}
	pEns, err := ens.PredictProba(X)
	if err != nil {
		return res, err
	}
	res.LogisticRegressionAccuracy = model.Accuracy(y, model.BinaryPredFromProba(pLR, common.SurvivalThreshold))
	res.DecisionTreeAccuracy = model.Accuracy(y, model.BinaryPredFromProba(pDT, common.SurvivalThreshold))
	res.EnsembleAccuracy = model.Accuracy(y, model.BinaryPredFromProba(pEns, common.SurvivalThreshold))
	return res, nil
}

func (p *Pipeline) save(prep *features.Preprocessor, logistic, tree model.Classifier, eval ml.EvaluationResults) error {
	dir := p.cfg.ModelsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := prep.SaveArtifacts(dir); err != nil {
		return err
	}
	if err := model.Save(filepath.Join(dir, common.LogisticModelFile), logistic); err != nil {
		return err
	}
	if err := model.Save(filepath.Join(dir, common.DecisionTreeModelFile), tree); err != nil {
		return err
	}
	if err := ml.SaveEvaluation(filepath.Join(dir, common.EvaluationResultsFile), eval); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("Artifacts saved")
	return nil
}

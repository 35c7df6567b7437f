package ml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/model"
)

// MetricsInterface defines metrics methods needed by the prediction service
type MetricsInterface interface {
	PredictionInc(label string)
	PredictionFailureInc()
	PredictionLatencyObserve(float64)
	EnsembleProbabilityObserve(float64)
	ConfidenceObserve(float64)
	ModelLoadInc()
	ModelLoadFailureInc()
	ModelLoadTimeoutInc()
	ModelLoadDurationObserve(float64)
	ModelsLoadedSet(bool)
	ModelAccuracySet(model string, accuracy float64)
}

// State is the lifecycle of the lazily-loaded models.
type State int32

const (
	StateUninitialized State = iota
	StateValidating
	StateReady
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Models is the immutable state shared by all requests once loaded.
type Models struct {
	Preprocessor   *features.Preprocessor
	Ensemble       *Ensemble
	Evaluation     *EvaluationResults // nil when the training run left no summary
	FeatureColumns []string
	LoadedAt       time.Time
}

// Loader reads models from a directory.
type Loader func(ctx context.Context, dir string) (*Models, error)

type Config struct {
	ModelsDir   string
	LoadTimeout time.Duration
}

// Service serves predictions, loading artifacts on the first request.
// Exactly one goroutine performs the load; concurrent callers wait on the
// mutex and then reuse the cached Models.
type Service struct {
	cfg     Config
	metrics MetricsInterface
	loader  Loader

	state  atomic.Int32
	models atomic.Pointer[Models]
	mu     sync.Mutex
}

type ServiceOption func(*Service)

// WithLoader replaces the artifact loader.
func WithLoader(l Loader) ServiceOption {
	return func(s *Service) { s.loader = l }
}

// WithPreprocessorMetrics reports unseen categories of the loaded preprocessor.
func WithPreprocessorMetrics(m features.MetricsInterface) ServiceOption {
	return func(s *Service) {
		s.loader = func(ctx context.Context, dir string) (*Models, error) {
			return LoadModels(ctx, dir, m)
		}
	}
}

// NewService validates that the models directory exists and returns a service
// in the READY state. Nothing is read from disk until the first prediction.
func NewService(cfg Config, metrics MetricsInterface, opts ...ServiceOption) (*Service, error) {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = common.DefaultModelLoadTimeout
	}
	s := &Service{
		cfg:     cfg,
		metrics: metrics,
		loader: func(ctx context.Context, dir string) (*Models, error) {
			return LoadModels(ctx, dir, nil)
		},
	}
	for _, o := range opts {
		o(s)
	}

	s.state.Store(int32(StateValidating))
	info, err := os.Stat(cfg.ModelsDir)
	if err != nil || !info.IsDir() {
		s.state.Store(int32(StateUninitialized))
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &common.ConfigurationError{Msg: "models directory is not usable", Path: cfg.ModelsDir, Err: err}
	}
	s.state.Store(int32(StateReady))

	log.Info().
		Str("models_dir", cfg.ModelsDir).
		Dur("load_timeout", cfg.LoadTimeout).
		Msg("Prediction service ready, models load on first request")
	return s, nil
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Loaded returns the cached models without triggering a load.
func (s *Service) Loaded() (*Models, bool) {
	m := s.models.Load()
	return m, m != nil
}

func (s *Service) ModelsDir() string {
	return s.cfg.ModelsDir
}

// Models returns the loaded models, loading them on first use.
func (s *Service) Models(ctx context.Context) (*Models, error) {
	if m := s.models.Load(); m != nil {
		return m, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.models.Load(); m != nil {
		return m, nil
	}
	return s.load(ctx)
}

// load runs with s.mu held.
func (s *Service) load(ctx context.Context) (*Models, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	type result struct {
		models *Models
		err    error
	}
	done := make(chan result, 1)
	go func() {
		m, err := s.loader(ctx, s.cfg.ModelsDir)
		done <- result{m, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		if s.metrics != nil {
			s.metrics.ModelLoadFailureInc()
		}
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Str("models_dir", s.cfg.ModelsDir).Msg("Model loading cancelled")
			return nil, &common.ModelUnavailableError{Reason: "model loading cancelled", Err: ctx.Err()}
		}
		if s.metrics != nil {
			s.metrics.ModelLoadTimeoutInc()
		}
		log.Error().
			Str("models_dir", s.cfg.ModelsDir).
			Dur("timeout", s.cfg.LoadTimeout).
			Msg("Model loading timed out")
		return nil, &common.ModelUnavailableError{Reason: "model loading timed out", Err: ctx.Err()}
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ModelLoadDurationObserve(elapsed.Seconds())
	}
	if res.err != nil {
		if s.metrics != nil {
			s.metrics.ModelLoadFailureInc()
		}
		log.Error().Err(res.err).Str("models_dir", s.cfg.ModelsDir).Msg("Model loading failed")
		return nil, &common.ModelUnavailableError{Reason: "failed to load models", Err: res.err}
	}

	s.models.Store(res.models)
	s.state.Store(int32(StateLoaded))
	if s.metrics != nil {
		s.metrics.ModelLoadInc()
		s.metrics.ModelsLoadedSet(true)
		if res.models.Evaluation != nil {
			for name, acc := range res.models.Evaluation.ByModel() {
				s.metrics.ModelAccuracySet(name, acc)
			}
		}
	}
	log.Info().
		Dur("duration", elapsed).
		Strs("feature_columns", res.models.FeatureColumns).
		Msg("Models loaded")
	return res.models, nil
}

// Predict preprocesses a raw record and scores it with the ensemble.
func (s *Service) Predict(ctx context.Context, record features.RawRecord) (*PredictionResult, error) {
	start := time.Now()
	result, err := s.predict(ctx, record)
	if s.metrics != nil {
		s.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		if err != nil {
			s.metrics.PredictionFailureInc()
		} else {
			s.metrics.PredictionInc(result.EnsembleResult.Prediction)
			s.metrics.EnsembleProbabilityObserve(result.EnsembleResult.Probability)
			s.metrics.ConfidenceObserve(result.EnsembleResult.Confidence)
		}
	}
	return result, err
}

func (s *Service) predict(ctx context.Context, record features.RawRecord) (*PredictionResult, error) {
	m, err := s.Models(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := m.Preprocessor.PreprocessSingle(record)
	if err != nil {
		return nil, err
	}
	return m.Ensemble.Predict(vec.Values)
}

// LoadModels reads the preprocessor artifacts, both classifiers and the
// evaluation summary from dir in parallel.
func LoadModels(ctx context.Context, dir string, prepMetrics features.MetricsInterface) (*Models, error) {
	var g errgroup.Group

	prep := features.NewPreprocessorWithMetrics(prepMetrics)
	var (
		logistic *model.LogisticRegression
		tree     *model.DecisionTree
		eval     *EvaluationResults
	)

	g.Go(func() error {
		return prep.LoadArtifacts(dir)
	})
	g.Go(func() (err error) {
		logistic, err = model.LoadLogisticRegression(filepath.Join(dir, common.LogisticModelFile))
		return err
	})
	g.Go(func() (err error) {
		tree, err = model.LoadDecisionTree(filepath.Join(dir, common.DecisionTreeModelFile))
		return err
	})
	g.Go(func() error {
		e, err := LoadEvaluation(filepath.Join(dir, common.EvaluationResultsFile))
		if common.IsNotFound(err) {
			log.Warn().Str("dir", dir).Msg("No evaluation results found, accuracy will be unreported")
			return nil
		}
		eval = e
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	columns, err := prep.FeatureColumns()
	if err != nil {
		return nil, err
	}
	if len(logistic.W) != len(columns) || tree.NFeatures != len(columns) {
		return nil, common.NewConfigurationError(fmt.Sprintf(
			"models expect %d/%d features but preprocessor produces %d",
			len(logistic.W), tree.NFeatures, len(columns)), nil)
	}

	return &Models{
		Preprocessor:   prep,
		Ensemble:       NewEnsemble(logistic, tree),
		Evaluation:     eval,
		FeatureColumns: columns,
		LoadedAt:       time.Now(),
	}, nil
}

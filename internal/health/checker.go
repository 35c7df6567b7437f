// Package health reports whether the prediction service can do its job.
// Startup checks gate process start; the detailed report backs
// GET /health?detailed=true.
package health

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/ml"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check names.
const (
	CheckModelFiles    = "model_files"
	CheckPreprocessor  = "preprocessor"
	CheckConfiguration = "configuration"
	CheckMLModels      = "ml_models"
	CheckStorage       = "storage"
)

type Check struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS float64        `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

type Report struct {
	Status     Status           `json:"status"`
	Message    string           `json:"message"`
	Timestamp  time.Time        `json:"timestamp"`
	DurationMS float64          `json:"duration_ms"`
	Checks     map[string]Check `json:"checks"`
	Summary    Summary          `json:"summary"`
}

// QuickStatus is the cheap answer served without ?detailed=true.
type QuickStatus struct {
	Status            Status             `json:"status"`
	State             string             `json:"state"`
	ModelsLoaded      bool               `json:"models_loaded"`
	PreprocessorReady bool               `json:"preprocessor_ready"`
	ModelAccuracy     map[string]float64 `json:"model_accuracy,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// ModelSource is the slice of *ml.Service the checker reads.
type ModelSource interface {
	State() ml.State
	Loaded() (*ml.Models, bool)
	ModelsDir() string
}

type Pinger interface {
	Ping() error
}

// RequiredArtifacts must exist before the service may start.
var RequiredArtifacts = []string{
	common.LabelEncodersFile,
	common.PreprocessingStatsFile,
	common.FeatureColumnsFile,
	common.LogisticModelFile,
	common.DecisionTreeModelFile,
}

type Checker struct {
	models   ModelSource
	settings cfg.Settings
	store    Pinger
}

// NewChecker builds a checker. store may be nil when audit storage is off.
func NewChecker(models ModelSource, settings cfg.Settings, store Pinger) *Checker {
	return &Checker{models: models, settings: settings, store: store}
}

// Quick reports the service state without touching disk.
func (c *Checker) Quick() QuickStatus {
	q := QuickStatus{
		Status:    StatusHealthy,
		State:     c.models.State().String(),
		Timestamp: time.Now().UTC(),
	}
	if m, ok := c.models.Loaded(); ok {
		q.ModelsLoaded = true
		q.PreprocessorReady = m.Preprocessor.Fitted()
		if m.Evaluation != nil {
			q.ModelAccuracy = m.Evaluation.ByModel()
		}
	}
	if st := c.models.State(); st != ml.StateReady && st != ml.StateLoaded {
		q.Status = StatusUnhealthy
	}
	return q
}

// RunAll runs every check concurrently.
func (c *Checker) RunAll(ctx context.Context) Report {
	return c.run(ctx, map[string]func(context.Context) Check{
		CheckModelFiles:    c.CheckModelFiles,
		CheckPreprocessor:  c.CheckPreprocessor,
		CheckConfiguration: c.CheckConfiguration,
		CheckMLModels:      c.CheckMLModels,
		CheckStorage:       c.CheckStorage,
	})
}

// RunStartupChecks verifies the artifacts and configuration. Models are
// loaded lazily, so only what can be checked without loading runs here.
func (c *Checker) RunStartupChecks(ctx context.Context) (Report, error) {
	log.Info().Str("phase", "startup").Msg("Running startup health checks")
	report := c.run(ctx, map[string]func(context.Context) Check{
		CheckModelFiles:    c.CheckModelFiles,
		CheckConfiguration: c.CheckConfiguration,
	})

	if report.Status == StatusUnhealthy {
		var failed []string
		for _, name := range sortedNames(report.Checks) {
			if ch := report.Checks[name]; ch.Status == StatusUnhealthy {
				failed = append(failed, name+": "+ch.Message)
			}
		}
		log.Error().Strs("failed_checks", failed).Msg("Startup checks failed - service cannot start")
		return report, common.NewConfigurationError("startup checks failed: "+strings.Join(failed, "; "), nil)
	}

	log.Info().Int("checks", report.Summary.Total).Float64("duration_ms", report.DurationMS).Msg("All startup checks passed")
	return report, nil
}

func (c *Checker) run(ctx context.Context, checks map[string]func(context.Context) Check) Report {
	start := time.Now()
	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
		g       errgroup.Group
	)
	for name, fn := range checks {
		name, fn := name, fn
		g.Go(func() error {
			began := time.Now()
			ch := fn(ctx)
			ch.Name = name
			ch.DurationMS = float64(time.Since(began).Microseconds()) / 1000
			ch.Timestamp = time.Now().UTC()
			mu.Lock()
			results[name] = ch
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusHealthy,
		Checks:     results,
		Timestamp:  time.Now().UTC(),
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	for _, ch := range results {
		report.Summary.Total++
		switch ch.Status {
		case StatusUnhealthy:
			report.Summary.Unhealthy++
		case StatusDegraded:
			report.Summary.Degraded++
		default:
			report.Summary.Healthy++
		}
	}
	switch {
	case report.Summary.Unhealthy > 0:
		report.Status = StatusUnhealthy
		report.Message = fmt.Sprintf("Service unhealthy: %d critical issues", report.Summary.Unhealthy)
	case report.Summary.Degraded > 0:
		report.Status = StatusDegraded
		report.Message = fmt.Sprintf("Service degraded: %d warnings", report.Summary.Degraded)
	default:
		report.Message = "All systems operational"
	}
	return report
}

func (c *Checker) CheckModelFiles(context.Context) Check {
	dir := c.models.ModelsDir()
	files := make(map[string]any, len(RequiredArtifacts)+1)
	var missing []string

	for _, name := range append(append([]string{}, RequiredArtifacts...), common.EvaluationResultsFile) {
		info, err := os.Stat(filepath.Join(dir, name))
		status := map[string]any{"exists": err == nil}
		if err == nil {
			status["size_bytes"] = info.Size()
			status["modified"] = info.ModTime().UTC()
		}
		files[name] = status
		if name == common.EvaluationResultsFile {
			continue
		}
		if err != nil || info.Size() == 0 {
			missing = append(missing, name)
		}
	}

	details := map[string]any{"models_path": dir, "file_status": files}
	if len(missing) > 0 {
		details["missing_files"] = missing
		return Check{Status: StatusUnhealthy, Message: "Missing model files: " + strings.Join(missing, ", "), Details: details}
	}
	if st := files[common.EvaluationResultsFile].(map[string]any); st["exists"] == false {
		return Check{Status: StatusDegraded, Message: "Model files present; evaluation results missing", Details: details}
	}
	return Check{Status: StatusHealthy, Message: "All required model files present", Details: details}
}

func (c *Checker) CheckPreprocessor(context.Context) Check {
	m, ok := c.models.Loaded()
	if !ok {
		return Check{Status: StatusDegraded, Message: "Preprocessor not loaded yet", Details: map[string]any{"loading_mode": common.LoadingModeLazy}}
	}
	stats, err := m.Preprocessor.Statistics()
	if err != nil {
		return Check{Status: StatusUnhealthy, Message: "Preprocessor not fitted", Details: map[string]any{"error": err.Error()}}
	}

	var missing []string
	if math.IsNaN(stats.AgeMedian) {
		missing = append(missing, "age_median")
	}
	if stats.EmbarkedMode == "" {
		missing = append(missing, "embarked_mode")
	}
	if math.IsNaN(stats.FareMedian) {
		missing = append(missing, "fare_median")
	}
	details := map[string]any{
		"preprocessing_stats": stats,
		"feature_columns":     m.FeatureColumns,
		"missing_stats":       missing,
	}
	if len(missing) > 0 {
		return Check{Status: StatusDegraded, Message: "Missing preprocessing stats: " + strings.Join(missing, ", "), Details: details}
	}
	return Check{Status: StatusHealthy, Message: "Preprocessor ready with all required statistics", Details: details}
}

func (c *Checker) CheckConfiguration(context.Context) Check {
	s := c.settings
	details := map[string]any{
		"environment":   s.Environment,
		"jwt_algorithm": s.JWT.Algorithm,
		"models_path":   s.ModelsPath,
	}

	svc, err := auth.NewService(s.JWT)
	if err != nil {
		details["error"] = err.Error()
		return Check{Status: StatusUnhealthy, Message: "JWT configuration invalid", Details: details}
	}
	details["can_issue_tokens"] = svc.CanIssue()

	info, err := os.Stat(s.ModelsPath)
	if err != nil || !info.IsDir() {
		return Check{Status: StatusUnhealthy, Message: "Models path is not a directory", Details: details}
	}
	return Check{Status: StatusHealthy, Message: "Configuration loaded and valid", Details: details}
}

func (c *Checker) CheckMLModels(context.Context) Check {
	m, ok := c.models.Loaded()
	if !ok {
		return Check{
			Status:  StatusDegraded,
			Message: "Models not loaded yet; first prediction will load them",
			Details: map[string]any{"state": c.models.State().String(), "loading_mode": common.LoadingModeLazy},
		}
	}

	details := map[string]any{
		"models_loaded":         true,
		"loaded_at":             m.LoadedAt,
		"feature_columns_count": len(m.FeatureColumns),
	}
	if m.Evaluation == nil {
		return Check{Status: StatusDegraded, Message: "Models loaded without evaluation results", Details: details}
	}

	accuracy := m.Evaluation.ByModel()
	details["accuracy"] = accuracy
	var low []string
	for _, name := range sortedNames(accuracy) {
		if accuracy[name] < c.settings.MinModelAccuracy {
			low = append(low, name)
		}
	}
	if len(low) > 0 {
		return Check{Status: StatusDegraded, Message: "Models with low accuracy: " + strings.Join(low, ", "), Details: details}
	}
	return Check{Status: StatusHealthy, Message: "All models loaded and performing well", Details: details}
}

func (c *Checker) CheckStorage(context.Context) Check {
	if c.store == nil {
		return Check{Status: StatusHealthy, Message: "Prediction audit storage disabled"}
	}
	if err := c.store.Ping(); err != nil {
		return Check{Status: StatusDegraded, Message: "Prediction audit storage unavailable", Details: map[string]any{"error": err.Error()}}
	}
	return Check{Status: StatusHealthy, Message: "Prediction audit storage reachable"}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

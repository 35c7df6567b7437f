package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/metrics"
	"titanic-predictor/internal/storage"
	"titanic-predictor/internal/training"
)

func main() {
	def := training.DefaultConfig()
	var (
		dataPath  = flag.String("data", "data/titanic.csv", "Path to the labeled passenger CSV")
		modelsDir = flag.String("models", def.ModelsDir, "Directory the artifacts are written to")
		dbPath    = flag.String("db", os.Getenv(common.EnvDataPath), "Directory for the training run history (empty disables it)")
		testSize  = flag.Float64("test-size", def.TestSize, "Hold-out fraction for evaluation")
		seed      = flag.Int64("seed", def.Seed, "Random seed for the split")
		maxIter   = flag.Int("max-iter", def.MaxIter, "Logistic regression iterations")
		maxDepth  = flag.Int("max-depth", def.MaxDepth, "Decision tree depth limit")
		minSplit  = flag.Int("min-samples-split", def.MinSamplesSplit, "Minimum rows a tree node needs to split")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := def
	cfg.DataPath = *dataPath
	cfg.ModelsDir = *modelsDir
	cfg.TestSize = *testSize
	cfg.Seed = *seed
	cfg.MaxIter = *maxIter
	cfg.MaxDepth = *maxDepth
	cfg.MinSamplesSplit = *minSplit

	var store *storage.Store
	if *dbPath != "" {
		store, err = storage.New(*dbPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, training run will not be recorded")
			store = nil
		} else {
			defer store.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := training.NewPipeline(cfg, store, metrics.NewWrapper(metrics.New()))
	if err != nil {
		log.Error().Err(err).Msg("Invalid training configuration")
		os.Exit(1)
	}
	report, err := p.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Training failed")
		os.Exit(1)
	}

	fmt.Println("=== Training Results ===")
	fmt.Printf("Run ID:              %s\n", report.Run.ID)
	fmt.Printf("Train / test rows:   %d / %d\n", report.Run.TrainRows, report.Run.TestRows)
	fmt.Printf("Logistic regression: %.4f\n", report.Evaluation.LogisticRegressionAccuracy)
	fmt.Printf("Decision tree:       %.4f\n", report.Evaluation.DecisionTreeAccuracy)
	fmt.Printf("Ensemble:            %.4f\n", report.Evaluation.EnsembleAccuracy)
	fmt.Printf("Artifacts:           %s\n", cfg.ModelsDir)
	fmt.Println("========================")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/backtest"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/metrics"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "", "Labeled passenger CSV to score")
		modelsDir  = flag.String("models", common.DefaultModelsPath, "Directory holding the trained artifacts")
		dbPath     = flag.String("db", "", "Data directory whose prediction audit log is replayed")
		since      = flag.Duration("since", 24*time.Hour, "How far back to replay the audit log")
		outputPath = flag.String("output", "", "Output directory for report files (empty prints only)")
		repeats    = flag.Int("importance-repeats", 5, "Shuffles per feature for permutation importance (0 disables it)")
		seed       = flag.Int64("seed", common.DefaultRandomSeed, "Random seed for permutation importance")
		drift      = flag.Float64("drift-threshold", 0.25, "Relative shift that raises a drift alert (0 disables drift checks)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "one of -data or -db is required")
		flag.Usage()
		os.Exit(2)
	}

	fmt.Println("=== Backtest Configuration ===")
	fmt.Printf("Models: %s\n", *modelsDir)
	if *dataPath != "" {
		fmt.Printf("Dataset: %s\n", *dataPath)
	}
	if *dbPath != "" {
		fmt.Printf("Audit log: %s (last %s)\n", *dbPath, *since)
	}
	fmt.Println("==============================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mw := metrics.NewWrapper(metrics.New())
	models, err := ml.LoadModels(ctx, *modelsDir, mw)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *modelsDir).Msg("Failed to load models")
	}

	loader := backtest.NewDataLoader()
	if *dataPath != "" {
		if err := loader.LoadFromCSV(*dataPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to load dataset")
		}
	}
	if *dbPath != "" {
		if err := replay(loader, *dbPath, *since); err != nil {
			log.Fatal().Err(err).Msg("Failed to load audit log")
		}
	}

	var opts []backtest.EngineOption
	if *repeats > 0 {
		opts = append(opts, backtest.WithImportance(*repeats, *seed))
	}
	if *drift > 0 {
		opts = append(opts, backtest.WithDrift(*drift))
	}
	engine := backtest.NewEngine(models, loader, opts...)
	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	reporter := backtest.NewReporter(engine.GetResults(), *outputPath)
	if *outputPath != "" {
		if err := reporter.GenerateReport(); err != nil {
			log.Error().Err(err).Msg("Failed to generate report")
		}
	}
	reporter.PrintSummary()
}

func replay(loader *backtest.DataLoader, dir string, since time.Duration) error {
	store, err := storage.New(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now()
	return loader.LoadFromBoltDB(store, end.Add(-since), end)
}

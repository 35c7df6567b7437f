package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		recent   = flag.Int("recent", 10, "Number of recent predictions to print")
		since    = flag.Duration("since", 7*24*time.Hour, "Window for prediction statistics")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Inspecting data in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	total, err := store.CountPredictions()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count predictions")
	}
	fmt.Printf("\nPredictions stored: %d\n", total)

	run, err := store.LatestTrainingRun()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Println("No training runs recorded")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to read training runs")
	default:
		fmt.Printf("\nLatest training run %s (finished %s)\n", run.ID, run.FinishedAt.Format(time.RFC3339))
		fmt.Printf("  dataset %s, %d rows (%d train / %d test), seed %d\n",
			run.DatasetPath, run.Rows, run.TrainRows, run.TestRows, run.Seed)
		names := make([]string, 0, len(run.Accuracy))
		for name := range run.Accuracy {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-20s %.4f\n", name, run.Accuracy[name])
		}
	}

	end := time.Now()
	records, err := store.GetPredictions(end.Add(-*since), end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch predictions")
	}
	if len(records) == 0 {
		fmt.Printf("\nNo predictions in the last %s\n", *since)
		return
	}

	byLabel := make(map[string]int)
	byLevel := make(map[string]int)
	var latency float64
	for _, r := range records {
		byLabel[r.Prediction]++
		byLevel[r.ConfidenceLevel]++
		latency += r.LatencyMS
	}
	fmt.Printf("\nLast %s: %d predictions, mean latency %.2fms\n", *since, len(records), latency/float64(len(records)))
	fmt.Printf("  %s: %d, %s: %d\n",
		common.LabelSurvived, byLabel[common.LabelSurvived],
		common.LabelDidNotSurvive, byLabel[common.LabelDidNotSurvive])
	fmt.Printf("  confidence high/medium/low: %d/%d/%d\n",
		byLevel[common.ConfidenceHigh], byLevel[common.ConfidenceMedium], byLevel[common.ConfidenceLow])

	fmt.Println("\nRecent predictions:")
	from := len(records) - *recent
	if from < 0 {
		from = 0
	}
	for _, r := range records[from:] {
		fmt.Printf("  %s  %-16s p=%.3f  %-6s  %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Prediction, r.EnsembleProbability, r.ConfidenceLevel, r.Subject)
	}
}

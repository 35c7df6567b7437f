// Command export-data dumps the prediction audit log for offline analysis as
// newline-delimited JSON or CSV.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/storage"
)

var inputColumns = []string{
	features.ColPclass, features.ColSex, features.ColAge, features.ColSibSp,
	features.ColParch, features.ColFare, features.ColEmbarked,
}

func main() {
	var (
		dataPath   = flag.String("data", os.Getenv(common.EnvDataPath), "Data directory holding the database")
		outputPath = flag.String("output", "predictions.jsonl", "Output file path")
		format     = flag.String("format", "jsonl", "Output format: jsonl or csv")
		days       = flag.Int("days", 30, "Number of days to export (0 for all)")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" {
		log.Fatal().Msg("-data or DATA_PATH is required")
	}
	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	end := time.Now()
	start := time.Unix(0, 0)
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}
	records, err := store.GetPredictions(start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read predictions")
	}
	if len(records) == 0 {
		log.Warn().Msg("No predictions found in range")
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer out.Close()

	switch *format {
	case "jsonl":
		err = writeJSONL(out, records)
	case "csv":
		err = writeCSV(out, records)
	default:
		log.Fatal().Str("format", *format).Msg("Unknown format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write export")
	}

	ev := log.Info().Int("records", len(records)).Str("file", *outputPath)
	if len(records) > 0 {
		counts := make(map[string]int)
		for _, r := range records {
			counts[r.Prediction]++
		}
		ev = ev.Time("from", records[0].Timestamp).
			Time("to", records[len(records)-1].Timestamp).
			Int(common.LabelSurvived, counts[common.LabelSurvived]).
			Int(common.LabelDidNotSurvive, counts[common.LabelDidNotSurvive])
	}
	ev.Msg("Export complete")
}

func writeJSONL(w io.Writer, records []storage.PredictionRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, records []storage.PredictionRecord) error {
	cw := csv.NewWriter(w)
	header := append([]string{"id", "timestamp", "subject"}, inputColumns...)
	header = append(header, "ensemble_probability", "prediction", "confidence", "confidence_level", "latency_ms")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{r.ID, r.Timestamp.Format(time.RFC3339Nano), r.Subject}
		for _, col := range inputColumns {
			row = append(row, cell(r.Input[col]))
		}
		row = append(row,
			strconv.FormatFloat(r.EnsembleProbability, 'f', 6, 64),
			r.Prediction,
			strconv.FormatFloat(r.Confidence, 'f', 6, 64),
			r.ConfidenceLevel,
			strconv.FormatFloat(r.LatencyMS, 'f', 3, 64),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cell renders a JSON-decoded input value; missing values are empty.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

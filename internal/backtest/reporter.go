package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
)

// Report file names inside the output directory.
const (
	SummaryFile     = "backtest_summary.txt"
	PredictionsFile = "predictions.csv"
	ResultsFile     = "backtest_results.json"
)

var levels = []string{common.ConfidenceHigh, common.ConfidenceMedium, common.ConfidenceLow}

// Reporter writes backtest results to disk and stdout.
type Reporter struct {
	results    *Results
	outputPath string
}

func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{results: results, outputPath: outputPath}
}

// GenerateReport writes the summary, the per-row CSV and the JSON report.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generatePredictionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	res := r.results
	fmt.Fprintln(file, "=== BACKTEST SUMMARY ===")
	fmt.Fprintf(file, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "Samples: %d (labeled %d, replayed %d)\n", res.Samples, res.Labeled, res.Replayed)
	fmt.Fprintf(file, "Predicted survival rate: %.2f%%\n", res.SurvivedRate*100)
	fmt.Fprintf(file, "Mean ensemble probability: %.4f\n", res.MeanProbability)

	if res.Labeled > 0 {
		fmt.Fprintln(file, "\n--- Model scores ---")
		fmt.Fprintf(file, "%-22s %9s %9s %9s %9s\n", "model", "accuracy", "precision", "recall", "f1")
		for _, name := range modelNames {
			s := res.ModelScores[name]
			fmt.Fprintf(file, "%-22s %9.4f %9.4f %9.4f %9.4f\n", name, s.Accuracy, s.Precision, s.Recall, s.F1)
		}
		fmt.Fprintln(file, "\n--- Accuracy by confidence level ---")
		for _, level := range levels {
			ls := res.ByConfidence[level]
			fmt.Fprintf(file, "%-7s %5d rows  %6.2f%%\n", level, ls.Count, ls.Accuracy*100)
		}
	}
	if res.Replayed > 0 {
		fmt.Fprintln(file, "\n--- Replay ---")
		fmt.Fprintf(file, "Predictions that changed: %d of %d\n", res.Changed, res.Replayed)
	}
	if res.Importance != nil {
		fmt.Fprintf(file, "\n--- Permutation importance (baseline accuracy %.4f, %d repeats) ---\n",
			res.Importance.BaselineAccuracy, res.Importance.Repeats)
		for _, f := range res.Importance.Features {
			fmt.Fprintf(file, "%-12s %8.4f +/- %.4f\n", f.Feature, f.Importance, f.StdDev)
		}
	}
	if res.Drift != nil {
		fmt.Fprintf(file, "\n--- Input drift (%d rows) ---\n", res.Drift.Rows)
		if !res.Drift.Drifted {
			fmt.Fprintln(file, "No drift detected")
		}
		for _, a := range res.Drift.Alerts {
			fmt.Fprintf(file, "[%s] %s: %s\n", a.Severity, a.Method, a.Description)
		}
	}

	log.Info().Str("file", summaryPath).Msg("Summary generated")
	return nil
}

func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, PredictionsFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"index", "actual", common.ModelLogisticRegression, common.ModelDecisionTree, common.ModelEnsemble,
		"prediction", "confidence", "confidence_level", "correct", "recorded_prediction", "changed",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range r.results.Rows {
		actual, correct := "", ""
		if row.Actual != nil {
			actual = strconv.Itoa(*row.Actual)
		}
		if row.Correct != nil {
			correct = strconv.FormatBool(*row.Correct)
		}
		record := []string{
			strconv.Itoa(row.Index),
			actual,
			fmt.Sprintf("%.4f", row.Probabilities[common.ModelLogisticRegression]),
			fmt.Sprintf("%.4f", row.Probabilities[common.ModelDecisionTree]),
			fmt.Sprintf("%.4f", row.Probabilities[common.ModelEnsemble]),
			row.Prediction,
			fmt.Sprintf("%.4f", row.Confidence),
			row.ConfidenceLevel,
			correct,
			row.Recorded,
			strconv.FormatBool(row.Changed),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", csvPath).Int("rows", len(r.results.Rows)).Msg("Prediction log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, ResultsFile)
	report := struct {
		*Results
		GeneratedAt time.Time `json:"generated_at"`
	}{r.results, time.Now()}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints the headline numbers to stdout.
func (r *Reporter) PrintSummary() {
	res := r.results
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Samples: %d (labeled %d, replayed %d)\n", res.Samples, res.Labeled, res.Replayed)
	for _, name := range modelNames {
		if s, ok := res.ModelScores[name]; ok {
			fmt.Printf("%-20s accuracy %.4f  f1 %.4f\n", name+":", s.Accuracy, s.F1)
		}
	}
	for _, level := range levels {
		if ls := res.ByConfidence[level]; ls.Count > 0 {
			fmt.Printf("%-7s confidence: %d rows, %.2f%% correct\n", level, ls.Count, ls.Accuracy*100)
		}
	}
	if res.Replayed > 0 {
		fmt.Printf("Changed since served: %d of %d\n", res.Changed, res.Replayed)
	}
	if res.Importance != nil {
		fmt.Printf("Top features: %v\n", res.Importance.Top(3))
	}
	if res.Drift != nil && res.Drift.Drifted {
		fmt.Printf("Drift alerts: %d\n", len(res.Drift.Alerts))
	}
	fmt.Println("========================")
}

package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/model"
)

// FeatureImportance is the accuracy lost when one feature column is shuffled.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	StdDev     float64 `json:"std_dev"`
}

// ImportanceReport ranks feature columns by permutation importance.
type ImportanceReport struct {
	BaselineAccuracy float64             `json:"baseline_accuracy"`
	Repeats          int                 `json:"repeats"`
	Features         []FeatureImportance `json:"features"`
}

// Top returns the n most important feature names.
func (r *ImportanceReport) Top(n int) []string {
	if n > len(r.Features) {
		n = len(r.Features)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = r.Features[i].Feature
	}
	return out
}

// PermutationImportance scores each column of X by how much ensemble
// accuracy drops when that column is shuffled across rows. Each column is
// shuffled repeats times with a generator seeded from seed; results are
// sorted by importance, highest first.
func PermutationImportance(ctx context.Context, ens *Ensemble, columns []string, X [][]float64, y []int, repeats int, seed int64) (*ImportanceReport, error) {
	if ens == nil {
		return nil, &common.ModelUnavailableError{Reason: "ensemble is not loaded"}
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("permutation importance needs matching non-empty X and y, got %d and %d", len(X), len(y))
	}
	if len(columns) != len(X[0]) {
		return nil, fmt.Errorf("%d column names for %d features", len(columns), len(X[0]))
	}
	if repeats < 1 {
		repeats = 1
	}

	baseline, err := ensembleAccuracy(ens, X, y)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	shuffled := make([][]float64, len(X))
	for i := range X {
		shuffled[i] = append([]float64(nil), X[i]...)
	}
	perm := make([]int, len(X))

	report := &ImportanceReport{BaselineAccuracy: baseline, Repeats: repeats}
	drops := make([]float64, repeats)
	for col, name := range columns {
		for r := 0; r < repeats; r++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for i, p := range rng.Perm(len(X)) {
				perm[i] = p
			}
			for i := range shuffled {
				shuffled[i][col] = X[perm[i]][col]
			}
			acc, err := ensembleAccuracy(ens, shuffled, y)
			if err != nil {
				return nil, err
			}
			drops[r] = baseline - acc
		}
		for i := range shuffled {
			shuffled[i][col] = X[i][col]
		}

		mean, std := stat.MeanStdDev(drops, nil)
		if repeats == 1 {
			std = 0
		}
		report.Features = append(report.Features, FeatureImportance{Feature: name, Importance: mean, StdDev: std})
	}

	sort.SliceStable(report.Features, func(i, j int) bool {
		return report.Features[i].Importance > report.Features[j].Importance
	})
	return report, nil
}

func ensembleAccuracy(ens *Ensemble, X [][]float64, y []int) (float64, error) {
	proba, err := ens.PredictProba(X)
	if err != nil {
		return 0, err
	}
	return model.Accuracy(y, model.BinaryPredFromProba(proba, common.SurvivalThreshold)), nil
}

// SaveImportance writes the report as indented JSON.
func SaveImportance(path string, r *ImportanceReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

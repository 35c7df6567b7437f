package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"titanic-predictor/internal/features"
)

// Drift detection methods.
const (
	MethodMedianShift = "median_shift"
	MethodUnseenRate  = "unseen_rate"
	MethodModeChange  = "mode_change"
	MethodMissingRate = "missing_rate"
)

const defaultDriftThreshold = 0.25

// DriftAlert is one feature whose served distribution moved away from training.
type DriftAlert struct {
	Feature     string  `json:"feature"`
	Method      string  `json:"method"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
}

type NumericDrift struct {
	Baseline    float64 `json:"baseline_median"`
	Current     float64 `json:"current_median"`
	Shift       float64 `json:"relative_shift"`
	MissingRate float64 `json:"missing_rate"`
}

type CategoryDrift struct {
	BaselineMode string         `json:"baseline_mode"`
	CurrentMode  string         `json:"current_mode"`
	Counts       map[string]int `json:"counts"`
	Unseen       int            `json:"unseen"`
	UnseenRate   float64        `json:"unseen_rate"`
	MissingRate  float64        `json:"missing_rate"`
}

// DriftReport compares a batch of passengers with the fitted preprocessing state.
type DriftReport struct {
	Rows       int                      `json:"rows"`
	Numeric    map[string]NumericDrift  `json:"numeric"`
	Categories map[string]CategoryDrift `json:"categories"`
	Alerts     []DriftAlert             `json:"alerts,omitempty"`
	Drifted    bool                     `json:"drifted"`
}

// DriftDetector checks incoming passengers against the medians and encodings
// learned at fit time. The fallback class of an encoding is the training mode.
type DriftDetector struct {
	stats     features.Statistics
	encodings map[string]*features.CategoryEncoding
	threshold float64
}

// NewDriftDetector builds a detector from a fitted or loaded preprocessor.
// A threshold <= 0 uses the default of 0.25.
func NewDriftDetector(p *features.Preprocessor, threshold float64) (*DriftDetector, error) {
	stats, err := p.Statistics()
	if err != nil {
		return nil, err
	}
	d := &DriftDetector{
		stats:     stats,
		encodings: make(map[string]*features.CategoryEncoding, 2),
		threshold: threshold,
	}
	if d.threshold <= 0 {
		d.threshold = defaultDriftThreshold
	}
	for _, col := range []string{features.ColSex, features.ColEmbarked} {
		enc, err := p.Encoding(col)
		if err != nil {
			return nil, err
		}
		d.encodings[col] = enc
	}
	return d, nil
}

// Detect builds a drift report for records. An empty batch reports no drift.
func (d *DriftDetector) Detect(records []features.RawRecord) *DriftReport {
	r := &DriftReport{
		Rows:       len(records),
		Numeric:    make(map[string]NumericDrift, 2),
		Categories: make(map[string]CategoryDrift, 2),
	}
	if len(records) == 0 {
		return r
	}

	var ages, fares []float64
	sexes := make([]string, 0, len(records))
	embarked := make([]string, 0, len(records))
	missingEmbarked := 0
	for _, rec := range records {
		if rec.Age != nil {
			ages = append(ages, *rec.Age)
		}
		if rec.Fare != nil {
			fares = append(fares, *rec.Fare)
		}
		sexes = append(sexes, rec.Sex)
		if rec.Embarked == nil {
			missingEmbarked++
			continue
		}
		embarked = append(embarked, *rec.Embarked)
	}

	n := float64(len(records))
	r.Numeric[features.ColAge] = d.numeric(r, features.ColAge, d.stats.AgeMedian, ages, 1-float64(len(ages))/n)
	r.Numeric[features.ColFare] = d.numeric(r, features.ColFare, d.stats.FareMedian, fares, 1-float64(len(fares))/n)
	r.Categories[features.ColSex] = d.category(r, features.ColSex, sexes, 0)
	r.Categories[features.ColEmbarked] = d.category(r, features.ColEmbarked, embarked, float64(missingEmbarked)/n)

	r.Drifted = len(r.Alerts) > 0
	return r
}

func (d *DriftDetector) numeric(r *DriftReport, col string, baseline float64, values []float64, missing float64) NumericDrift {
	nd := NumericDrift{Baseline: baseline, MissingRate: missing}
	if missing > d.threshold {
		d.alert(r, col, MethodMissingRate, missing, fmt.Sprintf("%.0f%% of %s values are missing", missing*100, col))
	}
	if len(values) == 0 {
		return nd
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	nd.Current = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	nd.Shift = math.Abs(nd.Current-baseline) / math.Max(math.Abs(baseline), 1)
	if nd.Shift > d.threshold {
		d.alert(r, col, MethodMedianShift, nd.Shift,
			fmt.Sprintf("%s median moved from %.2f to %.2f", col, baseline, nd.Current))
	}
	return nd
}

func (d *DriftDetector) category(r *DriftReport, col string, values []string, missing float64) CategoryDrift {
	enc := d.encodings[col]
	cd := CategoryDrift{BaselineMode: enc.Fallback, Counts: make(map[string]int), MissingRate: missing}
	for _, v := range values {
		cd.Counts[v]++
		if _, seen := enc.Encode(v); !seen {
			cd.Unseen++
		}
	}
	if len(values) == 0 {
		return cd
	}

	best := -1
	for v, c := range cd.Counts {
		if c > best || (c == best && v < cd.CurrentMode) {
			best, cd.CurrentMode = c, v
		}
	}
	cd.UnseenRate = float64(cd.Unseen) / float64(len(values))

	if cd.UnseenRate > d.threshold {
		d.alert(r, col, MethodUnseenRate, cd.UnseenRate,
			fmt.Sprintf("%.0f%% of %s values were never seen in training", cd.UnseenRate*100, col))
	}
	if cd.CurrentMode != cd.BaselineMode {
		share := float64(best) / float64(len(values))
		d.alert(r, col, MethodModeChange, share,
			fmt.Sprintf("most frequent %s changed from %q to %q", col, cd.BaselineMode, cd.CurrentMode))
	}
	if missing > d.threshold {
		d.alert(r, col, MethodMissingRate, missing, fmt.Sprintf("%.0f%% of %s values are missing", missing*100, col))
	}
	return cd
}

func (d *DriftDetector) alert(r *DriftReport, col, method string, score float64, desc string) {
	severity := "medium"
	switch {
	case method == MethodModeChange:
		severity = "low"
	case score > 2*d.threshold:
		severity = "high"
	}
	r.Alerts = append(r.Alerts, DriftAlert{
		Feature:     col,
		Method:      method,
		Score:       score,
		Threshold:   d.threshold,
		Severity:    severity,
		Description: desc,
	})
}

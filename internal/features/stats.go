package features

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Statistics are the imputation values learned at fit time.
type Statistics struct {
	AgeMedian    float64 `json:"age_median"`
	FareMedian   float64 `json:"fare_median"`
	EmbarkedMode string  `json:"embarked_mode"`
	OriginalRows int     `json:"original_rows"`
	SurvivalRate float64 `json:"survival_rate"`
}

// median averages the two middle values for even-length input.
// The caller guarantees len(values) > 0.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mode returns the most frequent value; ties go to the lexically smallest.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := "", -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

func survivalRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	xs := make([]float64, len(labels))
	for i, l := range labels {
		xs[i] = float64(l)
	}
	return stat.Mean(xs, nil)
}

// ageGroup buckets an age into [0,18), [18,35), [35,60), [60,100].
// Ages above 100 stay in the last bucket.
func ageGroup(age float64) float64 {
	switch {
	case age < 18:
		return 0
	case age < 35:
		return 1
	case age < 60:
		return 2
	default:
		return 3
	}
}

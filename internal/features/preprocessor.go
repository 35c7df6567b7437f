// Package features turns raw passenger records into model-ready feature vectors.
//
// A Preprocessor is fitted once on labeled training data (or loaded from the
// artifacts written by a fitted one) and from then on only applies the learned
// imputation statistics and category encodings. A fitted Preprocessor is
// immutable and safe for concurrent Transform calls; FitTransform and
// LoadArtifacts must not run concurrently with anything else.
package features

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
)

// MetricsInterface defines metrics methods needed by the preprocessor
type MetricsInterface interface {
	UnseenCategoryInc(column string)
}

type Preprocessor struct {
	stats    *Statistics
	encoders map[string]*CategoryEncoding
	columns  []string
	metrics  MetricsInterface
}

func NewPreprocessor() *Preprocessor {
	return NewPreprocessorWithMetrics(nil)
}

func NewPreprocessorWithMetrics(metrics MetricsInterface) *Preprocessor {
	return &Preprocessor{metrics: metrics}
}

// Fitted reports whether statistics, encodings and columns are available.
func (p *Preprocessor) Fitted() bool {
	return p.stats != nil && p.encoders != nil && p.columns != nil
}

// Statistics returns a copy of the fitted imputation statistics.
func (p *Preprocessor) Statistics() (Statistics, error) {
	if !p.Fitted() {
		return Statistics{}, &common.StateError{Op: "Statistics", Msg: common.ErrMsgNotFitted}
	}
	return *p.stats, nil
}

// Encoding returns the fitted encoding for a categorical column.
func (p *Preprocessor) Encoding(column string) (*CategoryEncoding, error) {
	if !p.Fitted() {
		return nil, &common.StateError{Op: "Encoding", Msg: common.ErrMsgNotFitted}
	}
	enc, ok := p.encoders[column]
	if !ok {
		return nil, fmt.Errorf("no encoding for column %q", column)
	}
	return enc, nil
}

// FeatureColumns returns the canonical feature-column order frozen at fit time.
func (p *Preprocessor) FeatureColumns() ([]string, error) {
	if !p.Fitted() {
		return nil, &common.StateError{Op: "FeatureColumns", Msg: common.ErrMsgNotFitted}
	}
	return append([]string(nil), p.columns...), nil
}

// FitTransform learns imputation statistics and category encodings from a labeled
// batch, then returns the transformed matrix. Fitting replaces any prior state.
func (p *Preprocessor) FitTransform(records []RawRecord) (*Matrix, error) {
	if len(records) == 0 {
		return nil, common.NewConfigurationError(common.ErrMsgEmptyDataset, nil)
	}

	var ages, fares []float64
	var embarked []string
	labels := make([]int, len(records))
	dropped := make(map[string]struct{})
	for i, r := range records {
		if r.Survived == nil {
			return nil, common.NewConfigurationError(fmt.Sprintf("%s (row %d)", common.ErrMsgMissingLabel, i), nil)
		}
		labels[i] = *r.Survived
		if r.Age != nil {
			ages = append(ages, *r.Age)
		}
		if r.Fare != nil {
			fares = append(fares, *r.Fare)
		}
		if r.Embarked != nil && *r.Embarked != "" {
			embarked = append(embarked, *r.Embarked)
		}
		for k := range r.Extra {
			dropped[k] = struct{}{}
		}
	}
	if len(ages) == 0 || len(fares) == 0 || len(embarked) == 0 {
		return nil, common.NewConfigurationError("age, fare and embarked each need at least one observed value", nil)
	}

	stats := &Statistics{
		AgeMedian:    median(ages),
		FareMedian:   median(fares),
		EmbarkedMode: mode(embarked),
		OriginalRows: len(records),
		SurvivalRate: survivalRate(labels),
	}

	sexValues := make([]string, len(records))
	embarkedValues := make([]string, len(records))
	for i, r := range records {
		sexValues[i] = r.Sex
		embarkedValues[i] = stats.EmbarkedMode
		if r.Embarked != nil && *r.Embarked != "" {
			embarkedValues[i] = *r.Embarked
		}
	}
	sexEnc, err := fitEncoding(sexValues)
	if err != nil {
		return nil, common.NewConfigurationError("cannot encode sex", err)
	}
	embarkedEnc, err := fitEncoding(embarkedValues)
	if err != nil {
		return nil, common.NewConfigurationError("cannot encode embarked", err)
	}

	columns := make([]string, 0, len(baseColumns)+len(engineeredColumns))
	columns = append(columns, baseColumns...)
	columns = append(columns, engineeredColumns...)

	p.stats = stats
	p.encoders = map[string]*CategoryEncoding{ColSex: sexEnc, ColEmbarked: embarkedEnc}
	p.columns = columns

	droppedNames := make([]string, 0, len(dropped))
	for k := range dropped {
		droppedNames = append(droppedNames, k)
	}
	sort.Strings(droppedNames)
	log.Info().
		Int("rows", len(records)).
		Float64("age_median", stats.AgeMedian).
		Float64("fare_median", stats.FareMedian).
		Str("embarked_mode", stats.EmbarkedMode).
		Strs("dropped_columns", droppedNames).
		Strs("feature_columns", columns).
		Msg("Preprocessor fitted")

	x := make([][]float64, len(records))
	for i := range records {
		x[i] = p.row(records[i])
	}
	return &Matrix{Columns: p.columnsCopy(), X: x, Y: labels}, nil
}

func (p *Preprocessor) columnsCopy() []string {
	return append([]string(nil), p.columns...)
}

// Transform applies fitted state to new records. Unseen categories fall back to the
// encoding's most frequent class and are logged, never returned as errors.
func (p *Preprocessor) Transform(records []RawRecord) ([][]float64, error) {
	if !p.Fitted() {
		return nil, &common.StateError{Op: "Transform", Msg: common.ErrMsgNotFitted}
	}
	out := make([][]float64, len(records))
	for i := range records {
		out[i] = p.row(records[i])
	}
	return out, nil
}

// PreprocessSingle transforms one record into a FeatureVector.
func (p *Preprocessor) PreprocessSingle(record RawRecord) (FeatureVector, error) {
	if !p.Fitted() {
		return FeatureVector{}, &common.StateError{Op: "PreprocessSingle", Msg: common.ErrMsgNotFitted}
	}
	return FeatureVector{Columns: p.columnsCopy(), Values: p.row(record)}, nil
}

func (p *Preprocessor) row(r RawRecord) []float64 {
	age := p.stats.AgeMedian
	if r.Age != nil {
		age = *r.Age
	}
	fare := p.stats.FareMedian
	if r.Fare != nil {
		fare = *r.Fare
	}
	embarked := p.stats.EmbarkedMode
	if r.Embarked != nil && *r.Embarked != "" {
		embarked = *r.Embarked
	}
	familySize := r.SibSp + r.Parch + 1
	isAlone := 0.0
	if familySize == 1 {
		isAlone = 1
	}

	values := make([]float64, len(p.columns))
	for i, col := range p.columns {
		switch col {
		case ColPclass:
			values[i] = float64(r.Pclass)
		case ColSex:
			values[i] = p.encode(ColSex, r.Sex)
		case ColAge:
			values[i] = age
		case ColSibSp:
			values[i] = float64(r.SibSp)
		case ColParch:
			values[i] = float64(r.Parch)
		case ColFare:
			values[i] = fare
		case ColEmbarked:
			values[i] = p.encode(ColEmbarked, embarked)
		case ColFamilySize:
			values[i] = float64(familySize)
		case ColIsAlone:
			values[i] = isAlone
		case ColAgeGroup:
			values[i] = ageGroup(age)
		}
	}
	return values
}

func (p *Preprocessor) encode(column, value string) float64 {
	enc := p.encoders[column]
	code, seen := enc.Encode(value)
	if !seen {
		log.Warn().
			Str("column", column).
			Str("value", value).
			Str("fallback", enc.Fallback).
			Msg("Unseen category, using fallback")
		if p.metrics != nil {
			p.metrics.UnseenCategoryInc(column)
		}
	}
	return float64(code)
}

// Package validation checks and sanitizes passenger input before it reaches
// the preprocessor. Hard range violations are rejected; values that are legal
// but historically unusual are only logged.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
)

// PassengerInput is the request body of a prediction. Nil means absent;
// age, fare and embarked may be null and are imputed downstream.
type PassengerInput struct {
	Pclass   *int     `json:"pclass"`
	Sex      *string  `json:"sex"`
	Age      *float64 `json:"age"`
	SibSp    *int     `json:"sibsp"`
	Parch    *int     `json:"parch"`
	Fare     *float64 `json:"fare"`
	Embarked *string  `json:"embarked"`
}

var (
	sqlPattern        = regexp.MustCompile(`(?i)(\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b|['";]|--|\*|/\*|\*/)`)
	xssPattern        = regexp.MustCompile(`(?i)(<script|<iframe|<object|<embed|javascript:|vbscript:|on\w+\s*=)`)
	controlPattern    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f]`)
	whitespacePattern = regexp.MustCompile(`\s{10,}`)

	validSex      = map[string]bool{"male": true, "female": true}
	validEmbarked = map[string]bool{"C": true, "Q": true, "S": true}
	validPclass   = map[int]bool{1: true, 2: true, 3: true}
)

type bounds struct {
	min, max float64
}

var numericBounds = map[string]bounds{
	features.ColAge:   {common.MinAge, common.MaxAge},
	features.ColFare:  {common.MinFare, common.MaxFare},
	features.ColSibSp: {0, common.MaxFamilyCount},
	features.ColParch: {0, common.MaxFamilyCount},
}

// MetricsInterface defines metrics methods needed by validation
type MetricsInterface interface {
	InputRejectionInc()
}

type Validator struct {
	metrics MetricsInterface
}

func NewValidator(metrics MetricsInterface) *Validator {
	return &Validator{metrics: metrics}
}

// Validate sanitizes in and converts it to a record the preprocessor accepts.
// Every problem is collected into a single *common.PredictionInputError.
// The returned anomalies are tags for consistent-but-unusual input.
func (v *Validator) Validate(in PassengerInput) (features.RawRecord, []string, error) {
	errs := common.NewPredictionInputError()
	var rec features.RawRecord

	if in.Pclass == nil {
		errs.Add(features.ColPclass, "field is required")
	} else if !validPclass[*in.Pclass] {
		errs.Add(features.ColPclass, fmt.Sprintf("must be 1, 2 or 3, got %d", *in.Pclass))
	} else {
		rec.Pclass = *in.Pclass
	}

	if in.Sex == nil {
		errs.Add(features.ColSex, "field is required")
	} else if s, err := SanitizeString(*in.Sex); err != nil {
		errs.Add(features.ColSex, err.Error())
	} else if !validSex[s] {
		errs.Add(features.ColSex, "must be male or female")
	} else {
		rec.Sex = s
	}

	if in.Embarked != nil {
		if s, err := SanitizeString(*in.Embarked); err != nil {
			errs.Add(features.ColEmbarked, err.Error())
		} else if !validEmbarked[s] {
			errs.Add(features.ColEmbarked, "must be C, Q or S")
		} else {
			rec.Embarked = features.String(s)
		}
	}

	if in.SibSp == nil {
		errs.Add(features.ColSibSp, "field is required")
	} else if checkBounds(errs, features.ColSibSp, float64(*in.SibSp)) {
		rec.SibSp = *in.SibSp
	}
	if in.Parch == nil {
		errs.Add(features.ColParch, "field is required")
	} else if checkBounds(errs, features.ColParch, float64(*in.Parch)) {
		rec.Parch = *in.Parch
	}
	if in.Age != nil && checkBounds(errs, features.ColAge, *in.Age) {
		rec.Age = features.Float(*in.Age)
	}
	if in.Fare != nil && checkBounds(errs, features.ColFare, *in.Fare) {
		rec.Fare = features.Float(*in.Fare)
	}

	if errs.HasErrors() {
		if v.metrics != nil {
			v.metrics.InputRejectionInc()
		}
		log.Warn().Interface("field_errors", errs.FieldErrors).Msg("Prediction input rejected")
		return features.RawRecord{}, nil, errs
	}

	anomalies := DetectAnomalies(rec)
	if len(anomalies) > 0 {
		log.Info().Strs("anomalies", anomalies).Msg("Unusual passenger data")
	}
	return rec, anomalies, nil
}

func checkBounds(errs *common.PredictionInputError, field string, value float64) bool {
	b := numericBounds[field]
	if math.IsNaN(value) || math.IsInf(value, 0) {
		errs.Add(field, "must be a finite number")
		return false
	}
	if value < b.min || value > b.max {
		errs.Add(field, fmt.Sprintf("must be between %g and %g, got %g", b.min, b.max, value))
		return false
	}
	return true
}

// SanitizeString rejects control characters and injection patterns, then
// NFKC-normalizes, collapses whitespace runs and trims.
func SanitizeString(value string) (string, error) {
	if controlPattern.MatchString(value) {
		return "", fmt.Errorf("contains invalid characters")
	}
	if sqlPattern.MatchString(value) || xssPattern.MatchString(value) {
		log.Warn().Int("length", len(value)).Msg("Injection pattern in input")
		return "", fmt.Errorf("contains invalid content")
	}

	value = norm.NFKC.String(value)
	value = whitespacePattern.ReplaceAllString(value, " ")
	value = strings.TrimSpace(value)

	if value == "" {
		return "", fmt.Errorf("cannot be empty")
	}
	if n := len([]rune(value)); n > common.MaxStringLength {
		return "", fmt.Errorf("is too long (%d > %d)", n, common.MaxStringLength)
	}
	return value, nil
}

// DetectAnomalies tags plausible but unusual combinations. Outliers above the
// historically observed maxima are included.
func DetectAnomalies(rec features.RawRecord) []string {
	var out []string

	if rec.Age != nil && *rec.Age > common.TypicalMaxAge {
		out = append(out, "age_outlier")
	}
	if rec.Fare != nil && *rec.Fare > common.TypicalMaxFare {
		out = append(out, "fare_outlier")
	}
	if rec.SibSp > common.TypicalMaxSibSp {
		out = append(out, "sibsp_outlier")
	}
	if rec.Parch > common.TypicalMaxParch {
		out = append(out, "parch_outlier")
	}

	if rec.Age != nil && rec.Fare != nil && *rec.Age < 12 && *rec.Fare > 100 {
		out = append(out, "child_high_fare")
	}
	if rec.SibSp+rec.Parch+1 > 10 {
		out = append(out, "large_family_size")
	}
	if rec.Fare != nil {
		switch {
		case rec.Pclass == 1 && *rec.Fare < 20:
			out = append(out, "first_class_low_fare")
		case rec.Pclass == 3 && *rec.Fare > 100:
			out = append(out, "third_class_high_fare")
		}
	}
	return out
}

// Package dataset reads passenger CSV files and splits them for training.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/features"
)

// RequiredColumns must appear in the CSV header.
var RequiredColumns = []string{
	features.ColPclass,
	features.ColSex,
	features.ColAge,
	features.ColSibSp,
	features.ColParch,
	features.ColFare,
	features.ColEmbarked,
	features.ColSurvived,
}

// LoadCSV reads a labeled passenger file.
func LoadCSV(path string) ([]features.RawRecord, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.NewNotFoundError(path)
	}
	if err != nil {
		return nil, common.NewConfigurationError("failed to open dataset", err)
	}
	defer file.Close()

	records, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("rows", len(records)).Msg("Dataset loaded")
	return records, nil
}

// ReadCSV parses passenger rows. Empty, "NA" and "NaN" cells are treated as missing.
func ReadCSV(r io.Reader) ([]features.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, common.NewConfigurationError("failed to read CSV header", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range RequiredColumns {
		if _, ok := pos[col]; !ok {
			return nil, common.NewConfigurationError(fmt.Sprintf("CSV is missing column %q", col), nil)
		}
	}

	var records []features.RawRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, common.NewConfigurationError(fmt.Sprintf("malformed CSV at line %d", line), err)
		}
		rec, err := parseRow(header, pos, row)
		if err != nil {
			return nil, common.NewConfigurationError(fmt.Sprintf("invalid value at line %d", line), err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, common.NewConfigurationError(common.ErrMsgEmptyDataset, nil)
	}
	return records, nil
}

func parseRow(header []string, pos map[string]int, row []string) (features.RawRecord, error) {
	cell := func(col string) string { return strings.TrimSpace(row[pos[col]]) }
	var rec features.RawRecord
	var err error

	if rec.Pclass, err = parseInt(cell(features.ColPclass)); err != nil {
		return rec, fmt.Errorf("pclass: %w", err)
	}
	rec.Sex = strings.ToLower(cell(features.ColSex))
	if rec.SibSp, err = parseInt(cell(features.ColSibSp)); err != nil {
		return rec, fmt.Errorf("sibsp: %w", err)
	}
	if rec.Parch, err = parseInt(cell(features.ColParch)); err != nil {
		return rec, fmt.Errorf("parch: %w", err)
	}
	if rec.Age, err = parseOptionalFloat(cell(features.ColAge)); err != nil {
		return rec, fmt.Errorf("age: %w", err)
	}
	if rec.Fare, err = parseOptionalFloat(cell(features.ColFare)); err != nil {
		return rec, fmt.Errorf("fare: %w", err)
	}
	if v := cell(features.ColEmbarked); !isMissing(v) {
		rec.Embarked = features.String(strings.ToUpper(v))
	}
	if v := cell(features.ColSurvived); !isMissing(v) {
		s, err := parseInt(v)
		if err != nil {
			return rec, fmt.Errorf("survived: %w", err)
		}
		rec.Survived = features.Int(s)
	}

	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if isModelColumn(name) {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[name] = row[i]
	}
	return rec, nil
}

func isModelColumn(name string) bool {
	for _, c := range RequiredColumns {
		if c == name {
			return true
		}
	}
	return false
}

func isMissing(v string) bool {
	switch strings.ToLower(v) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}

// parseInt accepts "3" and "3.0".
func parseInt(v string) (int, error) {
	if isMissing(v) {
		return 0, errors.New("value is required")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%q is out of range", v)
	}
	return int(f), nil
}

func parseOptionalFloat(v string) (*float64, error) {
	if isMissing(v) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
)

// ArtifactFiles lists the files SaveArtifacts writes and LoadArtifacts requires.
var ArtifactFiles = []string{
	common.LabelEncodersFile,
	common.PreprocessingStatsFile,
	common.FeatureColumnsFile,
}

// SaveArtifacts writes encodings, statistics and feature columns to dir.
func (p *Preprocessor) SaveArtifacts(dir string) error {
	if !p.Fitted() {
		return &common.StateError{Op: "SaveArtifacts", Msg: common.ErrMsgNotFitted}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, common.LabelEncodersFile), p.encoders); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, common.PreprocessingStatsFile), p.stats); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, common.FeatureColumnsFile), p.columns); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Msg("Preprocessing artifacts saved")
	return nil
}

// LoadArtifacts restores fitted state from dir. On error the preprocessor keeps its
// previous state.
func (p *Preprocessor) LoadArtifacts(dir string) error {
	var encoders map[string]*CategoryEncoding
	if err := readJSON(filepath.Join(dir, common.LabelEncodersFile), &encoders); err != nil {
		return err
	}
	for _, col := range categoricalColumns {
		raw, ok := encoders[col]
		if !ok || raw == nil {
			return &common.ConfigurationError{Msg: "missing encoding for " + col, Path: filepath.Join(dir, common.LabelEncodersFile)}
		}
		enc, err := newCategoryEncoding(raw.Classes, raw.Fallback)
		if err != nil {
			return &common.ConfigurationError{Msg: "invalid encoding for " + col, Path: filepath.Join(dir, common.LabelEncodersFile), Err: err}
		}
		encoders[col] = enc
	}

	var stats Statistics
	if err := readJSON(filepath.Join(dir, common.PreprocessingStatsFile), &stats); err != nil {
		return err
	}
	if stats.EmbarkedMode == "" {
		return &common.ConfigurationError{Msg: "embarked_mode is empty", Path: filepath.Join(dir, common.PreprocessingStatsFile)}
	}

	var columns []string
	if err := readJSON(filepath.Join(dir, common.FeatureColumnsFile), &columns); err != nil {
		return err
	}
	if len(columns) == 0 {
		return &common.ConfigurationError{Msg: "feature column list is empty", Path: filepath.Join(dir, common.FeatureColumnsFile)}
	}
	for _, c := range columns {
		if !knownColumn(c) {
			return &common.ConfigurationError{Msg: "unknown feature column " + c, Path: filepath.Join(dir, common.FeatureColumnsFile)}
		}
	}

	p.encoders = encoders
	p.stats = &stats
	p.columns = columns

	log.Info().
		Str("dir", dir).
		Int("feature_count", len(columns)).
		Msg("Preprocessing artifacts loaded")
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return common.NewNotFoundError(path)
	}
	if err != nil {
		return &common.ConfigurationError{Msg: "cannot read artifact", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &common.ConfigurationError{Msg: "malformed artifact", Path: path, Err: err}
	}
	return nil
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// TrainingRun summarizes one execution of the training pipeline.
type TrainingRun struct {
	ID             string             `json:"id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	DatasetPath    string             `json:"dataset_path"`
	ModelsDir      string             `json:"models_dir"`
	Rows           int                `json:"rows"`
	TrainRows      int                `json:"train_rows"`
	TestRows       int                `json:"test_rows"`
	Seed           int64              `json:"seed"`
	FeatureColumns []string           `json:"feature_columns"`
	Accuracy       map[string]float64 `json:"accuracy"`
}

// StoreTrainingRun records a completed training run keyed by its finish time.
func (s *Store) StoreTrainingRun(run TrainingRun) error {
	if run.ID == "" {
		return errors.New("training run needs an id")
	}
	return s.put(trainingRunsBucket, timeKey(run.FinishedAt, run.ID), run)
}

// LatestTrainingRun returns the most recently finished run, or ErrNotFound.
func (s *Store) LatestTrainingRun() (*TrainingRun, error) {
	var run *TrainingRun
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket([]byte(trainingRunsBucket)).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		var r TrainingRun
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("unmarshal training run: %w", err)
		}
		run = &r
		return nil
	})
	return run, err
}

// GetTrainingRuns returns runs finished within [start, end], oldest first.
func (s *Store) GetTrainingRuns(start, end time.Time) ([]TrainingRun, error) {
	var out []TrainingRun
	err := s.scanRange(trainingRunsBucket, start, end, func(v []byte) {
		var r TrainingRun
		if err := json.Unmarshal(v, &r); err != nil {
			return
		}
		out = append(out, r)
	})
	return out, err
}

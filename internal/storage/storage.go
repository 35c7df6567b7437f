// Package storage provides persistent data storage for the survival predictor.
// It uses BoltDB as the underlying storage engine to keep an audit log of served
// predictions and the history of training runs.
//
// Keys are zero-padded nanosecond timestamps, so cursor order is chronological
// and range queries are a single Seek.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	predictionsBucket  = "predictions"   // Bucket name for served prediction records
	trainingRunsBucket = "training_runs" // Bucket name for training run summaries

	dbFileName = "titanic-predictor.db"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID                  string             `json:"id"`
	RequestID           string             `json:"request_id,omitempty"`
	Subject             string             `json:"subject,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
	Input               map[string]any     `json:"input"`
	ModelProbabilities  map[string]float64 `json:"model_probabilities"`
	EnsembleProbability float64            `json:"ensemble_probability"`
	Prediction          string             `json:"prediction"`
	Confidence          float64            `json:"confidence"`
	ConfidenceLevel     string             `json:"confidence_level"`
	LatencyMS           float64            `json:"latency_ms"`
}

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database under dataPath and ensures all buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(trainingRunsBucket)); err != nil {
			return fmt.Errorf("create training runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping verifies the database is open and readable.
func (s *Store) Ping() error {
	if s.db == nil {
		return errors.New("database is closed")
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(predictionsBucket)) == nil {
			return errors.New("predictions bucket missing")
		}
		return nil
	})
}

// StorePrediction appends a prediction to the audit log.
func (s *Store) StorePrediction(rec PredictionRecord) error {
	if rec.ID == "" {
		return errors.New("prediction record needs an id")
	}
	return s.put(predictionsBucket, timeKey(rec.Timestamp, rec.ID), rec)
}

// GetPredictions returns predictions with start <= timestamp <= end in chronological order.
func (s *Store) GetPredictions(start, end time.Time) ([]PredictionRecord, error) {
	var out []PredictionRecord
	err := s.scanRange(predictionsBucket, start, end, func(v []byte) {
		var rec PredictionRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return // skip malformed records
		}
		out = append(out, rec)
	})
	return out, err
}

// CountPredictions returns the number of stored predictions.
func (s *Store) CountPredictions() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) put(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *Store) scanRange(bucket string, start, end time.Time, fn func([]byte)) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		startKey := []byte(timePrefix(start))
		// every key at end's nanosecond sorts before this bound
		endKey := []byte(timePrefix(end) + "~")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			fn(v)
		}
		return nil
	})
}

func timePrefix(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func timeKey(t time.Time, id string) string {
	return timePrefix(t) + "_" + id
}

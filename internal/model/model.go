// Package model implements the two binary classifiers behind the survival
// ensemble and their on-disk persistence.
package model

import "errors"

// ErrNotFitted is returned when a classifier is used before Fit or Load.
var ErrNotFitted = errors.New("model is not fitted")

// Classifier is a binary classifier exposing p(y=1).
type Classifier interface {
	Name() string
	Fit(X [][]float64, y []int) error
	PredictProba(X [][]float64) ([]float64, error)
}

func validateTrainingData(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("empty training set")
	}
	if len(X) != len(y) {
		return 0, errors.New("X and y length mismatch")
	}
	p := len(X[0])
	if p == 0 {
		return 0, errors.New("training rows have no features")
	}
	for i := range X {
		if len(X[i]) != p {
			return 0, errors.New("inconsistent number of features in X rows")
		}
	}
	for _, label := range y {
		if label != 0 && label != 1 {
			return 0, errors.New("labels must be 0 or 1")
		}
	}
	return p, nil
}

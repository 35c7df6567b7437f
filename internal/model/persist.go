package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"titanic-predictor/internal/common"
)

// Save gob-encodes a classifier to path.
func Save(path string, c Classifier) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.Name(), err)
	}
	return f.Sync()
}

// LoadLogisticRegression decodes a model written by Save.
func LoadLogisticRegression(path string) (*LogisticRegression, error) {
	m := &LogisticRegression{}
	if err := load(path, m); err != nil {
		return nil, err
	}
	if m.W == nil || len(m.Mean) != len(m.W) || len(m.Scale) != len(m.W) {
		return nil, &common.ConfigurationError{Msg: "logistic regression weights are incomplete", Path: path}
	}
	return m, nil
}

// LoadDecisionTree decodes a model written by Save.
func LoadDecisionTree(path string) (*DecisionTree, error) {
	t := &DecisionTree{}
	if err := load(path, t); err != nil {
		return nil, err
	}
	if t.Root == nil {
		return nil, &common.ConfigurationError{Msg: "decision tree has no root", Path: path}
	}
	if t.NFeatures <= 0 || !validNode(t.Root, t.NFeatures) {
		return nil, &common.ConfigurationError{Msg: "malformed decision tree", Path: path}
	}
	return t, nil
}

// validNode reports whether every split below n has both children and a
// feature index inside the fitted width.
func validNode(n *Node, nFeatures int) bool {
	if n.Leaf {
		return true
	}
	if n.Left == nil || n.Right == nil || n.Feature < 0 || n.Feature >= nFeatures {
		return false
	}
	return validNode(n.Left, nFeatures) && validNode(n.Right, nFeatures)
}

func load(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return common.NewNotFoundError(path)
	}
	if err != nil {
		return &common.ConfigurationError{Msg: "cannot open model", Path: path, Err: err}
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return &common.ConfigurationError{Msg: "malformed model", Path: path, Err: err}
	}
	return nil
}

package model

import (
	"fmt"
	"sort"
	"sync"

	"titanic-predictor/internal/common"
)

// DecisionTree is a CART classifier with Gini impurity and axis-aligned
// numeric splits (x <= threshold goes left).
type DecisionTree struct {
	MaxDepth        int // root depth = 0; 0 => no limit
	MinSamplesSplit int // minimum samples to attempt a split
	MinSamplesLeaf  int // minimum samples required in each leaf

	Root      *Node
	NFeatures int
}

// Node is exported so the tree can be gob-encoded as-is.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	Samples  int
	Positive float64 // fraction of samples with label 1
}

type TreeOption func(*DecisionTree)

func WithMaxDepth(d int) TreeOption { return func(t *DecisionTree) { t.MaxDepth = d } }

func WithMinSamplesSplit(n int) TreeOption {
	return func(t *DecisionTree) { t.MinSamplesSplit = n }
}

func WithMinSamplesLeaf(n int) TreeOption {
	return func(t *DecisionTree) { t.MinSamplesLeaf = n }
}

func NewDecisionTree(opts ...TreeOption) *DecisionTree {
	t := &DecisionTree{
		MaxDepth:        common.DefaultTreeMaxDepth,
		MinSamplesSplit: common.DefaultTreeMinSamplesSplit,
		MinSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *DecisionTree) Name() string { return common.ModelDecisionTree }

func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	p, err := validateTrainingData(X, y)
	if err != nil {
		return fmt.Errorf("decision tree: %w", err)
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.NFeatures = p
	t.Root = t.build(X, y, idx, 0)
	return nil
}

func (t *DecisionTree) PredictProba(X [][]float64) ([]float64, error) {
	if t == nil || t.Root == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != t.NFeatures {
			return nil, fmt.Errorf("decision tree: expected %d features, got %d", t.NFeatures, len(row))
		}
		n := t.Root
		for !n.Leaf {
			if row[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		out[i] = n.Positive
	}
	return out, nil
}

// Depth returns the depth of the deepest leaf.
func (t *DecisionTree) Depth() int {
	var walk func(*Node) int
	walk = func(n *Node) int {
		if n == nil || n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(t.Root)
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	left      []int
	right     []int
}

func (t *DecisionTree) build(X [][]float64, y []int, idx []int, depth int) *Node {
	pos := 0
	for _, i := range idx {
		pos += y[i]
	}
	node := &Node{Samples: len(idx), Positive: float64(pos) / float64(len(idx))}

	pure := pos == 0 || pos == len(idx)
	if pure || len(idx) < t.MinSamplesSplit || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		node.Leaf = true
		return node
	}

	// One goroutine per feature; results are scanned in feature order so ties
	// resolve to the lowest feature index.
	p := len(X[0])
	results := make([]split, p)
	var wg sync.WaitGroup
	for f := 0; f < p; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			results[f] = t.bestSplitForFeature(X, y, idx, f, pos)
		}(f)
	}
	wg.Wait()

	best := split{feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature < 0 {
		node.Leaf = true
		return node
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = t.build(X, y, best.left, depth+1)
	node.Right = t.build(X, y, best.right, depth+1)
	return node
}

func (t *DecisionTree) bestSplitForFeature(X [][]float64, y []int, idx []int, f, pos int) split {
	result := split{feature: -1}
	n := len(idx)

	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

	parent := gini(pos, n)
	leftPos := 0
	bestAt := -1
	for k := 0; k < n-1; k++ {
		leftPos += y[sorted[k]]
		cur, next := X[sorted[k]][f], X[sorted[k+1]][f]
		if cur == next {
			continue
		}
		nl, nr := k+1, n-k-1
		if nl < t.MinSamplesLeaf || nr < t.MinSamplesLeaf {
			continue
		}
		weighted := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)) / float64(n)
		gain := parent - weighted
		if gain > result.gain {
			result.gain = gain
			result.feature = f
			result.threshold = (cur + next) / 2
			bestAt = k
		}
	}
	if bestAt >= 0 {
		result.left = sorted[:bestAt+1]
		result.right = sorted[bestAt+1:]
	}
	return result
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

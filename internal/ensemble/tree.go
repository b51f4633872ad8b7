package ensemble

import (
	"fmt"
	"sort"
)

// Leaf marks a node without children.
const Leaf = -1

// Node is one split or leaf of a regression tree. Samples with
// x[Feature] <= Threshold go Left. Cover is the number of training samples
// that reached the node. Value is the node output already scaled by the
// learning rate; only leaf values contribute to predictions.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// IsLeaf reports whether n has no children.
func (n Node) IsLeaf() bool { return n.Feature == Leaf }

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x down the tree and returns the leaf value.
func (t Tree) Predict(x []float64) float64 {
	return t.Nodes[t.leaf(x)].Value
}

func (t Tree) leaf(x []float64) int {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return i
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

func (t Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// treeBuilder grows one tree on residuals by exhaustive best-split search.
type treeBuilder struct {
	x            [][]float64
	residual     []float64
	maxDepth     int
	minSplit     int
	minLeaf      int
	learningRate float64
	nodes        []Node
}

func (b *treeBuilder) build(idx []int) Tree {
	b.nodes = b.nodes[:0]
	b.grow(idx, 0)
	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	return Tree{Nodes: nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	sum := 0.0
	for _, i := range idx {
		sum += b.residual[i]
	}
	b.nodes = append(b.nodes, Node{
		Feature: Leaf,
		Value:   b.learningRate * sum / float64(len(idx)),
		Cover:   float64(len(idx)),
	})

	if depth >= b.maxDepth || len(idx) < b.minSplit || len(idx) < 2*b.minLeaf {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is equivalent to
// minimizing the squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	tolerance := 1e-12 * max(1, parent)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := tolerance

	sorted := make([]int, n)
	numFeatures := len(b.x[idx[0]])
	for f := 0; f < numFeatures; f++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool {
			return b.x[sorted[a]][f] < b.x[sorted[c]][f]
		})

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += b.residual[sorted[k-1]]
			lo := b.x[sorted[k-1]][f]
			hi := b.x[sorted[k]][f]
			if lo == hi || k < b.minLeaf || n-k < b.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			if gain := score - parent; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = midpoint(lo, hi)
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi {
		return lo
	}
	return m
}

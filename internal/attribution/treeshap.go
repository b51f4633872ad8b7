package attribution

import "github.com/fractal-lba/scorelens/internal/ensemble"

// treeExplainer computes interventional TreeSHAP values: for every
// background row z, the tree function over hybrid inputs (x on a subset of
// features, z elsewhere) is decomposed exactly, and the per-reference
// attributions are averaged. Each (x, z) pair satisfies
// sum(phi) = f(x) - f(z), so the average satisfies
// sum(phi) = f(x) - mean(f(background)).
type treeExplainer struct {
	ens        *ensemble.Ensemble
	background [][]float64
	expected   float64
	fact       []float64
}

func newTreeExplainer(ens *ensemble.Ensemble, background [][]float64) *treeExplainer {
	te := &treeExplainer{ens: ens, background: background}

	sum := 0.0
	for _, z := range background {
		sum += ens.Predict(z)
	}
	te.expected = sum / float64(len(background))

	maxDepth := 0
	for _, t := range ens.Trees {
		maxDepth = max(maxDepth, t.Depth())
	}
	te.fact = make([]float64, maxDepth+2)
	te.fact[0] = 1
	for i := 1; i < len(te.fact); i++ {
		te.fact[i] = te.fact[i-1] * float64(i)
	}
	return te
}

// shapValues returns one attribution matrix per model output. Regression
// ensembles have a single output.
func (te *treeExplainer) shapValues(rows [][]float64) [][][]float64 {
	out := make([][]float64, len(rows))
	for i, x := range rows {
		out[i] = te.explain(x)
	}
	return [][][]float64{out}
}

func (te *treeExplainer) expectedValues() []float64 {
	return []float64{te.expected}
}

func (te *treeExplainer) explain(x []float64) []float64 {
	phi := make([]float64, te.ens.NumFeatures)
	w := &walker{
		x:     x,
		phi:   phi,
		fact:  te.fact,
		fromX: make([]bool, te.ens.NumFeatures),
		fromZ: make([]bool, te.ens.NumFeatures),
	}
	for _, z := range te.background {
		w.z = z
		for ti := range te.ens.Trees {
			w.tree = &te.ens.Trees[ti]
			w.walk(0)
		}
	}
	n := float64(len(te.background))
	for i := range phi {
		phi[i] /= n
	}
	return phi
}

// walker enumerates the leaves reachable by hybrids of x and z. A feature
// enters xs when the path follows x's branch where x and z disagree, and zs
// when it follows z's branch. A leaf is reached exactly by the hybrids that
// take every xs feature from x and every zs feature from z.
type walker struct {
	tree   *ensemble.Tree
	x, z   []float64
	phi    []float64
	fact   []float64
	fromX  []bool
	fromZ  []bool
	xs, zs []int
}

func (w *walker) walk(node int) {
	n := w.tree.Nodes[node]
	if n.IsLeaf() {
		w.credit(n.Value)
		return
	}

	f := n.Feature
	xNext := n.Right
	if w.x[f] <= n.Threshold {
		xNext = n.Left
	}
	zNext := n.Right
	if w.z[f] <= n.Threshold {
		zNext = n.Left
	}

	switch {
	case w.fromX[f]:
		w.walk(xNext)
	case w.fromZ[f]:
		w.walk(zNext)
	case xNext == zNext:
		w.walk(xNext)
	default:
		w.fromX[f] = true
		w.xs = append(w.xs, f)
		w.walk(xNext)
		w.xs = w.xs[:len(w.xs)-1]
		w.fromX[f] = false

		w.fromZ[f] = true
		w.zs = append(w.zs, f)
		w.walk(zNext)
		w.zs = w.zs[:len(w.zs)-1]
		w.fromZ[f] = false
	}
}

// credit applies the Shapley values of the game v(S) = value when
// xs ⊆ S and zs ∩ S = ∅.
func (w *walker) credit(value float64) {
	a, b := len(w.xs), len(w.zs)
	if a == 0 && b == 0 {
		return
	}
	total := w.fact[a+b]
	if a > 0 {
		gain := value * w.fact[a-1] * w.fact[b] / total
		for _, f := range w.xs {
			w.phi[f] += gain
		}
	}
	if b > 0 {
		loss := value * w.fact[a] * w.fact[b-1] / total
		for _, f := range w.zs {
			w.phi[f] -= loss
		}
	}
}

// Package ensemble implements gradient-boosted regression trees with
// squared-error loss. Trees are stored with per-node sample cover so the
// fitted ensemble can be explained exactly by tree attribution.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	// ErrEmptyTrainingSet is returned when Fit receives no rows.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrShapeMismatch is returned when rows and targets disagree in size.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Config holds boosting hyperparameters.
type Config struct {
	NEstimators     int     `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	MinSamplesSplit int     `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the production hyperparameters.
func DefaultConfig() Config {
	return Config{
		NEstimators:     100,
		MaxDepth:        5,
		LearningRate:    0.1,
		Subsample:       0.8,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// Validate checks hyperparameter ranges.
func (c Config) Validate() error {
	switch {
	case c.NEstimators < 1:
		return fmt.Errorf("n_estimators must be positive, got %d", c.NEstimators)
	case c.MaxDepth < 1:
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %g", c.LearningRate)
	case c.Subsample <= 0 || c.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %g", c.Subsample)
	case c.MinSamplesSplit < 2:
		return fmt.Errorf("min_samples_split must be at least 2, got %d", c.MinSamplesSplit)
	case c.MinSamplesLeaf < 1:
		return fmt.Errorf("min_samples_leaf must be at least 1, got %d", c.MinSamplesLeaf)
	}
	return nil
}

// Ensemble is a fitted additive tree model: Init plus the sum of tree outputs.
type Ensemble struct {
	Init        float64 `json:"init"`
	NumFeatures int     `json:"num_features"`
	Trees       []Tree  `json:"trees"`
}

// Predict returns the raw (unclamped) model output for one row.
func (e *Ensemble) Predict(x []float64) float64 {
	out := e.Init
	for _, t := range e.Trees {
		out += t.Predict(x)
	}
	return out
}

// PredictBatch applies Predict to every row.
func (e *Ensemble) PredictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, x := range rows {
		out[i] = e.Predict(x)
	}
	return out
}

// Validate checks the structural integrity of a decoded ensemble.
func (e *Ensemble) Validate() error {
	if e.NumFeatures < 1 {
		return fmt.Errorf("ensemble has no features")
	}
	for i, t := range e.Trees {
		if err := t.validate(e.NumFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// ProgressFunc is called after every boosting round with the training MSE.
type ProgressFunc func(round, total int, mse float64)

// Fit trains an ensemble on rows x and targets y. Row subsampling is driven
// by cfg.Seed, so identical inputs produce identical ensembles.
func Fit(ctx context.Context, x [][]float64, y []float64, cfg Config, progress ProgressFunc) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrShapeMismatch)
	}
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), width)
		}
	}

	n := len(y)
	init := 0.0
	for _, v := range y {
		init += v
	}
	init /= float64(n)

	ens := &Ensemble{Init: init, NumFeatures: width, Trees: make([]Tree, 0, cfg.NEstimators)}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = init
	}
	residual := make([]float64, n)

	rng := rand.New(rand.NewSource(cfg.Seed))
	inBag := max(1, int(cfg.Subsample*float64(n)))

	b := &treeBuilder{
		x:            x,
		residual:     residual,
		maxDepth:     cfg.MaxDepth,
		minSplit:     cfg.MinSamplesSplit,
		minLeaf:      cfg.MinSamplesLeaf,
		learningRate: cfg.LearningRate,
	}

	for round := 0; round < cfg.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		var idx []int
		if inBag < n {
			idx = rng.Perm(n)[:inBag]
			sort.Ints(idx)
		} else {
			idx = make([]int, n)
			for i := range idx {
				idx[i] = i
			}
		}

		tree := b.build(idx)
		ens.Trees = append(ens.Trees, tree)

		mse := 0.0
		for i := range pred {
			pred[i] += tree.Predict(x[i])
			d := y[i] - pred[i]
			mse += d * d
		}
		if progress != nil {
			progress(round+1, cfg.NEstimators, mse/float64(n))
		}
	}

	return ens, nil
}

// Package attribution computes per-prediction additive feature attributions
// (SHAP values) for the tree ensemble. For every explained row,
// Baseline() + sum(attributions) equals the raw model output.
package attribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/fractal-lba/scorelens/internal/ensemble"
)

var (
	// ErrNotBuilt is returned when explaining with an engine that was never built.
	ErrNotBuilt = errors.New("attribution engine not built")

	// ErrEmptyBackground is returned when Build receives no reference rows.
	ErrEmptyBackground = errors.New("background sample is empty")

	// ErrWidthMismatch is returned for rows that do not match the model width.
	ErrWidthMismatch = errors.New("attribution row width mismatch")

	// ErrUnsupportedShape is returned when a backend produces no usable output.
	ErrUnsupportedShape = errors.New("unsupported attribution output shape")
)

// DefaultBackgroundSize bounds the reference sample used for the baseline.
const DefaultBackgroundSize = 100

// backend is a raw attribution source. Multi-output models yield one
// attribution matrix and one expected value per output.
type backend interface {
	shapValues(rows [][]float64) [][][]float64
	expectedValues() []float64
}

// Engine explains predictions of one ensemble against a fixed background.
// It is immutable after Build and safe for concurrent use.
type Engine struct {
	ens        *ensemble.Ensemble
	background [][]float64
	source     backend
	baseline   float64
}

// Build prepares an engine for ens using background rows (already
// transformed) as the reference distribution.
func Build(ens *ensemble.Ensemble, background [][]float64) (*Engine, error) {
	if ens == nil {
		return nil, ErrNotBuilt
	}
	if len(background) == 0 {
		return nil, ErrEmptyBackground
	}

	bg := make([][]float64, len(background))
	for i, row := range background {
		if len(row) != ens.NumFeatures {
			return nil, fmt.Errorf("%w: background row %d has %d features, want %d",
				ErrWidthMismatch, i, len(row), ens.NumFeatures)
		}
		bg[i] = append([]float64(nil), row...)
	}

	src := newTreeExplainer(ens, bg)
	baseline, err := normalizeExpected(src.expectedValues())
	if err != nil {
		return nil, err
	}

	return &Engine{
		ens:        ens,
		background: bg,
		source:     src,
		baseline:   baseline,
	}, nil
}

// Baseline is the expected model output over the background sample.
func (e *Engine) Baseline() float64 { return e.baseline }

// Background returns the reference rows. Callers must not modify them.
func (e *Engine) Background() [][]float64 { return e.background }

// ExplainOne returns the attribution vector for one transformed row.
func (e *Engine) ExplainOne(row []float64) ([]float64, error) {
	out, err := e.ExplainBatch([][]float64{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ExplainBatch returns one attribution vector per row. Rows are explained in
// parallel.
func (e *Engine) ExplainBatch(rows [][]float64) ([][]float64, error) {
	if e == nil || e.source == nil {
		return nil, ErrNotBuilt
	}
	for i, row := range rows {
		if len(row) != e.ens.NumFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d",
				ErrWidthMismatch, i, len(row), e.ens.NumFeatures)
		}
	}
	if len(rows) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, len(rows))
	workers := min(runtime.GOMAXPROCS(0), len(rows))
	jobs := make(chan int)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				m, err := normalizeOutputs(e.source.shapValues(rows[i : i+1]))
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				out[i] = m[0]
			}
		}()
	}
	for i := range rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// MeanAbs returns the mean absolute attribution per feature over rows, a
// global importance measure.
func (e *Engine) MeanAbs(rows [][]float64) ([]float64, error) {
	phis, err := e.ExplainBatch(rows)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.ens.NumFeatures)
	if len(phis) == 0 {
		return out, nil
	}
	for _, phi := range phis {
		for j, v := range phi {
			out[j] += math.Abs(v)
		}
	}
	for j := range out {
		out[j] /= float64(len(phis))
	}
	return out, nil
}

// normalizeOutputs reduces a backend result to a single attribution
// matrix. Multi-output results keep the first output.
func normalizeOutputs(outputs [][][]float64) ([][]float64, error) {
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, ErrUnsupportedShape
	}
	return outputs[0], nil
}

func normalizeExpected(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrUnsupportedShape
	}
	return values[0], nil
}

// SampleBackground picks up to size rows with a seeded permutation,
// preserving their original order. Rows are not copied.
func SampleBackground(rows [][]float64, size int, seed int64) [][]float64 {
	if size <= 0 || len(rows) <= size {
		return rows
	}
	idx := rand.New(rand.NewSource(seed)).Perm(len(rows))[:size]
	sort.Ints(idx)
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

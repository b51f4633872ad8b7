// Package model is the credit scoring model: a gradient-boosted regressor
// over preprocessed features, with score clamping and band categorization.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fractal-lba/scorelens/internal/ensemble"
	"github.com/fractal-lba/scorelens/internal/preprocess"
	"github.com/fractal-lba/scorelens/internal/schema"
	"github.com/fractal-lba/scorelens/internal/target"
)

var (
	// ErrModelNotTrained is returned by prediction before Train or FromParts.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrTooFewRows is returned when the split cannot keep a row on each side.
	ErrTooFewRows = errors.New("at least two records are required to train")

	// ErrLabelMismatch is returned when labels and rows differ in length.
	ErrLabelMismatch = errors.New("label count does not match record count")

	// ErrWidthMismatch is returned for transformed rows of the wrong width.
	ErrWidthMismatch = errors.New("feature width mismatch")

	// ErrAlreadyTrained is returned by Fit on a model that already holds a
	// fitted preprocessor and ensemble. Train a new Model instead.
	ErrAlreadyTrained = errors.New("model already trained")
)

// Config controls the train/test split and the boosting hyperparameters.
type Config struct {
	TestFraction float64         `json:"test_fraction" yaml:"test_fraction"`
	Seed         int64           `json:"seed" yaml:"seed"`
	Ensemble     ensemble.Config `json:"ensemble" yaml:"ensemble"`
}

// DefaultConfig returns a 20% held-out split seeded with 42.
func DefaultConfig() Config {
	return Config{
		TestFraction: 0.2,
		Seed:         42,
		Ensemble:     ensemble.DefaultConfig(),
	}
}

// Model owns the fitted preprocessor and tree ensemble.
type Model struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	pre       *preprocess.Preprocessor
	ens       *ensemble.Ensemble
	trainRows [][]float64
	trainedAt time.Time
}

// New creates an untrained model.
func New(cfg Config, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{cfg: cfg, logger: logger}
}

// FromParts assembles a trained model from persisted components.
func FromParts(pre *preprocess.Preprocessor, ens *ensemble.Ensemble, logger *slog.Logger) (*Model, error) {
	s, err := pre.Schema()
	if err != nil {
		return nil, err
	}
	if ens == nil {
		return nil, ErrModelNotTrained
	}
	if err := ens.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble: %w", err)
	}
	if ens.NumFeatures != s.Len() {
		return nil, fmt.Errorf("%w: ensemble expects %d features, schema has %d",
			ErrWidthMismatch, ens.NumFeatures, s.Len())
	}

	m := New(DefaultConfig(), logger)
	m.pre = pre
	m.ens = ens
	return m, nil
}

// Train labels rows with the synthetic target and fits the model.
func (m *Model) Train(ctx context.Context, rows []schema.Record, features []string, progress ensemble.ProgressFunc) (Metrics, error) {
	return m.Fit(ctx, rows, target.Build(rows), features, progress)
}

// Fit trains on explicit labels. The preprocessor is fitted on every row;
// the ensemble only sees the training partition. A Model is fitted once.
func (m *Model) Fit(ctx context.Context, rows []schema.Record, labels []float64, features []string, progress ensemble.ProgressFunc) (Metrics, error) {
	start := time.Now()

	if m.Trained() {
		return Metrics{}, ErrAlreadyTrained
	}
	if len(labels) != len(rows) {
		return Metrics{}, fmt.Errorf("%w: %d labels, %d records", ErrLabelMismatch, len(labels), len(rows))
	}
	s, err := schema.New(features)
	if err != nil {
		return Metrics{}, err
	}
	trainIdx, testIdx, err := Split(len(rows), m.cfg.TestFraction, m.cfg.Seed)
	if err != nil {
		return Metrics{}, err
	}

	pre := preprocess.New(m.logger)
	x, err := pre.FitTransform(rows, s)
	if err != nil {
		return Metrics{}, fmt.Errorf("fit preprocessor: %w", err)
	}

	xTrain, yTrain := gather(x, labels, trainIdx)
	xTest, yTest := gather(x, labels, testIdx)

	ens, err := ensemble.Fit(ctx, xTrain, yTrain, m.cfg.Ensemble, progress)
	if err != nil {
		return Metrics{}, fmt.Errorf("fit ensemble: %w", err)
	}

	trainEval := Evaluate(yTrain, ens.PredictBatch(xTrain))
	testEval := Evaluate(yTest, ens.PredictBatch(xTest))
	metrics := Metrics{
		TrainRMSE: trainEval.RMSE,
		TestRMSE:  testEval.RMSE,
		TrainMAE:  trainEval.MAE,
		TestMAE:   testEval.MAE,
		TrainR2:   trainEval.R2,
		TestR2:    testEval.R2,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}

	m.mu.Lock()
	if m.ens != nil && m.pre != nil {
		m.mu.Unlock()
		return Metrics{}, ErrAlreadyTrained
	}
	m.pre = pre
	m.ens = ens
	m.trainRows = xTrain
	m.trainedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("model trained",
		"features", s.Len(),
		"train_rows", metrics.TrainRows,
		"test_rows", metrics.TestRows,
		"train_rmse", metrics.TrainRMSE,
		"test_rmse", metrics.TestRMSE,
		"test_r2", metrics.TestR2,
		"duration", time.Since(start))

	return metrics, nil
}

func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// Scored is the full output of scoring a batch of records.
type Scored struct {
	Scores   []int
	Raw      []float64
	Features [][]float64
	Warnings []preprocess.Warning
}

// Score transforms, predicts and clamps rows in one pass.
func (m *Model) Score(rows []schema.Record) (*Scored, error) {
	m.mu.RLock()
	pre, ens := m.pre, m.ens
	m.mu.RUnlock()
	if pre == nil || ens == nil {
		return nil, ErrModelNotTrained
	}

	x, warnings, err := pre.Transform(rows)
	if err != nil {
		return nil, err
	}
	raw := ens.PredictBatch(x)
	scores := make([]int, len(raw))
	for i, v := range raw {
		scores[i] = Clamp(v)
	}
	return &Scored{Scores: scores, Raw: raw, Features: x, Warnings: warnings}, nil
}

// Predict returns clamped integer scores for rows.
func (m *Model) Predict(rows []schema.Record) ([]int, error) {
	s, err := m.Score(rows)
	if err != nil {
		return nil, err
	}
	return s.Scores, nil
}

// PredictRaw returns unclamped outputs for already transformed rows.
func (m *Model) PredictRaw(x [][]float64) ([]float64, error) {
	m.mu.RLock()
	ens := m.ens
	m.mu.RUnlock()
	if ens == nil {
		return nil, ErrModelNotTrained
	}
	for i, row := range x {
		if len(row) != ens.NumFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrWidthMismatch, i, len(row), ens.NumFeatures)
		}
	}
	return ens.PredictBatch(x), nil
}

// Trained reports whether the model can predict.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ens != nil && m.pre != nil
}

// Schema returns the feature order fixed at fit time.
func (m *Model) Schema() (schema.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pre == nil {
		return schema.Schema{}, ErrModelNotTrained
	}
	return m.pre.Schema()
}

// Preprocessor returns the fitted preprocessor.
func (m *Model) Preprocessor() *preprocess.Preprocessor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pre
}

// Ensemble returns the fitted tree ensemble.
func (m *Model) Ensemble() *ensemble.Ensemble {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ens
}

// TrainingRows returns the transformed training partition. It is empty for
// models restored with FromParts.
func (m *Model) TrainingRows() [][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainRows
}

// Config returns the training configuration.
func (m *Model) Config() Config { return m.cfg }

// TrainedAt returns when Fit completed; zero for restored models.
func (m *Model) TrainedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainedAt
}

// Package training runs the end-to-end fit: synthetic labels, preprocessing,
// boosting, attribution background and bundle assembly.
package training

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fractal-lba/scorelens/internal/attribution"
	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/ensemble"
	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// Config controls a training run.
type Config struct {
	Model          model.Config `json:"model" yaml:"model"`
	BackgroundSize int          `json:"background_size" yaml:"background_size"`
}

// DefaultConfig returns the production training configuration.
func DefaultConfig() Config {
	return Config{
		Model:          model.DefaultConfig(),
		BackgroundSize: attribution.DefaultBackgroundSize,
	}
}

// FeatureImportance is the mean absolute attribution of one feature over
// the background sample.
type FeatureImportance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// Result is the outcome of a successful run.
type Result struct {
	Bundle     *bundle.Bundle
	Metrics    model.Metrics
	Importance []FeatureImportance
	Duration   time.Duration
}

// Pipeline trains bundles.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a pipeline.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger, now: time.Now}
}

// Run trains a model on rows using features and packages it with an
// attribution engine built on a sample of the training partition.
func (p *Pipeline) Run(ctx context.Context, rows []schema.Record, features []string, progress ensemble.ProgressFunc) (*Result, error) {
	start := p.now()

	m := model.New(p.cfg.Model, p.logger)
	metrics, err := m.Train(ctx, rows, features, progress)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	background := attribution.SampleBackground(m.TrainingRows(), p.cfg.BackgroundSize, p.cfg.Model.Seed)
	engine, err := attribution.Build(m.Ensemble(), background)
	if err != nil {
		return nil, fmt.Errorf("build attribution engine: %w", err)
	}

	meanAbs, err := engine.MeanAbs(background)
	if err != nil {
		return nil, fmt.Errorf("feature importance: %w", err)
	}
	s, err := m.Schema()
	if err != nil {
		return nil, err
	}
	importance := make([]FeatureImportance, s.Len())
	for i, v := range meanAbs {
		importance[i] = FeatureImportance{Feature: s.Name(i), Importance: v}
	}
	sort.SliceStable(importance, func(a, b int) bool {
		return importance[a].Importance > importance[b].Importance
	})

	now := p.now()
	meta := bundle.Metadata{
		Version:     bundle.NewVersion(now),
		CreatedAt:   now,
		DatasetHash: HashDataset(rows, features),
		Rows:        len(rows),
		Metrics:     metrics,
		Config:      p.cfg.Model,
	}
	b, err := bundle.New(meta, m, engine)
	if err != nil {
		return nil, err
	}

	duration := p.now().Sub(start)
	p.logger.Info("training pipeline complete",
		"version", meta.Version,
		"rows", len(rows),
		"background", len(background),
		"baseline", engine.Baseline(),
		"duration", duration)

	return &Result{Bundle: b, Metrics: metrics, Importance: importance, Duration: duration}, nil
}

// HashDataset fingerprints the feature columns of rows.
func HashDataset(rows []schema.Record, features []string) string {
	hasher := sha256.New()
	for _, f := range features {
		fmt.Fprintf(hasher, "%s|", f)
	}
	for _, r := range rows {
		for _, f := range features {
			v := r.Get(f)
			switch v.Kind() {
			case schema.KindNumber:
				n, _ := v.Float()
				fmt.Fprintf(hasher, "%.9f,", n)
			case schema.KindText:
				fmt.Fprintf(hasher, "%q,", v.String())
			default:
				hasher.Write([]byte("NA,"))
			}
		}
		hasher.Write([]byte("\n"))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

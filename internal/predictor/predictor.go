// Package predictor serves predictions from the currently published model
// bundle. Bundles are swapped atomically; readers never block each other.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/explain"
	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/preprocess"
	"github.com/fractal-lba/scorelens/internal/schema"
	"github.com/fractal-lba/scorelens/pkg/otel"
)

var (
	// ErrModelUnavailable is returned when no bundle can be loaded.
	ErrModelUnavailable = errors.New("model bundle unavailable")

	// ErrEmptyBatch is returned by PredictBatch for an empty input.
	ErrEmptyBatch = errors.New("empty batch")
)

// Loader fetches the bundle that should be served.
type Loader interface {
	LoadActive(ctx context.Context) (*bundle.Bundle, error)
}

// Observer receives prediction events. internal/metrics implements it.
type Observer interface {
	ObservePrediction(kind string, score int, category string, d time.Duration)
	ObserveWarnings(warnings []preprocess.Warning)
	ObserveLoad(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObservePrediction(string, int, string, time.Duration) {}
func (nopObserver) ObserveWarnings([]preprocess.Warning)                 {}
func (nopObserver) ObserveLoad(bool)                                     {}

// BatchItem is the outcome for one record of a batch.
type BatchItem struct {
	Score    int    `json:"credit_score,omitempty"`
	Category string `json:"category,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Predictor) { p.observer = o }
}

// Predictor orchestrates preprocess, predict, attribute and compose.
type Predictor struct {
	loader   Loader
	logger   *slog.Logger
	observer Observer

	current atomic.Pointer[bundle.Bundle]
	loadMu  sync.Mutex
}

// New creates a predictor. loader may be nil when bundles are only ever
// supplied through Publish.
func New(loader Loader, opts ...Option) *Predictor {
	p := &Predictor{
		loader:   loader,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init loads the active bundle. It is idempotent: once a bundle is
// published, later calls return immediately.
func (p *Predictor) Init(ctx context.Context) error {
	if p.current.Load() != nil {
		return nil
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.current.Load() != nil {
		return nil
	}
	if p.loader == nil {
		return ErrModelUnavailable
	}

	b, err := p.loader.LoadActive(ctx)
	if err != nil {
		p.observer.ObserveLoad(false)
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	p.current.Store(b)
	p.observer.ObserveLoad(true)
	p.logger.Info("model bundle loaded", "version", b.Version())
	return nil
}

// Reload fetches the active bundle again and swaps it in.
func (p *Predictor) Reload(ctx context.Context) error {
	if p.loader == nil {
		return ErrModelUnavailable
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	b, err := p.loader.LoadActive(ctx)
	if err != nil {
		p.observer.ObserveLoad(false)
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	p.Publish(b)
	p.observer.ObserveLoad(true)
	return nil
}

// Publish atomically replaces the served bundle.
func (p *Predictor) Publish(b *bundle.Bundle) {
	prev := p.current.Swap(b)
	if prev != nil && b != nil && prev.Version() != b.Version() {
		p.logger.Info("model bundle replaced", "from", prev.Version(), "to", b.Version())
	}
}

// Handle returns the served bundle, or nil before the first load.
func (p *Predictor) Handle() *bundle.Bundle {
	return p.current.Load()
}

// Ready reports whether a bundle is being served.
func (p *Predictor) Ready() bool {
	return p.current.Load() != nil
}

func (p *Predictor) bundle(ctx context.Context) (*bundle.Bundle, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p.current.Load(), nil
}

// PredictWithExplanation scores one record and explains the score.
func (p *Predictor) PredictWithExplanation(ctx context.Context, rec schema.Record) (*explain.Result, error) {
	ctx, span := otel.StartSpan(ctx, "scorelens/predictor", "PredictWithExplanation")
	defer span.End()
	start := time.Now()

	b, err := p.bundle(ctx)
	if err != nil {
		otel.RecordError(span, err, "bundle unavailable")
		return nil, err
	}

	scored, err := b.Model().Score([]schema.Record{rec})
	if err != nil {
		otel.RecordError(span, err, "score failed")
		return nil, fmt.Errorf("score record: %w", err)
	}
	p.observer.ObserveWarnings(scored.Warnings)

	phi, err := b.Engine().ExplainOne(scored.Features[0])
	if err != nil {
		otel.RecordError(span, err, "attribution failed")
		return nil, fmt.Errorf("explain record: %w", err)
	}

	baseline := b.Engine().Baseline()
	res, err := explain.Compose(explain.Input{
		Score:        scored.Scores[0],
		Attributions: phi,
		Schema:       b.Schema(),
		Record:       rec,
		Baseline:     &baseline,
	})
	if err != nil {
		otel.RecordError(span, err, "compose failed")
		return nil, err
	}

	otel.SetScoreAttributes(span, b.Version(), res.Score, res.Category)
	p.observer.ObservePrediction("explain", res.Score, res.Category, time.Since(start))
	return res, nil
}

// PredictBatch scores records without explanations. Each record is
// processed on its own so a failure is reported in its item and never
// aborts the rest of the batch.
func (p *Predictor) PredictBatch(ctx context.Context, records []schema.Record) ([]BatchItem, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	ctx, span := otel.StartSpan(ctx, "scorelens/predictor", "PredictBatch")
	defer span.End()

	b, err := p.bundle(ctx)
	if err != nil {
		otel.RecordError(span, err, "bundle unavailable")
		return nil, err
	}

	items := make([]BatchItem, len(records))
	for i, rec := range records {
		start := time.Now()
		score, warnings, err := scoreOne(b.Model(), rec)
		if err != nil {
			p.logger.Warn("batch record failed", "index", i, "error", err)
			items[i] = BatchItem{Error: err.Error()}
			continue
		}
		p.observer.ObserveWarnings(warnings)
		category := model.Categorize(score)
		items[i] = BatchItem{Score: score, Category: category}
		p.observer.ObservePrediction("batch", score, category, time.Since(start))
	}
	return items, nil
}

func scoreOne(m *model.Model, rec schema.Record) (score int, warnings []preprocess.Warning, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score record: %v", r)
		}
	}()
	scored, err := m.Score([]schema.Record{rec})
	if err != nil {
		return 0, nil, err
	}
	return scored.Scores[0], scored.Warnings, nil
}

// Package bundle groups everything a prediction needs (fitted preprocessor,
// tree ensemble and attribution engine) into one immutable unit that can be
// published atomically and persisted as a single artifact.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fractal-lba/scorelens/internal/attribution"
	"github.com/fractal-lba/scorelens/internal/ensemble"
	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/preprocess"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// FormatVersion is the artifact layout version written by Encode.
const FormatVersion = 1

// Algorithm names the model family recorded in metadata.
const Algorithm = "gradient-boosted-trees"

var (
	// ErrIncomplete is returned when a bundle is missing a component.
	ErrIncomplete = errors.New("bundle is incomplete")

	// ErrUnsupportedFormat is returned for artifacts written by a newer layout.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")

	// ErrBaselineDrift is returned when a decoded artifact reproduces a
	// different baseline than the one it was saved with.
	ErrBaselineDrift = errors.New("artifact baseline does not reproduce")
)

// Metadata describes how a bundle was produced.
type Metadata struct {
	Version     string        `json:"version" yaml:"version"`
	Algorithm   string        `json:"algorithm" yaml:"algorithm"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	DatasetHash string        `json:"dataset_hash" yaml:"dataset_hash"`
	Rows        int           `json:"rows" yaml:"rows"`
	Features    []string      `json:"features" yaml:"features"`
	Metrics     model.Metrics `json:"metrics" yaml:"metrics"`
	Config      model.Config  `json:"config" yaml:"config"`
}

// Bundle is immutable after New; share it freely between goroutines.
type Bundle struct {
	meta   Metadata
	model  *model.Model
	engine *attribution.Engine
}

// New assembles a bundle from a trained model and its attribution engine.
func New(meta Metadata, m *model.Model, engine *attribution.Engine) (*Bundle, error) {
	if m == nil || !m.Trained() {
		return nil, fmt.Errorf("%w: %w", ErrIncomplete, model.ErrModelNotTrained)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: %w", ErrIncomplete, attribution.ErrNotBuilt)
	}
	s, err := m.Schema()
	if err != nil {
		return nil, err
	}
	if meta.Algorithm == "" {
		meta.Algorithm = Algorithm
	}
	meta.Features = s.Names()
	return &Bundle{meta: meta, model: m, engine: engine}, nil
}

// Metadata returns a copy of the bundle metadata.
func (b *Bundle) Metadata() Metadata {
	meta := b.meta
	meta.Features = append([]string(nil), b.meta.Features...)
	return meta
}

// Version is shorthand for Metadata().Version.
func (b *Bundle) Version() string { return b.meta.Version }

// Model returns the scoring model.
func (b *Bundle) Model() *model.Model { return b.model }

// Engine returns the attribution engine.
func (b *Bundle) Engine() *attribution.Engine { return b.engine }

// Schema returns the feature order shared by every component.
func (b *Bundle) Schema() schema.Schema {
	s, _ := b.model.Schema()
	return s
}

// NewVersion builds a sortable, collision-resistant bundle version.
func NewVersion(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("gbt-v%s-%s", now.UTC().Format("20060102-150405"), suffix)
}

// Artifact is the persisted form of a bundle.
type Artifact struct {
	FormatVersion int                `json:"format_version"`
	Metadata      Metadata           `json:"metadata"`
	Preprocessor  preprocess.State   `json:"preprocessor"`
	Ensemble      *ensemble.Ensemble `json:"ensemble"`
	Background    [][]float64        `json:"background"`
	Baseline      float64            `json:"baseline"`
}

// Artifact captures the bundle's persistent state.
func (b *Bundle) Artifact() (*Artifact, error) {
	st, err := b.model.Preprocessor().State()
	if err != nil {
		return nil, err
	}
	return &Artifact{
		FormatVersion: FormatVersion,
		Metadata:      b.Metadata(),
		Preprocessor:  st,
		Ensemble:      b.model.Ensemble(),
		Background:    b.engine.Background(),
		Baseline:      b.engine.Baseline(),
	}, nil
}

// Restore rebuilds a live bundle from the artifact.
func (a *Artifact) Restore(logger *slog.Logger) (*Bundle, error) {
	if a.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, a.FormatVersion)
	}
	if a.Ensemble == nil {
		return nil, fmt.Errorf("%w: no ensemble", ErrIncomplete)
	}

	pre, err := preprocess.FromState(a.Preprocessor, logger)
	if err != nil {
		return nil, err
	}
	m, err := model.FromParts(pre, a.Ensemble, logger)
	if err != nil {
		return nil, err
	}
	engine, err := attribution.Build(a.Ensemble, a.Background)
	if err != nil {
		return nil, err
	}
	if diff := math.Abs(engine.Baseline() - a.Baseline); diff > 1e-6*math.Max(1, math.Abs(a.Baseline)) {
		return nil, fmt.Errorf("%w: saved %g, rebuilt %g", ErrBaselineDrift, a.Baseline, engine.Baseline())
	}
	return New(a.Metadata, m, engine)
}

// Encode serializes a bundle to JSON.
func Encode(b *Bundle) ([]byte, error) {
	a, err := b.Artifact()
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

// Decode parses and restores a bundle from Encode output.
func Decode(data []byte, logger *slog.Logger) (*Bundle, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return a.Restore(logger)
}

// Package preprocess turns raw records into the numeric matrix the scoring
// model consumes: median imputation, label encoding and standardization,
// fitted once and replayed identically at serving time.
package preprocess

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fractal-lba/scorelens/internal/schema"
)

var (
	// ErrNotFitted is returned by Transform before FitTransform or FromState.
	ErrNotFitted = errors.New("preprocessor not fitted")

	// ErrAlreadyFitted is returned when FitTransform is called twice.
	ErrAlreadyFitted = errors.New("preprocessor already fitted")

	// ErrNoRows is returned when fitting on an empty batch.
	ErrNoRows = errors.New("no rows to fit")
)

// UnknownCode is the code substituted for categories outside the vocabulary
// and for missing categorical values.
const UnknownCode = 0

// WarningKind classifies a non-fatal transform issue.
type WarningKind string

const (
	UnknownCategory WarningKind = "unknown_category"
	MissingFeature  WarningKind = "missing_feature"
)

// Warning describes a value that was replaced by a default during Transform.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Row     int         `json:"row"`
	Feature string      `json:"feature"`
	Value   string      `json:"value,omitempty"`
}

func (w Warning) String() string {
	if w.Kind == UnknownCategory {
		return fmt.Sprintf("row %d: unknown category %q for %s", w.Row, w.Value, w.Feature)
	}
	return fmt.Sprintf("row %d: missing value for %s", w.Row, w.Feature)
}

// Preprocessor applies the fitted transform. A fitted Preprocessor is
// read-only and safe for concurrent Transform calls; FitTransform must not
// run concurrently with anything else.
type Preprocessor struct {
	state  *State
	logger *slog.Logger
}

// New creates an unfitted preprocessor.
func New(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{logger: logger}
}

// FromState restores a preprocessor from persisted state.
func FromState(st State, logger *slog.Logger) (*Preprocessor, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preprocessor state: %w", err)
	}
	p := New(logger)
	p.state = &st
	return p, nil
}

// Fitted reports whether the transform state is available.
func (p *Preprocessor) Fitted() bool { return p.state != nil }

// State returns the fitted state. Callers must treat it as read-only.
func (p *Preprocessor) State() (State, error) {
	if p.state == nil {
		return State{}, ErrNotFitted
	}
	return *p.state, nil
}

// Schema returns the fitted feature order.
func (p *Preprocessor) Schema() (schema.Schema, error) {
	if p.state == nil {
		return schema.Schema{}, ErrNotFitted
	}
	return p.state.Schema, nil
}

// FitTransform learns medians, vocabularies and scaling parameters from rows
// and returns the transformed matrix in schema order.
func (p *Preprocessor) FitTransform(rows []schema.Record, s schema.Schema) ([][]float64, error) {
	if p.state != nil {
		return nil, ErrAlreadyFitted
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if s.Len() == 0 {
		return nil, schema.ErrEmptySchema
	}

	st := State{
		Schema:      s,
		Numeric:     make(map[string]NumericStats),
		Categorical: make(map[string]Vocabulary),
	}

	for _, name := range s.Names() {
		if detectKind(rows, name) == schema.KindCategorical {
			st.Categorical[name] = fitVocabulary(rows, name)
			continue
		}
		st.Numeric[name] = fitNumeric(rows, name)
	}

	p.state = &st
	p.logger.Debug("preprocessor fitted",
		"rows", len(rows),
		"numeric", len(st.Numeric),
		"categorical", len(st.Categorical))

	out, _ := p.transform(rows)
	return out, nil
}

// Transform encodes rows with the fitted state. Unknown categories and
// missing values are replaced by defaults and reported as warnings.
func (p *Preprocessor) Transform(rows []schema.Record) ([][]float64, []Warning, error) {
	if p.state == nil {
		return nil, nil, ErrNotFitted
	}
	out, warnings := p.transform(rows)
	for _, w := range warnings {
		p.logger.Debug("transform default substituted",
			"kind", string(w.Kind),
			"row", w.Row,
			"feature", w.Feature,
			"value", w.Value)
	}
	return out, warnings, nil
}

func (p *Preprocessor) transform(rows []schema.Record) ([][]float64, []Warning) {
	st := p.state
	names := st.Schema.Names()
	out := make([][]float64, len(rows))
	var warnings []Warning

	for i, rec := range rows {
		row := make([]float64, len(names))
		for j, name := range names {
			raw := rec.Get(name)

			if vocab, ok := st.Categorical[name]; ok {
				if raw.IsMissing() {
					warnings = append(warnings, Warning{Kind: MissingFeature, Row: i, Feature: name})
					row[j] = UnknownCode
					continue
				}
				code, known := LookupOrDefault(vocab, raw.String(), UnknownCode)
				if !known {
					warnings = append(warnings, Warning{Kind: UnknownCategory, Row: i, Feature: name, Value: raw.String()})
				}
				row[j] = float64(code)
				continue
			}

			ns := st.Numeric[name]
			v, ok := raw.Float()
			if !ok {
				warnings = append(warnings, Warning{Kind: MissingFeature, Row: i, Feature: name, Value: raw.String()})
				v = ns.Median
			}
			row[j] = (v - ns.Mean) / ns.Std
		}
		out[i] = row
	}
	return out, warnings
}

// detectKind uses the catalog declaration, falling back to categorical when
// any observed value is non-numeric text.
func detectKind(rows []schema.Record, name string) schema.FeatureKind {
	if k := schema.DeclaredKind(name); k != schema.KindAuto {
		return k
	}
	for _, r := range rows {
		v := r.Get(name)
		if v.Kind() != schema.KindText {
			continue
		}
		if _, ok := v.Float(); !ok {
			return schema.KindCategorical
		}
	}
	return schema.KindNumeric
}

func fitVocabulary(rows []schema.Record, name string) Vocabulary {
	seen := make(map[string]struct{})
	for _, r := range rows {
		v := r.Get(name)
		if v.IsMissing() {
			continue
		}
		seen[v.String()] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	vocab := make(Vocabulary, len(classes))
	for code, c := range classes {
		vocab[c] = code
	}
	return vocab
}

func fitNumeric(rows []schema.Record, name string) NumericStats {
	observed := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Get(name).Float(); ok {
			observed = append(observed, v)
		}
	}
	med := median(observed)

	col := make([]float64, len(rows))
	for i, r := range rows {
		v, ok := r.Get(name).Float()
		if !ok {
			v = med
		}
		col[i] = v
	}

	mean, std := stat.PopMeanStdDev(col, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return NumericStats{Median: med, Mean: mean, Std: std}
}

// median of xs, averaging the two middle values for even lengths; 0 when empty.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

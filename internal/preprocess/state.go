package preprocess

import (
	"fmt"

	"github.com/fractal-lba/scorelens/internal/schema"
)

// NumericStats holds the fitted imputation and scaling parameters of one
// numeric feature.
type NumericStats struct {
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Vocabulary maps a stringified category to its integer code.
type Vocabulary map[string]int

// State is the fitted transform state. It is produced once by FitTransform
// and is read-only afterwards; it round-trips through JSON exactly.
type State struct {
	Schema      schema.Schema           `json:"schema"`
	Numeric     map[string]NumericStats `json:"numeric"`
	Categorical map[string]Vocabulary   `json:"categorical"`
}

// Validate checks that every schema feature has exactly one encoding.
func (s State) Validate() error {
	if s.Schema.Len() == 0 {
		return schema.ErrEmptySchema
	}
	for _, name := range s.Schema.Names() {
		_, num := s.Numeric[name]
		_, cat := s.Categorical[name]
		switch {
		case num && cat:
			return fmt.Errorf("feature %q is both numeric and categorical", name)
		case !num && !cat:
			return fmt.Errorf("feature %q has no fitted encoding", name)
		}
	}
	return nil
}

// KindOf reports how name is encoded.
func (s State) KindOf(name string) schema.FeatureKind {
	if _, ok := s.Categorical[name]; ok {
		return schema.KindCategorical
	}
	if _, ok := s.Numeric[name]; ok {
		return schema.KindNumeric
	}
	return schema.KindAuto
}

// LookupOrDefault returns the code for key, or def when the vocabulary does
// not contain it. The boolean reports whether key was known.
func LookupOrDefault(v Vocabulary, key string, def int) (int, bool) {
	code, ok := v[key]
	if !ok {
		return def, false
	}
	return code, true
}

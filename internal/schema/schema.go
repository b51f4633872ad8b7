// Package schema defines raw financial records, the closed catalog of
// recognized features and the ordered feature schema fixed at fit time.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptySchema is returned when a schema has no features.
	ErrEmptySchema = errors.New("feature schema is empty")

	// ErrUnknownFeature is returned for names outside the catalog.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrDuplicateFeature is returned when a name appears twice.
	ErrDuplicateFeature = errors.New("duplicate feature")
)

// Schema is the ordered list of feature names used for every transform,
// prediction and attribution. It is immutable once built.
type Schema struct {
	names []string
	index map[string]int
}

// New validates names against the catalog and fixes their order.
func New(names []string) (Schema, error) {
	if len(names) == 0 {
		return Schema{}, ErrEmptySchema
	}

	s := Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if !IsFeature(name) {
			return Schema{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		if _, dup := s.index[name]; dup {
			return Schema{}, fmt.Errorf("%w: %q", ErrDuplicateFeature, name)
		}
		s.names[i] = name
		s.index[name] = i
	}
	return s, nil
}

// Len returns the number of features.
func (s Schema) Len() int { return len(s.names) }

// Name returns the feature at position i.
func (s Schema) Name(i int) string { return s.names[i] }

// Names returns a copy of the ordered feature names.
func (s Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Index returns the position of name.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.names)
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	built, err := New(names)
	if err != nil {
		return err
	}
	*s = built
	return nil
}

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies what a raw feature value holds.
type ValueKind uint8

const (
	KindMissing ValueKind = iota
	KindNumber
	KindText
)

// Value is a raw, pre-encoding feature value: a number, a string, or absent.
// The zero Value is Missing.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

// Missing is the absent value.
var Missing = Value{}

// Num wraps a number. NaN is treated as absent.
func Num(v float64) Value {
	if math.IsNaN(v) {
		return Missing
	}
	return Value{kind: KindNumber, num: v}
}

// Text wraps a string value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the numeric reading of v. Text values are parsed; anything
// that cannot be read as a finite number reports false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders v the way categorical vocabularies key it. Integral numbers
// carry no decimal point, so 1 and "1" share a vocabulary entry.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	default:
		return ""
	}
}

// MarshalJSON emits numbers as JSON numbers, text as strings and Missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts numbers, strings, booleans (as 1/0) and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Missing
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		if b {
			*v = Num(1)
		} else {
			*v = Num(0)
		}
	case '{', '[':
		return fmt.Errorf("feature value must be a scalar, got %s", data)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Num(f)
	}
	return nil
}

// Record is one raw financial profile keyed by feature name.
type Record map[string]Value

// Get returns the value for name, or Missing when the record lacks it.
func (r Record) Get(name string) Value {
	if r == nil {
		return Missing
	}
	return r[name]
}

// UnmarshalJSON decodes a JSON object and keeps only catalog features.
// Unrecognized keys are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Record, len(raw))
	for name, msg := range raw {
		if !IsFeature(name) {
			continue
		}
		var val Value
		if err := val.UnmarshalJSON(msg); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out[name] = val
	}
	*r = out
	return nil
}

// FromMap converts loosely typed input (e.g. decoded JSON) into a Record,
// applying the same ignore-unrecognized policy as UnmarshalJSON.
func FromMap(m map[string]any) Record {
	out := make(Record, len(m))
	for name, raw := range m {
		if !IsFeature(name) {
			continue
		}
		switch x := raw.(type) {
		case nil:
			out[name] = Missing
		case float64:
			out[name] = Num(x)
		case float32:
			out[name] = Num(float64(x))
		case int:
			out[name] = Num(float64(x))
		case int64:
			out[name] = Num(float64(x))
		case json.Number:
			if f, err := x.Float64(); err == nil {
				out[name] = Num(f)
			} else {
				out[name] = Text(x.String())
			}
		case bool:
			if x {
				out[name] = Num(1)
			} else {
				out[name] = Num(0)
			}
		case string:
			out[name] = Text(x)
		case Value:
			out[name] = x
		default:
			out[name] = Text(fmt.Sprint(x))
		}
	}
	return out
}

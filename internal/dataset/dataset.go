// Package dataset reads credit profile CSV files and infers column types.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fractal-lba/scorelens/internal/schema"
)

var (
	// ErrNoHeader is returned for an empty file.
	ErrNoHeader = errors.New("dataset: missing header row")

	// ErrDuplicateColumn is returned when the header repeats a name.
	ErrDuplicateColumn = errors.New("dataset: duplicate column")
)

// ColumnType is the inferred role of a column.
type ColumnType string

const (
	TypeID          ColumnType = "id"
	TypeNumeric     ColumnType = "numeric"
	TypeCategorical ColumnType = "categorical"
	TypeBinary      ColumnType = "binary"
	TypeRatio       ColumnType = "ratio"
)

// binaryMaxLevels is the most distinct text values a binary column may hold.
const binaryMaxLevels = 3

// excluded columns never become model inputs.
var excluded = map[string]bool{
	schema.IDColumn:      true,
	schema.LabelColumn:   true,
	schema.DefaultColumn: true,
}

// Dataset is a parsed CSV file.
type Dataset struct {
	Columns []string
	Rows    []schema.Record
}

// LoadFile reads the CSV at path.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a CSV with a header row. Empty cells and NA markers become
// missing values, cells that parse as numbers become numbers and anything
// else is kept as text.
func Load(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		seen[name] = true
		header[i] = name
	}

	ds := &Dataset{Columns: header}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		rec := make(schema.Record, len(header))
		for i, name := range header {
			rec[name] = parseCell(row[i])
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds, nil
}

func parseCell(s string) schema.Value {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return schema.Missing
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return schema.Num(f)
	}
	return schema.Text(s)
}

// InferTypes classifies every column. ID columns are recognized by name,
// text columns are binary or categorical by level count, numeric columns
// with an R_ prefix are ratios.
func (d *Dataset) InferTypes() map[ColumnType][]string {
	types := make(map[ColumnType][]string)
	for _, col := range d.Columns {
		t := d.columnType(col)
		types[t] = append(types[t], col)
	}
	return types
}

func (d *Dataset) columnType(col string) ColumnType {
	if col == schema.IDColumn || strings.Contains(strings.ToUpper(col), "ID") {
		return TypeID
	}

	levels := make(map[string]struct{})
	text := false
	for _, r := range d.Rows {
		v := r.Get(col)
		if v.Kind() == schema.KindText {
			text = true
		}
		if !v.IsMissing() {
			levels[v.String()] = struct{}{}
		}
	}
	switch {
	case text && len(levels) <= binaryMaxLevels:
		return TypeBinary
	case text:
		return TypeCategorical
	case strings.HasPrefix(col, "R_"):
		return TypeRatio
	}
	return TypeNumeric
}

// ModelingFeatures returns the columns usable as model inputs: every
// recognized feature except the identifier, the label and the default flag.
// Unrecognized columns are returned separately.
func (d *Dataset) ModelingFeatures() (features, skipped []string) {
	for _, col := range d.Columns {
		switch {
		case excluded[col]:
		case schema.IsFeature(col):
			features = append(features, col)
		default:
			skipped = append(skipped, col)
		}
	}
	return features, skipped
}

// Labels returns the CREDIT_SCORE column when every row has one.
func (d *Dataset) Labels() ([]float64, bool) {
	labels := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		f, ok := r.Get(schema.LabelColumn).Float()
		if !ok {
			return nil, false
		}
		labels[i] = f
	}
	return labels, len(labels) > 0
}

// Summary describes the dataset for logs and the CLI.
type Summary struct {
	Records int                     `json:"total_records" yaml:"total_records"`
	Columns int                     `json:"total_features" yaml:"total_features"`
	Missing map[string]int          `json:"missing_values" yaml:"missing_values"`
	Types   map[ColumnType][]string `json:"feature_types" yaml:"feature_types"`
	Numeric map[string]ColumnStats  `json:"numeric_stats" yaml:"numeric_stats"`
}

// ColumnStats are descriptive statistics over the present values of a
// numeric column. Std is the sample standard deviation, zero below two values.
type ColumnStats struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

func (d *Dataset) columnStats(col string) (ColumnStats, bool) {
	var xs []float64
	for _, r := range d.Rows {
		if f, ok := r.Get(col).Float(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return ColumnStats{}, false
	}
	cs := ColumnStats{Count: len(xs), Min: floats.Min(xs), Max: floats.Max(xs)}
	if len(xs) == 1 {
		cs.Mean = xs[0]
		return cs, true
	}
	cs.Mean, cs.Std = stat.MeanStdDev(xs, nil)
	return cs, true
}

// Summarize counts records, columns and missing values per column and
// describes every numeric and ratio column.
func (d *Dataset) Summarize() Summary {
	missing := make(map[string]int)
	for _, col := range d.Columns {
		n := 0
		for _, r := range d.Rows {
			if r.Get(col).IsMissing() {
				n++
			}
		}
		if n > 0 {
			missing[col] = n
		}
	}
	types := d.InferTypes()
	for _, cols := range types {
		sort.Strings(cols)
	}
	numeric := make(map[string]ColumnStats)
	for _, t := range []ColumnType{TypeNumeric, TypeRatio} {
		for _, col := range types[t] {
			if cs, ok := d.columnStats(col); ok {
				numeric[col] = cs
			}
		}
	}
	return Summary{
		Records: len(d.Rows),
		Columns: len(d.Columns),
		Missing: missing,
		Types:   types,
		Numeric: numeric,
	}
}

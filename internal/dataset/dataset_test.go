package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/schema"
)

const sample = `CUST_ID,INCOME,SAVINGS,DEBT,R_DEBT_INCOME,CAT_GAMBLING,DEFAULT,CREDIT_SCORE,NOTES
C01,50000,12000,8000,0.16,No,0,720,a
C02,32000,,15000,0.47,High,1,580,b
C03,NA,4000,2000,,Low,0,640,c
C04,81000,30000,0,0,No,0,790,d
C05,45000,9000,12000,0.27,No,0,700,e
`

func TestLoad(t *testing.T) {
	ds, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Len(t, ds.Columns, 9)
	require.Len(t, ds.Rows, 5)

	assert.Equal(t, schema.Text("C01"), ds.Rows[0].Get(schema.IDColumn))
	assert.Equal(t, schema.Num(50000), ds.Rows[0].Get(schema.Income))
	assert.True(t, ds.Rows[1].Get(schema.Savings).IsMissing())
	assert.True(t, ds.Rows[2].Get(schema.Income).IsMissing())
	assert.Equal(t, schema.Text("High"), ds.Rows[1].Get("CAT_GAMBLING"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Load(strings.NewReader("INCOME,INCOME\n1,2\n"))
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = Load(strings.NewReader("INCOME,DEBT\n1,2\n3\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credit.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 5)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestInferTypes(t *testing.T) {
	ds, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	types := ds.InferTypes()
	assert.Equal(t, []string{"CUST_ID"}, types[TypeID])
	assert.Equal(t, []string{"CAT_GAMBLING"}, types[TypeBinary])
	assert.Equal(t, []string{"NOTES"}, types[TypeCategorical])
	assert.Equal(t, []string{"R_DEBT_INCOME"}, types[TypeRatio])
	assert.ElementsMatch(t, []string{"INCOME", "SAVINGS", "DEBT", "DEFAULT", "CREDIT_SCORE"}, types[TypeNumeric])
}

func TestModelingFeatures(t *testing.T) {
	ds, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	features, skipped := ds.ModelingFeatures()
	assert.Equal(t, []string{"INCOME", "SAVINGS", "DEBT", "R_DEBT_INCOME", "CAT_GAMBLING"}, features)
	assert.Equal(t, []string{"NOTES"}, skipped)
}

func TestLabelsAndSummary(t *testing.T) {
	ds, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	labels, ok := ds.Labels()
	require.True(t, ok)
	assert.Equal(t, []float64{720, 580, 640, 790, 700}, labels)

	s := ds.Summarize()
	assert.Equal(t, 5, s.Records)
	assert.Equal(t, 9, s.Columns)
	assert.Equal(t, map[string]int{"INCOME": 1, "SAVINGS": 1, "R_DEBT_INCOME": 1}, s.Missing)

	noLabels, err := Load(strings.NewReader("INCOME\n1\n"))
	require.NoError(t, err)
	_, ok = noLabels.Labels()
	assert.False(t, ok)
}

func TestSummaryNumericStats(t *testing.T) {
	ds, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	s := ds.Summarize()
	income, ok := s.Numeric["INCOME"]
	require.True(t, ok)
	assert.Equal(t, 4, income.Count)
	assert.InDelta(t, 52000, income.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(1.294e9/3), income.Std, 1e-6)
	assert.Equal(t, 32000.0, income.Min)
	assert.Equal(t, 81000.0, income.Max)

	ratio, ok := s.Numeric["R_DEBT_INCOME"]
	require.True(t, ok)
	assert.Equal(t, 4, ratio.Count)
	assert.Equal(t, 0.0, ratio.Min)
	assert.Equal(t, 0.47, ratio.Max)

	assert.NotContains(t, s.Numeric, "CUST_ID")
	assert.NotContains(t, s.Numeric, "CAT_GAMBLING")

	single, err := Load(strings.NewReader("INCOME\n7\n"))
	require.NoError(t, err)
	one := single.Summarize().Numeric["INCOME"]
	assert.Equal(t, ColumnStats{Count: 1, Mean: 7, Min: 7, Max: 7}, one)
}

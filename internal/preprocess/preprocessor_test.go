package preprocess

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/schema"
)

func trainingRows() []schema.Record {
	return []schema.Record{
		{schema.Income: schema.Num(10), schema.Debt: schema.Num(4), "CAT_GAMBLING": schema.Text("No")},
		{schema.Income: schema.Num(20), schema.Debt: schema.Missing, "CAT_GAMBLING": schema.Text("High")},
		{schema.Income: schema.Num(30), schema.Debt: schema.Num(8), "CAT_GAMBLING": schema.Text("Low")},
		{schema.Income: schema.Num(40), schema.Debt: schema.Num(6), "CAT_GAMBLING": schema.Text("No")},
	}
}

func fittedPreprocessor(t *testing.T) (*Preprocessor, [][]float64) {
	t.Helper()
	s, err := schema.New([]string{schema.Income, schema.Debt, "CAT_GAMBLING"})
	require.NoError(t, err)

	p := New(nil)
	out, err := p.FitTransform(trainingRows(), s)
	require.NoError(t, err)
	return p, out
}

func TestFitTransformLearnsState(t *testing.T) {
	p, out := fittedPreprocessor(t)
	require.Len(t, out, 4)

	st, err := p.State()
	require.NoError(t, err)

	income := st.Numeric[schema.Income]
	assert.Equal(t, 25.0, income.Median)
	assert.Equal(t, 25.0, income.Mean)
	assert.InDelta(t, 11.180339887, income.Std, 1e-9)

	// DEBT median over observed {4,6,8} imputes the missing row.
	debt := st.Numeric[schema.Debt]
	assert.Equal(t, 6.0, debt.Median)
	assert.Equal(t, 6.0, debt.Mean)

	assert.Equal(t, Vocabulary{"High": 0, "Low": 1, "No": 2}, st.Categorical["CAT_GAMBLING"])

	// Standardized numeric columns are centred; categorical codes are raw.
	assert.InDelta(t, -1.341640786, out[0][0], 1e-9)
	assert.Equal(t, 0.0, out[1][1])
	assert.Equal(t, 2.0, out[0][2])
	assert.Equal(t, 0.0, out[1][2])
}

func TestTransformIsIdempotent(t *testing.T) {
	p, fitted := fittedPreprocessor(t)

	first, _, err := p.Transform(trainingRows())
	require.NoError(t, err)
	second, _, err := p.Transform(trainingRows())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, fitted, first)
}

func TestTransformBeforeFit(t *testing.T) {
	p := New(nil)
	_, _, err := p.Transform(trainingRows())
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = p.State()
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFitTwiceRejected(t *testing.T) {
	p, _ := fittedPreprocessor(t)
	s, err := schema.New([]string{schema.Income})
	require.NoError(t, err)

	_, err = p.FitTransform(trainingRows(), s)
	assert.ErrorIs(t, err, ErrAlreadyFitted)
}

func TestFitRejectsEmptyBatch(t *testing.T) {
	s, err := schema.New([]string{schema.Income})
	require.NoError(t, err)

	_, err = New(nil).FitTransform(nil, s)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestUnknownCategoryFallsBackToZero(t *testing.T) {
	p, _ := fittedPreprocessor(t)

	out, warnings, err := p.Transform([]schema.Record{
		{schema.Income: schema.Num(25), schema.Debt: schema.Num(6), "CAT_GAMBLING": schema.Text("Compulsive")},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, 0.0, out[0][2])
	require.Len(t, warnings, 1)
	assert.Equal(t, UnknownCategory, warnings[0].Kind)
	assert.Equal(t, "CAT_GAMBLING", warnings[0].Feature)
	assert.Equal(t, "Compulsive", warnings[0].Value)
}

func TestMissingFeaturesUseDefaults(t *testing.T) {
	p, _ := fittedPreprocessor(t)

	out, warnings, err := p.Transform([]schema.Record{{}})
	require.NoError(t, err)

	// Median equals mean for both numeric columns, so imputed values centre at zero.
	assert.Equal(t, []float64{0, 0, 0}, out[0])
	assert.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, MissingFeature, w.Kind)
	}
}

func TestUnparsableNumericIsImputed(t *testing.T) {
	p, _ := fittedPreprocessor(t)

	out, warnings, err := p.Transform([]schema.Record{
		{schema.Income: schema.Text("lots"), schema.Debt: schema.Text("6"), "CAT_GAMBLING": schema.Text("Low")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0][0])
	assert.Equal(t, 0.0, out[0][1])
	assert.Equal(t, 1.0, out[0][2])
	require.Len(t, warnings, 1)
	assert.Equal(t, schema.Income, warnings[0].Feature)
}

func TestDetectsCategoricalFromText(t *testing.T) {
	s, err := schema.New([]string{schema.DefaultColumn, "CAT_DEBT"})
	require.NoError(t, err)

	rows := []schema.Record{
		{schema.DefaultColumn: schema.Text("yes"), "CAT_DEBT": schema.Num(1)},
		{schema.DefaultColumn: schema.Text("no"), "CAT_DEBT": schema.Num(0)},
	}
	p := New(nil)
	_, err = p.FitTransform(rows, s)
	require.NoError(t, err)

	st, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, schema.KindCategorical, st.KindOf(schema.DefaultColumn))
	assert.Equal(t, schema.KindNumeric, st.KindOf("CAT_DEBT"))
}

func TestConstantColumnKeepsUnitScale(t *testing.T) {
	s, err := schema.New([]string{schema.Savings})
	require.NoError(t, err)

	rows := []schema.Record{
		{schema.Savings: schema.Num(5)},
		{schema.Savings: schema.Num(5)},
	}
	p := New(nil)
	out, err := p.FitTransform(rows, s)
	require.NoError(t, err)

	st, _ := p.State()
	assert.Equal(t, 1.0, st.Numeric[schema.Savings].Std)
	assert.Equal(t, [][]float64{{0}, {0}}, out)
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	p, _ := fittedPreprocessor(t)
	st, err := p.State()
	require.NoError(t, err)

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var restored State
	require.NoError(t, json.Unmarshal(data, &restored))

	q, err := FromState(restored, nil)
	require.NoError(t, err)

	probe := []schema.Record{
		{schema.Income: schema.Num(17.3), schema.Debt: schema.Num(2.2), "CAT_GAMBLING": schema.Text("Low")},
		{schema.Income: schema.Missing, "CAT_GAMBLING": schema.Text("Never")},
	}
	want, _, err := p.Transform(probe)
	require.NoError(t, err)
	got, _, err := q.Transform(probe)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromStateRejectsIncompleteState(t *testing.T) {
	s, err := schema.New([]string{schema.Income})
	require.NoError(t, err)

	_, err = FromState(State{Schema: s}, nil)
	assert.Error(t, err)
}

func TestLookupOrDefault(t *testing.T) {
	v := Vocabulary{"a": 3}

	code, ok := LookupOrDefault(v, "a", 0)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	code, ok = LookupOrDefault(v, "b", 0)
	assert.False(t, ok)
	assert.Equal(t, 0, code)

	code, ok = LookupOrDefault(nil, "a", 7)
	assert.False(t, ok)
	assert.Equal(t, 7, code)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

package explain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/schema"
)

var wideFeatures = []string{
	schema.Income, schema.Savings, schema.Debt, schema.DebtIncome, schema.SavingsIncome,
	"R_DEBT_SAVINGS", schema.Expenditure12, "T_EXPENDITURE_6", schema.DefaultColumn,
	"CAT_CREDIT_CARD", "CAT_MORTGAGE", "CAT_SAVINGS_ACCOUNT",
}

var wideAttributions = []float64{30, -2, -25, -20, 5, -1, -10, 0.5, -40, 3, 0, -4}

func wideInput(t *testing.T) Input {
	t.Helper()
	s, err := schema.New(wideFeatures)
	require.NoError(t, err)
	base := 655.25
	return Input{
		Score:        640,
		Attributions: wideAttributions,
		Schema:       s,
		Record: schema.Record{
			schema.Income:     schema.Num(52000),
			schema.Debt:       schema.Num(31000),
			schema.DebtIncome: schema.Num(3.14159),
		},
		Baseline: &base,
	}
}

func features(fs []Factor) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Feature
	}
	return out
}

func TestComposeRanksAndSplitsFactors(t *testing.T) {
	res, err := Compose(wideInput(t))
	require.NoError(t, err)

	assert.Equal(t, 640, res.Score)
	assert.Equal(t, "Poor", res.Category)
	require.NotNil(t, res.Baseline)
	assert.Equal(t, 655.25, *res.Baseline)

	assert.Equal(t, []string{schema.Income, schema.SavingsIncome, "CAT_CREDIT_CARD"}, features(res.PositiveFactors))
	assert.Equal(t, []string{
		schema.DefaultColumn, schema.Debt, schema.DebtIncome, schema.Expenditure12, "CAT_SAVINGS_ACCOUNT",
	}, features(res.NegativeFactors))

	assert.Equal(t, "Income Level", res.PositiveFactors[0].Description)
	assert.Equal(t, schema.Num(52000), res.PositiveFactors[0].Value)
	assert.True(t, res.NegativeFactors[3].Value.IsMissing())
}

func TestComposeSumsEveryFeature(t *testing.T) {
	res, err := Compose(wideInput(t))
	require.NoError(t, err)

	// Totals include features outside the ranked top ten.
	assert.InDelta(t, 38.5, res.TotalPositiveImpact, 1e-12)
	assert.InDelta(t, -102.0, res.TotalNegativeImpact, 1e-12)

	require.Len(t, res.Features, len(wideFeatures))
	for i, f := range res.Features {
		assert.Equal(t, wideFeatures[i], f.Feature)
		assert.Equal(t, wideAttributions[i], f.Attribution)
	}
}

func TestComposeRecommendations(t *testing.T) {
	res, err := Compose(wideInput(t))
	require.NoError(t, err)

	require.Len(t, res.Recommendations, 5)
	assert.Equal(t, Recommendation{Critical, "Address default history",
		"Previous defaults significantly impact your credit score", Critical}, res.Recommendations[0])
	assert.Equal(t, "Reduce total debt", res.Recommendations[1].Action)
	assert.Equal(t, "High debt (31000) is negatively impacting your score", res.Recommendations[1].Reason)
	assert.Equal(t, "Lower debt-to-income ratio", res.Recommendations[2].Action)
	assert.Equal(t, "Your debt-to-income ratio (3.14) is too high", res.Recommendations[2].Reason)
	assert.Equal(t, "Reduce unnecessary spending", res.Recommendations[3].Action)
	assert.Equal(t, "Increase savings", res.Recommendations[4].Action)
	assert.Equal(t, "Low savings (N/A) affects your creditworthiness", res.Recommendations[4].Reason)
}

func TestComposeNarrative(t *testing.T) {
	res, err := Compose(wideInput(t))
	require.NoError(t, err)

	want := "Your credit score is 640, which falls in the 'Poor' category.\n\n" +
		"Factors positively impacting your score:\n" +
		"1. Income Level contributes +30.0 points\n" +
		"2. Savings-to-Income Ratio contributes +5.0 points\n" +
		"3. Credit Card Usage contributes +3.0 points\n\n" +
		"Factors negatively impacting your score:\n" +
		"1. Default History reduces your score by 40.0 points\n" +
		"2. Total Debt reduces your score by 25.0 points\n" +
		"3. Debt-to-Income Ratio reduces your score by 20.0 points\n\n" +
		"Recommendations to improve your score:\n" +
		"1. Address default history - Previous defaults significantly impact your credit score\n" +
		"2. Reduce total debt - High debt (31000) is negatively impacting your score\n" +
		"3. Lower debt-to-income ratio - Your debt-to-income ratio (3.14) is too high\n"
	assert.Equal(t, want, res.Narrative)
}

func TestZeroAttributionCountsAsNegative(t *testing.T) {
	s, err := schema.New([]string{schema.Income, "T_TRAVEL_12"})
	require.NoError(t, err)

	res, err := Compose(Input{Score: 720, Attributions: []float64{0, 0}, Schema: s})
	require.NoError(t, err)

	assert.Empty(t, res.PositiveFactors)
	assert.Len(t, res.NegativeFactors, 2)
	assert.Equal(t, []Recommendation{fallback}, res.Recommendations)
	assert.Equal(t, "Good", res.Category)
	assert.Nil(t, res.Baseline)
	assert.NotContains(t, res.Narrative, "positively")
	assert.True(t, strings.HasSuffix(res.Narrative,
		"1. Maintain consistent payment history - Regular payments improve credit score over time\n"))
}

func TestOnlyPositiveFactors(t *testing.T) {
	s, err := schema.New([]string{schema.Income, schema.Savings})
	require.NoError(t, err)

	res, err := Compose(Input{Score: 800, Attributions: []float64{12, 4}, Schema: s})
	require.NoError(t, err)

	assert.Empty(t, res.NegativeFactors)
	assert.Equal(t, 16.0, res.TotalPositiveImpact)
	assert.Equal(t, 0.0, res.TotalNegativeImpact)
	assert.Equal(t, []Recommendation{fallback}, res.Recommendations)
	assert.NotContains(t, res.Narrative, "negatively")
}

func TestComposeLengthMismatch(t *testing.T) {
	s, err := schema.New([]string{schema.Income})
	require.NoError(t, err)

	_, err = Compose(Input{Score: 600, Attributions: []float64{1, 2}, Schema: s})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestRecommendPrecedence(t *testing.T) {
	recs := Recommend([]Factor{
		{Feature: "R_DEBT_SAVINGS"},
		{Feature: schema.SavingsIncome},
		{Feature: "T_EXPENDITURE_6"},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, "Reduce total debt", recs[0].Action)
	assert.Equal(t, "Reduce unnecessary spending", recs[1].Action)

	recs = Recommend([]Factor{{Feature: schema.Income}})
	assert.Equal(t, []Recommendation{fallback}, recs)
}

func TestRecommendCapsAtFive(t *testing.T) {
	var fs []Factor
	for i := 0; i < 8; i++ {
		fs = append(fs, Factor{Feature: schema.Debt})
	}
	assert.Len(t, Recommend(fs), MaxRecommendations)
}

func TestRankBreaksTiesByPosition(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, rank([]float64{-3, 3, 5}, 10))
	assert.Equal(t, []int{2}, rank([]float64{-3, 3, 5}, 1))
}

func TestResultJSON(t *testing.T) {
	s, err := schema.New([]string{schema.Income})
	require.NoError(t, err)
	res, err := Compose(Input{Score: 610, Attributions: []float64{-3}, Schema: s,
		Record: schema.Record{schema.Income: schema.Text("unknown")}})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["base_score"])
	assert.Equal(t, float64(610), decoded["predicted_score"])
	assert.Equal(t, []any{}, decoded["positive_factors"])
	all := decoded["all_features"].([]any)
	assert.Equal(t, "unknown", all[0].(map[string]any)["value"])
}

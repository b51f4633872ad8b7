package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/schema"
)

func profiles(n int) []schema.Record {
	rows := make([]schema.Record, n)
	for i := range rows {
		f := float64(i)
		rows[i] = schema.Record{
			schema.Income:        schema.Num(18000 + 900*f),
			schema.Savings:       schema.Num(math.Mod(f*4100, 60000)),
			schema.Debt:          schema.Num(math.Mod(f*6700, 45000)),
			schema.DebtIncome:    schema.Num(math.Mod(f*0.7, 6)),
			schema.Expenditure12: schema.Num(12000 + math.Mod(f*1300, 20000)),
			"CAT_GAMBLING":       schema.Text([]string{"No", "Low", "High"}[i%3]),
		}
	}
	return rows
}

var features = []string{schema.Income, schema.Savings, schema.Debt, schema.DebtIncome, schema.Expenditure12, "CAT_GAMBLING"}

func fastPipeline() *Pipeline {
	cfg := DefaultConfig()
	cfg.Model.Ensemble.NEstimators = 20
	cfg.BackgroundSize = 25
	return New(cfg, nil)
}

func TestRunProducesBundle(t *testing.T) {
	rows := profiles(50)
	res, err := fastPipeline().Run(context.Background(), rows, features, nil)
	require.NoError(t, err)

	b := res.Bundle
	require.NotNil(t, b)
	meta := b.Metadata()
	assert.Equal(t, features, meta.Features)
	assert.Equal(t, 50, meta.Rows)
	assert.Equal(t, HashDataset(rows, features), meta.DatasetHash)
	assert.NotEmpty(t, meta.Version)
	assert.Equal(t, res.Metrics, meta.Metrics)
	assert.Len(t, b.Engine().Background(), 25)

	require.Len(t, res.Importance, len(features))
	for i := 1; i < len(res.Importance); i++ {
		assert.GreaterOrEqual(t, res.Importance[i-1].Importance, res.Importance[i].Importance)
	}
}

func TestBundleAttributionsAreAdditive(t *testing.T) {
	rows := profiles(40)
	res, err := fastPipeline().Run(context.Background(), rows, features, nil)
	require.NoError(t, err)

	b := res.Bundle
	scored, err := b.Model().Score(rows[:10])
	require.NoError(t, err)
	phis, err := b.Engine().ExplainBatch(scored.Features)
	require.NoError(t, err)

	for i, phi := range phis {
		sum := b.Engine().Baseline()
		for _, v := range phi {
			sum += v
		}
		assert.InDelta(t, scored.Raw[i], sum, 1e-3, "row %d", i)
	}
}

func TestRunPropagatesTrainingErrors(t *testing.T) {
	_, err := fastPipeline().Run(context.Background(), profiles(1), features, nil)
	assert.Error(t, err)
}

func TestHashDataset(t *testing.T) {
	rows := profiles(5)
	h := HashDataset(rows, features)
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashDataset(profiles(5), features))

	rows[2][schema.Income] = schema.Num(1)
	assert.NotEqual(t, h, HashDataset(rows, features))
	assert.NotEqual(t, h, HashDataset(profiles(5), features[:2]))
}

// Package trainingtest provides small trained bundles for tests in other
// packages.
package trainingtest

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/schema"
	"github.com/fractal-lba/scorelens/internal/training"
)

// Features are the columns Profiles fills.
var Features = []string{
	schema.Income, schema.Savings, schema.Debt, schema.DebtIncome,
	schema.Expenditure12, "CAT_GAMBLING",
}

// Profiles returns n deterministic, varied financial profiles.
func Profiles(n int) []schema.Record {
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

var (
	once   sync.Once
	cached *training.Result
	err    error
)

// Result trains a small bundle on 60 profiles once per test binary.
func Result(tb testing.TB) *training.Result {
	tb.Helper()
	once.Do(func() {
		cfg := training.DefaultConfig()
		cfg.Model.Ensemble.NEstimators = 20
		cfg.BackgroundSize = 20
		cached, err = training.New(cfg, nil).Run(context.Background(), Profiles(60), Features, nil)
	})
	if err != nil {
		tb.Fatalf("train bundle: %v", err)
	}
	return cached
}

// Bundle is Result(tb).Bundle.
func Bundle(tb testing.TB) *bundle.Bundle {
	tb.Helper()
	return Result(tb).Bundle
}

// Package target derives a synthetic credit score label from raw financial
// records when no ground-truth score is available.
//
// Income, savings and debt are min-max normalized over the batch being
// scored, so the same record can receive a different label in a different
// batch. Labels are therefore only comparable within one training run.
package target

import (
	"math"

	"github.com/fractal-lba/scorelens/internal/schema"
)

const (
	Base     = 600.0
	MinScore = 300.0
	MaxScore = 900.0

	epsilon = 1e-10
)

// Driver weights, in score points.
const (
	incomeWeight           = 100.0
	savingsWeight          = 80.0
	debtWeight             = 100.0
	debtIncomeWeight       = 50.0
	savingsIncomeWeight    = 50.0
	defaultPenalty         = 150.0
	expenditureRatioWeight = 30.0

	debtIncomeCap       = 20.0
	savingsIncomeCap    = 10.0
	expenditureRatioCap = 2.0
)

type column struct {
	values  []float64
	present []bool
	min     float64
	max     float64
	any     bool
}

func readColumn(rows []schema.Record, name string) column {
	c := column{
		values:  make([]float64, len(rows)),
		present: make([]bool, len(rows)),
		min:     math.Inf(1),
		max:     math.Inf(-1),
	}
	for i, r := range rows {
		v, ok := r.Get(name).Float()
		if !ok {
			continue
		}
		c.values[i] = v
		c.present[i] = true
		c.any = true
		c.min = math.Min(c.min, v)
		c.max = math.Max(c.max, v)
	}
	return c
}

func (c column) normalized(i int) float64 {
	return (c.values[i] - c.min) / (c.max - c.min + epsilon)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Raw returns the unclamped synthetic score for every row. A driver only
// contributes when its column holds at least one value in the batch, and a
// row without a value for that driver skips the term.
func Raw(rows []schema.Record) []float64 {
	income := readColumn(rows, schema.Income)
	savings := readColumn(rows, schema.Savings)
	debt := readColumn(rows, schema.Debt)
	debtIncome := readColumn(rows, schema.DebtIncome)
	savingsIncome := readColumn(rows, schema.SavingsIncome)
	expenditure := readColumn(rows, schema.Expenditure12)

	hasDefault := false
	for _, r := range rows {
		if !r.Get(schema.DefaultColumn).IsMissing() {
			hasDefault = true
			break
		}
	}

	out := make([]float64, len(rows))
	for i, r := range rows {
		score := Base

		if income.any && income.present[i] {
			score += incomeWeight * income.normalized(i)
		}
		if savings.any && savings.present[i] {
			score += savingsWeight * savings.normalized(i)
		}
		if debt.any && debt.present[i] {
			score -= debtWeight * debt.normalized(i)
		}
		if debtIncome.any && debtIncome.present[i] {
			score -= debtIncomeWeight * clip(debtIncome.values[i], 0, debtIncomeCap) / debtIncomeCap
		}
		if savingsIncome.any && savingsIncome.present[i] {
			score += savingsIncomeWeight * clip(savingsIncome.values[i], 0, savingsIncomeCap) / savingsIncomeCap
		}
		if hasDefault && r.Get(schema.DefaultColumn).String() == "1" {
			score -= defaultPenalty
		}
		if expenditure.any && income.any && expenditure.present[i] && income.present[i] {
			ratio := expenditure.values[i] / (income.values[i] + 1)
			score -= expenditureRatioWeight * clip(ratio, 0, expenditureRatioCap) / expenditureRatioCap
		}

		out[i] = score
	}
	return out
}

// Build returns integer-valued labels clipped to [MinScore, MaxScore].
func Build(rows []schema.Record) []float64 {
	raw := Raw(rows)
	for i, v := range raw {
		raw[i] = math.Round(clip(v, MinScore, MaxScore))
	}
	return raw
}

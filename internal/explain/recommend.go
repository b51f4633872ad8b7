package explain

import (
	"fmt"
	"strings"

	"github.com/fractal-lba/scorelens/internal/schema"
)

// Priority ranks how urgently a recommendation should be acted on.
type Priority string

const (
	Critical Priority = "Critical"
	High     Priority = "High"
	Medium   Priority = "Medium"
)

// Recommendation is one actionable suggestion.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
	Impact   Priority `json:"impact"`
}

type rule struct {
	matches func(feature string) bool
	build   func(f Factor) Recommendation
}

// rules are tried in order; the first match wins for each factor.
var rules = []rule{
	{
		matches: func(n string) bool { return strings.Contains(n, "DEBT") && !strings.Contains(n, "INCOME") },
		build: func(f Factor) Recommendation {
			return Recommendation{High, "Reduce total debt",
				fmt.Sprintf("High debt (%s) is negatively impacting your score", formatValue(f.Value)), High}
		},
	},
	{
		matches: func(n string) bool { return strings.Contains(n, schema.DebtIncome) },
		build: func(f Factor) Recommendation {
			return Recommendation{High, "Lower debt-to-income ratio",
				fmt.Sprintf("Your debt-to-income ratio (%s) is too high", formatRatio(f.Value)), High}
		},
	},
	{
		matches: func(n string) bool { return strings.Contains(n, "SAVINGS") && !strings.Contains(n, "INCOME") },
		build: func(f Factor) Recommendation {
			return Recommendation{Medium, "Increase savings",
				fmt.Sprintf("Low savings (%s) affects your creditworthiness", formatValue(f.Value)), Medium}
		},
	},
	{
		matches: func(n string) bool { return strings.Contains(n, schema.DefaultColumn) },
		build: func(Factor) Recommendation {
			return Recommendation{Critical, "Address default history",
				"Previous defaults significantly impact your credit score", Critical}
		},
	},
	{
		matches: func(n string) bool { return strings.Contains(n, "EXPENDITURE") },
		build: func(Factor) Recommendation {
			return Recommendation{Medium, "Reduce unnecessary spending",
				"High expenditure relative to income affects your score", Medium}
		},
	},
}

var fallback = Recommendation{
	Priority: Medium,
	Action:   "Maintain consistent payment history",
	Reason:   "Regular payments improve credit score over time",
	Impact:   Medium,
}

// Recommend derives suggestions from the top negative factors. When no rule
// matches, a single generic recommendation is returned.
func Recommend(negative []Factor) []Recommendation {
	out := []Recommendation{}
	for _, f := range negative[:min(FactorsPerSide, len(negative))] {
		for _, r := range rules {
			if r.matches(f.Feature) {
				out = append(out, r.build(f))
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, fallback)
	}
	if len(out) > MaxRecommendations {
		out = out[:MaxRecommendations]
	}
	return out
}

func formatValue(v schema.Value) string {
	if v.IsMissing() {
		return "N/A"
	}
	return v.String()
}

func formatRatio(v schema.Value) string {
	if f, ok := v.Float(); ok {
		return fmt.Sprintf("%.2f", f)
	}
	return formatValue(v)
}

// Package explain turns an attribution vector into ranked factors,
// recommendations and a narrative for one prediction.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// ErrLengthMismatch is returned when attributions and schema differ in size.
var ErrLengthMismatch = errors.New("attribution length does not match schema")

const (
	// RankedFeatures is how many features by |attribution| are considered.
	RankedFeatures = 10
	// FactorsPerSide caps the positive and negative factor lists.
	FactorsPerSide = 5
	// MaxRecommendations caps the recommendation list.
	MaxRecommendations = 5
	// NarrativeItems caps each narrative section.
	NarrativeItems = 3
)

// Factor is one feature's contribution to a prediction.
type Factor struct {
	Feature     string       `json:"feature"`
	Description string       `json:"description"`
	Impact      float64      `json:"impact"`
	Value       schema.Value `json:"value"`
}

// FeatureAttribution is one entry of the full per-feature listing.
type FeatureAttribution struct {
	Feature     string       `json:"feature"`
	Description string       `json:"description"`
	Attribution float64      `json:"shap_value"`
	Value       schema.Value `json:"value"`
}

// Result is the structured explanation of one prediction.
type Result struct {
	Score               int                  `json:"predicted_score"`
	Category            string               `json:"category"`
	Baseline            *float64             `json:"base_score"`
	PositiveFactors     []Factor             `json:"positive_factors"`
	NegativeFactors     []Factor             `json:"negative_factors"`
	TotalPositiveImpact float64              `json:"total_positive_impact"`
	TotalNegativeImpact float64              `json:"total_negative_impact"`
	Recommendations     []Recommendation     `json:"recommendations"`
	Narrative           string               `json:"explanation_text"`
	Features            []FeatureAttribution `json:"all_features"`
}

// Input carries everything Compose needs for one prediction.
type Input struct {
	Score        int
	Attributions []float64
	Schema       schema.Schema
	Record       schema.Record
	// Baseline is nil when no expected value is available.
	Baseline *float64
}

// Compose builds the explanation for one prediction.
func Compose(in Input) (*Result, error) {
	n := in.Schema.Len()
	if len(in.Attributions) != n {
		return nil, fmt.Errorf("%w: %d attributions, %d features", ErrLengthMismatch, len(in.Attributions), n)
	}

	res := &Result{
		Score:           in.Score,
		Category:        model.Categorize(in.Score),
		Baseline:        in.Baseline,
		PositiveFactors: []Factor{},
		NegativeFactors: []Factor{},
		Features:        make([]FeatureAttribution, n),
	}

	for i, phi := range in.Attributions {
		name := in.Schema.Name(i)
		res.Features[i] = FeatureAttribution{
			Feature:     name,
			Description: schema.Describe(name),
			Attribution: phi,
			Value:       in.Record.Get(name),
		}
		if phi > 0 {
			res.TotalPositiveImpact += phi
		} else {
			res.TotalNegativeImpact += phi
		}
	}

	for _, i := range rank(in.Attributions, RankedFeatures) {
		f := Factor{
			Feature:     res.Features[i].Feature,
			Description: res.Features[i].Description,
			Impact:      in.Attributions[i],
			Value:       res.Features[i].Value,
		}
		if f.Impact > 0 {
			if len(res.PositiveFactors) < FactorsPerSide {
				res.PositiveFactors = append(res.PositiveFactors, f)
			}
		} else if len(res.NegativeFactors) < FactorsPerSide {
			res.NegativeFactors = append(res.NegativeFactors, f)
		}
	}

	res.Recommendations = Recommend(res.NegativeFactors)
	res.Narrative = narrative(res)
	return res, nil
}

// rank returns the indices of the k largest |values|, ties broken by
// position.
func rank(values []float64, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(values[idx[a]]) > math.Abs(values[idx[b]])
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	return idx
}

func narrative(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your credit score is %d, which falls in the '%s' category.\n\n", r.Score, r.Category)

	if len(r.PositiveFactors) > 0 {
		b.WriteString("Factors positively impacting your score:\n")
		for i, f := range r.PositiveFactors[:min(NarrativeItems, len(r.PositiveFactors))] {
			fmt.Fprintf(&b, "%d. %s contributes +%.1f points\n", i+1, f.Description, f.Impact)
		}
		b.WriteString("\n")
	}

	if len(r.NegativeFactors) > 0 {
		b.WriteString("Factors negatively impacting your score:\n")
		for i, f := range r.NegativeFactors[:min(NarrativeItems, len(r.NegativeFactors))] {
			fmt.Fprintf(&b, "%d. %s reduces your score by %.1f points\n", i+1, f.Description, math.Abs(f.Impact))
		}
		b.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("Recommendations to improve your score:\n")
		for i, rec := range r.Recommendations[:min(NarrativeItems, len(r.Recommendations))] {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, rec.Action, rec.Reason)
		}
	}
	return b.String()
}

package registry

import (
	"time"

	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/training"
)

// ModelCard documents a registered bundle.
type ModelCard struct {
	Version         string                       `json:"version" yaml:"version"`
	Algorithm       string                       `json:"algorithm" yaml:"algorithm"`
	TrainedAt       time.Time                    `json:"trained_at" yaml:"trained_at"`
	RegisteredAt    time.Time                    `json:"registered_at" yaml:"registered_at"`
	DatasetHash     string                       `json:"dataset_hash" yaml:"dataset_hash"`
	BinaryHash      string                       `json:"binary_hash" yaml:"binary_hash"`
	Rows            int                          `json:"rows" yaml:"rows"`
	Features        []string                     `json:"features" yaml:"features"`
	Hyperparameters model.Config                 `json:"hyperparameters" yaml:"hyperparameters"`
	Metrics         model.Metrics                `json:"metrics" yaml:"metrics"`
	Importance      []training.FeatureImportance `json:"feature_importance" yaml:"feature_importance"`
	Bands           []model.Band                 `json:"score_bands" yaml:"score_bands"`
	Limitations     []string                     `json:"limitations" yaml:"limitations"`
	IntendedUse     string                       `json:"intended_use" yaml:"intended_use"`
}

func newCard(b *bundle.Bundle, importance []training.FeatureImportance, binaryHash string, registeredAt time.Time) *ModelCard {
	meta := b.Metadata()
	return &ModelCard{
		Version:         meta.Version,
		Algorithm:       meta.Algorithm,
		TrainedAt:       meta.CreatedAt,
		RegisteredAt:    registeredAt,
		DatasetHash:     meta.DatasetHash,
		BinaryHash:      binaryHash,
		Rows:            meta.Rows,
		Features:        meta.Features,
		Hyperparameters: meta.Config,
		Metrics:         meta.Metrics,
		Importance:      importance,
		Bands:           model.Bands(),
		Limitations: []string{
			"Trained against a synthetic target whose min-max normalization depends on the training batch; scores are not comparable across datasets",
			"No fairness or disparate-impact evaluation has been performed",
			"Attributions are interventional Shapley values against a small background sample and describe the model, not causal effects",
		},
		IntendedUse: "Illustrative credit score estimation with per-feature explanations; not for lending decisions",
	}
}

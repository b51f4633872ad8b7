package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/preprocess"
)

func TestObservePrediction(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePrediction("explain", 712, "Good", 3*time.Millisecond)
	m.ObservePrediction("batch", 640, "Poor", time.Millisecond)
	m.ObservePrediction("batch", 655, "Fair", time.Millisecond)

	if got := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("batch")); got != 2 {
		t.Errorf("batch predictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CategoryTotal.WithLabelValues("Good")); got != 1 {
		t.Errorf("Good category = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ScoreDistribution); got != 1 {
		t.Errorf("score histogram series = %d, want 1", got)
	}
}

func TestObserveWarningsAndLoads(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWarnings([]preprocess.Warning{
		{Kind: preprocess.UnknownCategory, Feature: "CAT_GAMBLING"},
		{Kind: preprocess.UnknownCategory, Feature: "CAT_GAMBLING"},
		{Kind: preprocess.MissingFeature, Feature: "INCOME"},
	})
	m.ObserveLoad(true)
	m.ObserveLoad(false)
	m.ObserveLoad(false)

	if got := testutil.ToFloat64(m.WarningsTotal.WithLabelValues(string(preprocess.UnknownCategory))); got != 2 {
		t.Errorf("unknown_category warnings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BundleLoads.WithLabelValues("failure")); got != 2 {
		t.Errorf("failed loads = %v, want 2", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestTrainingTracker(t *testing.T) {
	tr := NewTrainingTracker(prometheus.NewRegistry())

	tr.RecordRun("gbt-v1", model.Metrics{TestRMSE: 12.5, TestR2: 0.91, TrainRows: 80, TestRows: 20}, 2*time.Second)
	tr.RecordFailure()

	if got := testutil.ToFloat64(tr.quality.WithLabelValues("test", "rmse")); got != 12.5 {
		t.Errorf("test rmse = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(tr.rows.WithLabelValues("test")); got != 20 {
		t.Errorf("test rows = %v, want 20", got)
	}
	if got := testutil.ToFloat64(tr.runs.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if tr.LastVersion() != "gbt-v1" {
		t.Errorf("LastVersion() = %q", tr.LastVersion())
	}
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fractal-lba/scorelens/internal/model"
)

// TrainingTracker exports the quality of the most recent training run
// and the duration of every run.
type TrainingTracker struct {
	mu sync.Mutex

	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	quality  *prometheus.GaugeVec
	rows     *prometheus.GaugeVec

	lastVersion string
}

// NewTrainingTracker registers the training collectors on reg.
func NewTrainingTracker(reg prometheus.Registerer) *TrainingTracker {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &TrainingTracker{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_training_runs_total",
				Help: "Training runs by outcome",
			},
			[]string{"outcome"},
		),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorelens_training_duration_seconds",
			Help:    "Wall time of a training run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		quality: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scorelens_model_quality",
				Help: "Regression metrics of the latest trained bundle",
			},
			[]string{"split", "metric"},
		),
		rows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scorelens_model_rows",
				Help: "Rows used by the latest trained bundle",
			},
			[]string{"split"},
		),
	}
}

// RecordRun exports the outcome of a training run.
func (t *TrainingTracker) RecordRun(version string, m model.Metrics, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs.WithLabelValues("success").Inc()
	t.duration.Observe(d.Seconds())

	t.quality.WithLabelValues("train", "rmse").Set(m.TrainRMSE)
	t.quality.WithLabelValues("test", "rmse").Set(m.TestRMSE)
	t.quality.WithLabelValues("train", "mae").Set(m.TrainMAE)
	t.quality.WithLabelValues("test", "mae").Set(m.TestMAE)
	t.quality.WithLabelValues("train", "r2").Set(m.TrainR2)
	t.quality.WithLabelValues("test", "r2").Set(m.TestR2)
	t.rows.WithLabelValues("train").Set(float64(m.TrainRows))
	t.rows.WithLabelValues("test").Set(float64(m.TestRows))

	t.lastVersion = version
}

// RecordFailure counts a failed training run.
func (t *TrainingTracker) RecordFailure() {
	t.runs.WithLabelValues("failure").Inc()
}

// LastVersion returns the version of the latest recorded run.
func (t *TrainingTracker) LastVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastVersion
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fractal-lba/scorelens/internal/preprocess"
)

// Metrics holds the Prometheus collectors for the scoring service
type Metrics struct {
	PredictionsTotal  *prometheus.CounterVec
	PredictionLatency *prometheus.HistogramVec
	ScoreDistribution prometheus.Histogram
	CategoryTotal     *prometheus.CounterVec
	WarningsTotal     *prometheus.CounterVec
	BundleLoads       *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	RateLimited       prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PredictionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_predictions_total",
				Help: "Number of scored records by request kind",
			},
			[]string{"kind"},
		),
		PredictionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scorelens_prediction_duration_seconds",
				Help:    "Time spent scoring one record",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		ScoreDistribution: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorelens_score",
			Help:    "Distribution of predicted credit scores",
			Buckets: prometheus.LinearBuckets(350, 50, 11),
		}),
		CategoryTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_category_total",
				Help: "Number of predictions per score band",
			},
			[]string{"category"},
		),
		WarningsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_preprocess_warnings_total",
				Help: "Non-fatal preprocessing issues by kind",
			},
			[]string{"kind"},
		),
		BundleLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_bundle_loads_total",
				Help: "Model bundle load attempts by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorelens_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "scorelens_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

// ObservePrediction records one scored record.
func (m *Metrics) ObservePrediction(kind string, score int, category string, d time.Duration) {
	m.PredictionsTotal.WithLabelValues(kind).Inc()
	m.PredictionLatency.WithLabelValues(kind).Observe(d.Seconds())
	m.ScoreDistribution.Observe(float64(score))
	m.CategoryTotal.WithLabelValues(category).Inc()
}

// ObserveWarnings counts preprocessing warnings by kind.
func (m *Metrics) ObserveWarnings(warnings []preprocess.Warning) {
	for _, w := range warnings {
		m.WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
}

// ObserveLoad records a bundle load attempt.
func (m *Metrics) ObserveLoad(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.BundleLoads.WithLabelValues(outcome).Inc()
}

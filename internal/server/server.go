// Package server exposes the predictor over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fractal-lba/scorelens/internal/api"
	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/explain"
	"github.com/fractal-lba/scorelens/internal/metrics"
	"github.com/fractal-lba/scorelens/internal/predictor"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// Predictor is the part of predictor.Predictor the handlers use.
type Predictor interface {
	Init(ctx context.Context) error
	Handle() *bundle.Bundle
	PredictWithExplanation(ctx context.Context, rec schema.Record) (*explain.Result, error)
	PredictBatch(ctx context.Context, records []schema.Record) ([]predictor.BatchItem, error)
}

// Options configures the HTTP layer.
type Options struct {
	AllowedOrigins []string
	RateLimit      float64 // requests per second, 0 disables
	Burst          int
	MaxBatch       int
	// MetricsUser enables basic auth on /metrics when set.
	MetricsUser     string
	MetricsPassword string
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Logger          *slog.Logger
}

// Server holds the router and its dependencies.
type Server struct {
	predictor Predictor
	opts      Options
	logger    *slog.Logger
	engine    *gin.Engine
}

// New builds the router.
func New(p Predictor, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 1000
	}

	s := &Server{predictor: p, opts: opts, logger: opts.Logger}
	s.engine = s.routes()
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	var limiter *rate.Limiter
	if s.opts.RateLimit > 0 {
		burst := s.opts.Burst
		if burst <= 0 {
			burst = int(s.opts.RateLimit * 2)
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)
	}

	r.Use(recovery(s.logger))
	r.Use(requestID())
	r.Use(tracing())
	r.Use(accessLog(s.logger, s.opts.Metrics))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	metricsHandler := gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	if s.opts.MetricsUser != "" {
		r.GET("/metrics", gin.BasicAuthForRealm(gin.Accounts{s.opts.MetricsUser: s.opts.MetricsPassword}, "Metrics"), metricsHandler)
	} else {
		r.GET("/metrics", metricsHandler)
	}

	scores := r.Group("/api/credit-score", rateLimit(limiter, s.opts.Metrics))
	scores.POST("/analyze", s.handleAnalyze)
	scores.POST("/predict", s.handlePredict)
	scores.POST("/predict/batch", s.handleBatch)
	scores.GET("/model", s.handleModel)

	return r
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, api.RootResponse{
		Message: "Credit Score ML API",
		Version: api.ServiceVersion,
		Endpoints: map[string]string{
			"/api/credit-score/analyze":       "POST - Predict and explain a credit score for one user",
			"/api/credit-score/predict":       "POST - Predict a credit score for one user",
			"/api/credit-score/predict/batch": "POST - Predict credit scores for multiple users",
			"/api/credit-score/model":         "GET - Describe the served model",
			"/health":                         "GET - Health check",
			"/metrics":                        "GET - Prometheus metrics",
		},
	})
}

// handleHealth loads the model on first use, so an unhealthy response
// carries the load error.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.predictor.Init(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, api.HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	resp := api.HealthResponse{Status: "healthy", ModelLoaded: true}
	if b := s.predictor.Handle(); b != nil {
		resp.Version = b.Version()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var rec schema.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	res, err := s.predictor.PredictWithExplanation(c.Request.Context(), rec)
	if err != nil {
		s.predictionError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.AnalyzeResponse{
		CreditScore: res.Score,
		Category:    res.Category,
		Explanation: res,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var rec schema.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	items, err := s.predictor.PredictBatch(c.Request.Context(), []schema.Record{rec})
	if err != nil {
		s.predictionError(c, err)
		return
	}
	if items[0].Error != "" {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("prediction error: %s", items[0].Error))
		return
	}
	c.JSON(http.StatusOK, api.PredictResponse{Score: items[0].Score, Category: items[0].Category})
}

func (s *Server) handleBatch(c *gin.Context) {
	var req api.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Users) > s.opts.MaxBatch {
		s.fail(c, http.StatusRequestEntityTooLarge,
			fmt.Errorf("batch of %d records exceeds limit of %d", len(req.Users), s.opts.MaxBatch))
		return
	}

	items, err := s.predictor.PredictBatch(c.Request.Context(), req.Users)
	if err != nil {
		s.predictionError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewBatchResponse(items))
}

func (s *Server) handleModel(c *gin.Context) {
	if err := s.predictor.Init(c.Request.Context()); err != nil {
		s.predictionError(c, err)
		return
	}
	b := s.predictor.Handle()
	c.JSON(http.StatusOK, api.ModelResponse{
		Metadata: b.Metadata(),
		Baseline: b.Engine().Baseline(),
	})
}

func (s *Server) predictionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, predictor.ErrModelUnavailable):
		s.fail(c, http.StatusServiceUnavailable, err)
	case errors.Is(err, predictor.ErrEmptyBatch):
		s.fail(c, http.StatusBadRequest, err)
	default:
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("prediction error: %w", err))
	}
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err, "request_id", c.GetString(requestIDKey))
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{
		Detail:    err.Error(),
		RequestID: c.GetString(requestIDKey),
	})
}

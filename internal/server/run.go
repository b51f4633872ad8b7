package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fractal-lba/scorelens/internal/api"
	"github.com/fractal-lba/scorelens/internal/config"
	"github.com/fractal-lba/scorelens/internal/metrics"
	"github.com/fractal-lba/scorelens/internal/predictor"
	"github.com/fractal-lba/scorelens/pkg/otel"
)

// Run serves the API described by cfg until ctx is cancelled, then shuts
// down gracefully. A missing or broken active model does not stop startup;
// it is reported by /health and retried on the next request.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	if cfg.Tracing.Enabled {
		tcfg := otel.DefaultConfig(cfg.Tracing.ServiceName)
		tcfg.ServiceVersion = api.ServiceVersion
		tcfg.Environment = cfg.Tracing.Environment
		tcfg.CollectorEndpoint = cfg.Tracing.Endpoint
		tcfg.CollectorInsecure = cfg.Tracing.Insecure
		tcfg.SamplingRate = cfg.Tracing.SampleRate
		tp, err := otel.InitTracer(ctx, tcfg)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otel.Shutdown(sctx, tp); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	reg, err := cfg.OpenRegistry(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("registry close failed", "error", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	p := predictor.New(reg, predictor.WithLogger(logger), predictor.WithObserver(m))
	if err := p.Init(ctx); err != nil {
		logger.Warn("no model loaded at startup", "error", err)
	}

	srv := New(p, Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.Server.RateLimit,
		Burst:           cfg.Server.Burst,
		MaxBatch:        cfg.Server.MaxBatch,
		MetricsUser:     cfg.Server.MetricsUser,
		MetricsPassword: cfg.Server.MetricsPassword,
		Metrics:         m,
		Gatherer:        prometheus.DefaultGatherer,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

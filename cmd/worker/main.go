package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/uk-legal-assistant/internal/bootstrap"
	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/observability/logging"
	"github.com/kirillkom/uk-legal-assistant/internal/observability/metrics"
)

const (
	serviceName   = "worker"
	sourceTimeout = 10 * time.Minute
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithResilienceObserver(workerMetrics.Resilience()))
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go purgeLoop(ctx, app, workerMetrics, cfg.WorkerPurgeInterval)

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeLegislationSources(ctx, func(handlerCtx context.Context, source domain.LegislationSource) error {
		sourceCtx, cancel := context.WithTimeout(handlerCtx, sourceTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartSource()
		written, err := app.Ingest.IngestSource(sourceCtx, source)
		workerMetrics.FinishSource(serviceName, time.Since(start), written, err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err.Error())
		os.Exit(1)
	}
}

func purgeLoop(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Documents.PurgeExpired(ctx)
			if err != nil {
				slog.Error("expired_documents_purge_failed", "error", err.Error())
				continue
			}
			workerMetrics.RecordPurged(serviceName, n)
		}
	}
}

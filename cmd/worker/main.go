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

	"github.com/vmaslov/retrieval-engine/internal/bootstrap"
	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/observability/logging"
	"github.com/vmaslov/retrieval-engine/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
	err = app.Queue.SubscribeChunksIngested(ctx, func(handlerCtx context.Context, batchID string) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		started := time.Now()
		workerMetrics.StartBatch()
		err := app.IndexUC.IndexBatch(indexCtx, batchID)
		workerMetrics.FinishBatch(time.Since(started), err)
		return err
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func startMetricsServer(port string, workerMetrics *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	return server
}

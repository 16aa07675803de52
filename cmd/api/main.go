package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/vmaslov/retrieval-engine/internal/adapters/http"
	"github.com/vmaslov/retrieval-engine/internal/bootstrap"
	"github.com/vmaslov/retrieval-engine/internal/config"
	"github.com/vmaslov/retrieval-engine/internal/observability/logging"
	"github.com/vmaslov/retrieval-engine/internal/observability/metrics"
)

const serviceName = "api"

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

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)

	// The lexical index lives in process memory; a fresh instance must
	// load the corpus before it can answer hybrid queries.
	started := time.Now()
	documents, err := app.Admin.RebuildIndex(ctx)
	serverMetrics.RecordRebuild(documents, time.Since(started), err)
	if err != nil {
		slog.Error("initial_index_build_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("initial_index_built", "documents", documents)

	// Rebuild whenever the worker finishes a batch so every replica
	// converges on the new corpus without polling.
	go func() {
		err := app.Queue.SubscribeCorpusIndexed(ctx, func(handlerCtx context.Context, batchID string) error {
			rebuildCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
			defer cancel()
			started := time.Now()
			documents, err := app.Admin.RebuildIndex(rebuildCtx)
			serverMetrics.RecordRebuild(documents, time.Since(started), err)
			if err != nil {
				return fmt.Errorf("rebuild after batch %s: %w", batchID, err)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("indexed_subscription_failed", "error", err)
		}
	}()
	router := httpadapter.NewRouter(cfg, app.Search, app.IngestUC, app.Batches, app.Admin, serverMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hendo420/P2PLendingPlatform/internal/blockchain"
	"github.com/hendo420/P2PLendingPlatform/internal/config"
	"github.com/hendo420/P2PLendingPlatform/internal/db"
	"github.com/hendo420/P2PLendingPlatform/internal/jobs"
	"github.com/hendo420/P2PLendingPlatform/internal/observability"
	postgresrepo "github.com/hendo420/P2PLendingPlatform/internal/repository/postgres"
)

func main() {
	cfg, err := config.FromEnvOrFile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	writer, err := blockchain.NewWriterFromConfig(cfg)
	if err != nil {
		logger.Error("failed to build anchor writer", "mode", cfg.AnchorMode, "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	worker := jobs.NewWorker(
		postgresrepo.NewOutboxRepository(pool),
		postgresrepo.NewEventRepository(pool),
		writer,
	).WithRecorder(metrics)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	interval := cfg.WorkerPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "interval", interval.String(), "batch_size", cfg.WorkerBatchSize, "anchor", cfg.AnchorMode)
	for {
		select {
		case <-sigCtx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsServer.Shutdown(shutdownCtx)
			shutdownCancel()
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			runCtx, runCancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := worker.RunOnce(runCtx, cfg.WorkerBatchSize)
			runCancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker run failed", "err", err)
			}
		}
	}
}

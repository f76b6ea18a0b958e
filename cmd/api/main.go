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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
	"github.com/hendo420/P2PLendingPlatform/internal/config"
	"github.com/hendo420/P2PLendingPlatform/internal/db"
	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/http/handlers"
	"github.com/hendo420/P2PLendingPlatform/internal/observability"
	"github.com/hendo420/P2PLendingPlatform/internal/oracle"
	"github.com/hendo420/P2PLendingPlatform/internal/repository/memory"
	postgresrepo "github.com/hendo420/P2PLendingPlatform/internal/repository/postgres"
	"github.com/hendo420/P2PLendingPlatform/internal/server"
	"github.com/hendo420/P2PLendingPlatform/internal/ws"
)

type eventLog interface {
	ws.EventSource
	LatestSeq(ctx context.Context) (int64, error)
}

type backend struct {
	store  ledger.Store
	events eventLog
	audit  admindomain.AuditRepository
	pinger handlers.Pinger
	pool   *pgxpool.Pool
}

func main() {
	cfg, err := config.FromEnvOrFile()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Env)

	policy, err := collateral.ParseShortfallPolicy(cfg.ShortfallPolicy)
	if err != nil {
		logger.Error("invalid shortfall policy", "err", err)
		os.Exit(1)
	}

	be, err := openBackend(cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	if be.pool != nil {
		defer be.pool.Close()
	}

	priceOracle, twap, err := oracle.NewFromConfig(cfg)
	if err != nil {
		logger.Error("failed to build oracle", "mode", cfg.OracleMode, "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	svc := ledger.NewService(be.store, priceOracle, ledger.Config{
		Admin:           ledger.Account(cfg.AdminSubject),
		LoanCurrency:    cfg.LoanCurrency,
		NativeCurrency:  cfg.NativeCurrency,
		Reserve:         ledger.Account(cfg.LiquidationReserve),
		ShortfallPolicy: policy,
	}, ledger.WithLogger(logger), ledger.WithRecorder(metrics))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if twap != nil {
		go twap.Run(runCtx, cfg.OracleSamplePeriod, logger)
	}
	go watchRate(runCtx, svc, metrics, cfg.OracleSamplePeriod, logger)

	hub := ws.NewHub()
	notifier := ws.NewNotifier(be.events, hub, cfg.NotifierPollInterval, logger)
	if seq, err := be.events.LatestSeq(runCtx); err == nil {
		notifier.StartAfter(seq)
	} else {
		logger.Warn("notifier replaying event log", "err", err)
	}
	go func() {
		if err := notifier.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notifier stopped", "err", err)
		}
	}()

	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:     be.pinger,
		Ledger:     svc,
		Admin:      admindomain.NewService(svc, be.audit),
		JWTManager: auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey),
		WSHandler:  ws.NewHandler(hub),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "store", cfg.StoreDriver, "oracle", cfg.OracleMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}

func openBackend(cfg config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := db.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  postgresrepo.NewLedgerStore(pool, int(cfg.DBTxRetries)),
			events: postgresrepo.NewEventRepository(pool),
			audit:  postgresrepo.NewAdminAuditRepository(pool),
			pinger: pool,
			pool:   pool,
		}, nil
	default:
		store := memory.NewStore()
		return &backend{
			store:  store,
			events: store,
			audit:  memory.NewAuditLog(),
			pinger: store,
		}, nil
	}
}

// watchRate exports the validated oracle rate as a gauge.
func watchRate(ctx context.Context, svc *ledger.Service, metrics *observability.Metrics, period time.Duration, logger *slog.Logger) {
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		rate, err := svc.CurrentRate(ctx)
		if err != nil {
			logger.Warn("oracle rate unavailable", "err", err)
		} else {
			metrics.SetRate(rate.Float64())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
	"github.com/hendo420/P2PLendingPlatform/internal/config"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/http/handlers"
	"github.com/hendo420/P2PLendingPlatform/internal/http/middleware"
	"github.com/hendo420/P2PLendingPlatform/internal/version"
	"github.com/hendo420/P2PLendingPlatform/internal/ws"
)

type Dependencies struct {
	Pinger     handlers.Pinger
	Ledger     *ledger.Service
	Admin      handlers.AdminService
	JWTManager *auth.JWTManager
	WSHandler  *ws.Handler
	Metrics    http.Handler
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RequestBodyLimit(cfg.RequestMaxBytes))

	health := handlers.NewHealthHandler(deps.Pinger)
	var currencies func() (string, string)
	var policy string
	if deps.Ledger != nil {
		currencies = func() (string, string) { return deps.Ledger.LoanCurrency(), deps.Ledger.NativeCurrency() }
		policy = deps.Ledger.ShortfallPolicy().String()
	}
	meta := handlers.NewMetaHandler(cfg.Env, version.Version, policy, currencies)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	if deps.Ledger != nil && deps.JWTManager != nil {
		requireAuth := middleware.RequireAuth(deps.JWTManager, cfg.AuthEnableBearer)
		anyRole := middleware.RequireRole(auth.RoleUser, auth.RoleAdmin)

		oracleHandler := handlers.NewOracleHandler(deps.Ledger)
		r.GET("/v1/oracle/rate", oracleHandler.Rate)

		session := handlers.NewSessionHandler(auth.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}, cfg.AuthEnableBearer, cfg.JWTAccessTTL)
		r.POST("/v1/session", requireAuth, session.Create)
		r.DELETE("/v1/session", session.Delete)

		v1 := r.Group("/v1")
		v1.Use(requireAuth, anyRole)

		lending := handlers.NewLendingHandler(deps.Ledger)
		v1.POST("/lending-positions", lending.Create)
		v1.GET("/lending-positions", lending.List)
		v1.GET("/lending-positions/:id", lending.Get)
		v1.POST("/lending-positions/:id/withdraw", lending.Withdraw)
		v1.POST("/lending-positions/:id/collect", lending.Collect)
		v1.GET("/lending-positions/:id/loans", lending.Loans)

		loans := handlers.NewLoanHandler(deps.Ledger)
		v1.POST("/loans", loans.Take)
		v1.GET("/loans", loans.List)
		v1.GET("/loans/:id", loans.Get)
		v1.POST("/loans/:id/repay", loans.Repay)
		v1.POST("/loans/:id/collateral", loans.AddCollateral)
		v1.POST("/loans/:id/liquidate", loans.Liquidate)
		v1.GET("/loans/:id/health", loans.Health)

		positions := handlers.NewPositionHandler(deps.Ledger)
		v1.GET("/positions/supply", positions.Supply)
		v1.GET("/positions/:id/owner", positions.Owner)
		v1.POST("/positions/:id/transfer", positions.Transfer)

		accounts := handlers.NewAccountHandler(deps.Ledger)
		v1.GET("/accounts/me/positions", accounts.Positions)
		v1.GET("/accounts/me/balances", accounts.Balances)

		if deps.WSHandler != nil {
			r.GET("/ws", requireAuth, deps.WSHandler.HandleWebSocket)
		}

		if deps.Admin != nil {
			adminHandler := handlers.NewAdminHandler(deps.Admin)
			adminGroup := r.Group("/admin")
			adminGroup.Use(requireAuth, middleware.RequireRole(auth.RoleAdmin))
			adminGroup.PUT("/oracle", adminHandler.SetRate)
			adminGroup.PUT("/loan-currency", adminHandler.SetLoanCurrency)
			adminGroup.POST("/deposits", adminHandler.Deposit)
			adminGroup.GET("/audit", adminHandler.AuditTrail)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}

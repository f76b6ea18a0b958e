package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
	"github.com/hendo420/P2PLendingPlatform/internal/config"
	"github.com/hendo420/P2PLendingPlatform/internal/db"
	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/observability"
	"github.com/hendo420/P2PLendingPlatform/internal/oracle"
	postgresrepo "github.com/hendo420/P2PLendingPlatform/internal/repository/postgres"
	"github.com/hendo420/P2PLendingPlatform/internal/version"
)

const configFlag = "config"

func newRootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for the lending ledger",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().String(configFlag, "", "YAML config file; environment variables take precedence")
	c.AddCommand(migrateCommand(), tokenCommand(), depositCommand())
	return c
}

func loadConfig(c *cobra.Command) (config.Config, error) {
	path, err := c.Flags().GetString(configFlag)
	if err != nil {
		return config.Config{}, err
	}
	if path == "" {
		return config.FromEnvOrFile()
	}
	return config.LoadFile(path)
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			pool, err := db.NewPostgresPool(c.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()
			if err := db.Migrate(c.Context(), pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func tokenCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Access token utilities",
	}
	mint := &cobra.Command{
		Use:   "mint <account>",
		Short: "Mint an access token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			role, _ := c.Flags().GetString("role")
			ttl, _ := c.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.JWTAccessTTL
			}
			jwt := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey)
			tok, err := jwt.Mint(strings.TrimSpace(args[0]), role, auth.TokenTypeAccess, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), tok)
			return nil
		},
	}
	mint.Flags().String("role", auth.RoleUser, "token role (user or admin)")
	mint.Flags().Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TTL)")
	c.AddCommand(mint)
	return c
}

func depositCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "deposit <account> <currency> <amount>",
		Short: "Credit an account balance as the configured administrator",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.AdminSubject == "" {
				return fmt.Errorf("ADMIN_SUBJECT is not configured")
			}
			amount, err := uint256.FromDecimal(args[2])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}
			policy, err := collateral.ParseShortfallPolicy(cfg.ShortfallPolicy)
			if err != nil {
				return err
			}
			priceOracle, _, err := oracle.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			pool, err := db.NewPostgresPool(c.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			svc := ledger.NewService(postgresrepo.NewLedgerStore(pool, int(cfg.DBTxRetries)), priceOracle, ledger.Config{
				Admin:           ledger.Account(cfg.AdminSubject),
				LoanCurrency:    cfg.LoanCurrency,
				NativeCurrency:  cfg.NativeCurrency,
				Reserve:         ledger.Account(cfg.LiquidationReserve),
				ShortfallPolicy: policy,
			}, ledger.WithLogger(observability.NewLogger(cfg.Env)))
			admin := admindomain.NewService(svc, postgresrepo.NewAdminAuditRepository(pool))
			if err := admin.Deposit(c.Context(), cfg.AdminSubject, args[0], args[1], amount); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "deposited %s %s to %s at %s\n", amount.Dec(), strings.ToUpper(args[1]), args[0], time.Now().UTC().Format(time.RFC3339))
			return nil
		},
	}
	return c
}

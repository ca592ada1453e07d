// Command ordersctl is the operator tool for the checkout service: schema
// migrations, order inspection, manual pushes and the reconciliation sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/postgres"
	"github.com/kevin07696/mpesa-checkout/internal/config"
	"github.com/kevin07696/mpesa-checkout/pkg/logging"
)

var Version = "dev"

var (
	apiURL   string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate the M-Pesa checkout service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("ORDERSCTL_API", "http://localhost:8080"), "checkout service base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(eventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	return logging.New("development", logLevel)
}

// env bundles what the database-backed commands need
type env struct {
	cfg    *config.Config
	db     *postgres.DBExecutor
	logger *zap.Logger
}

func (e *env) Close() {
	e.db.Close()
	_ = e.logger.Sync()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	pc := postgres.DefaultPoolConfig(cfg.Database.ConnectionString())
	pc.MaxConns = 4
	pc.MinConns = 1
	db, err := postgres.Open(ctx, pc, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, logger: logger}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

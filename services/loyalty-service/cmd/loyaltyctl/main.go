// Command loyaltyctl runs loyalty maintenance jobs against the database:
// migrations, API clients, stat recalculation, ledger repair, imports,
// expiry and campaign management.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/config"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/libs/runtime"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/inbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
	"github.com/spf13/cobra"
)

var (
	databaseURL string
	businessID  string
	timeout     time.Duration
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "loyaltyctl",
	Short:         "Operate the loyalty ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = runtime.NewLogger("loyaltyctl")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", config.String("DATABASE_URL", ""), "Postgres URL (or set DATABASE_URL)")
	rootCmd.PersistentFlags().StringVarP(&businessID, "business", "b", config.String("BUSINESS_ID", ""), "Business (tenant) id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	clientCmd.AddCommand(clientCreateCmd)
	statsCmd.AddCommand(statsRecalcCmd)
	ledgerCmd.AddCommand(ledgerNormalizeCmd, ledgerImportCmd)
	pointsCmd.AddCommand(pointsExpireCmd)
	campaignCmd.AddCommand(campaignApplyCmd, campaignAwardCmd)

	rootCmd.AddCommand(migrateCmd, clientCmd, statsCmd, ledgerCmd, pointsCmd, campaignCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// commandContext bounds a command by --timeout and cancels on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	sigCtx, stop := runtime.SignalContext()
	ctx, cancel := context.WithTimeout(sigCtx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func openPool(ctx context.Context) (*db.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return db.Open(ctx, databaseURL)
}

// openService wires a loyalty.Service without a token signer; CLI commands never issue tokens.
func openService(ctx context.Context) (*loyalty.Service, *db.Pool, error) {
	pool, err := openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := loyalty.New(storage.NewRepository(pool), outbox.NewRepository(), inbox.NewRepository(), nil, logger)
	return svc, pool, nil
}

func requireBusiness() error {
	if businessID == "" {
		return fmt.Errorf("--business or BUSINESS_ID is required")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/libs/grpcx"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/campaigns"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/migrations"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := db.ApplyMigrations(ctx, pool, migrations.FS)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"applied": applied})
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage API clients",
}

var (
	clientRole string
	clientName string
)

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API client and print its secret once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		if !auth.ValidRole(clientRole) {
			return fmt.Errorf("invalid role %q", clientRole)
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		id, secret, err := svc.CreateClient(ctx, businessID, clientRole, clientName)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"client_id": id, "client_secret": secret, "role": clientRole})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Customer statistics",
}

var customerID string

var statsRecalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Rebuild customer statistics from appointment history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if customerID != "" {
			st, err := svc.RecalculateStats(ctx, businessID, customerID)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}
		sum, err := svc.RecalculateAll(ctx, businessID)
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger repair and import",
}

var dryRun bool

var ledgerNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Repair duplicated credits, negative balances and drifted counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if customerID != "" {
			rep, err := svc.NormalizeAccount(ctx, businessID, customerID, dryRun)
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		}
		sum, err := svc.NormalizeAll(ctx, businessID, dryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import legacy balances (customer_id,points[,legacy_id])",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		rows, err := loyalty.ParseImportCSV(f)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		sum, err := svc.ImportBalances(ctx, businessID, rows, "loyaltyctl")
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Point maintenance",
}

var pointsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire due points now; without --business every tenant is swept",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if customerID != "" {
			if err := requireBusiness(); err != nil {
				return err
			}
			n, err := svc.ExpireAccount(ctx, businessID, customerID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"customer_id": customerID, "points_expired": n})
		}
		sum, err := svc.SweepExpired(ctx, businessID)
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Bonus campaigns",
}

var campaignApplyCmd = &cobra.Command{
	Use:   "apply <campaigns.yaml>",
	Short: "Create or update campaigns from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		defs, err := campaigns.Parse(f, businessID, time.Now().UTC())
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		keys := make([]string, 0, len(defs))
		for _, c := range defs {
			saved, err := svc.UpsertCampaign(ctx, c)
			if err != nil {
				return fmt.Errorf("campaign %s: %w", c.Key, err)
			}
			keys = append(keys, saved.Key)
		}
		return printJSON(cmd, map[string]any{"applied": keys})
	},
}

var campaignAwardCmd = &cobra.Command{
	Use:   "award <key>",
	Short: "Award a running campaign to eligible customers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBusiness(); err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		svc, pool, err := openService(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if customerID != "" {
			sum, err := svc.AwardCampaignToCustomer(ctx, businessID, args[0], customerID)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		}
		sum, err := svc.AwardCampaign(ctx, businessID, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var (
	healthAddr    string
	healthService string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the service's gRPC health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		st, err := grpcx.CheckHealth(ctx, healthAddr, healthService, grpcx.DialOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.String())
		if st != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("service %q is %s", healthService, st)
		}
		return nil
	},
}

func init() {
	clientCreateCmd.Flags().StringVar(&clientRole, "role", auth.RoleStaff, "owner, admin or staff")
	clientCreateCmd.Flags().StringVar(&clientName, "name", "", "Client display name")

	for _, c := range []*cobra.Command{statsRecalcCmd, ledgerNormalizeCmd, pointsExpireCmd, campaignAwardCmd} {
		c.Flags().StringVarP(&customerID, "customer", "c", "", "Limit to one customer")
	}
	ledgerNormalizeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report corrections without writing them")

	healthCmd.Flags().StringVar(&healthAddr, "addr", "localhost:9095", "gRPC address")
	healthCmd.Flags().StringVar(&healthService, "service", "detailcrm.loyalty", "Health service name")
}

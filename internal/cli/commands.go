package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/imagestore/local"
	"github.com/vbonduro/partsledger/internal/service"
	"github.com/vbonduro/partsledger/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.ListenAddr = addr
			}
			if a.cfg.JWTSecret == "change-me" {
				a.logger.Warn("JWT_SECRET is not set; tokens are signed with the default secret")
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(database)

			images, err := local.New(a.cfg.UploadPath)
			if err != nil {
				return fmt.Errorf("failed to initialize image store: %w", err)
			}

			tokens := auth.NewTokens(a.cfg.JWTSecret, a.cfg.TokenTTL)
			users := service.NewUserService(database, tokens, a.logger)
			if err := users.EnsureAdmin(cmd.Context(), a.cfg.AdminPassword); err != nil {
				return err
			}

			server := web.NewServer(web.Services{
				Inventory:     service.NewInventoryService(database, images, a.cfg.LowStockThreshold, a.logger),
				BOMs:          service.NewBOMService(database, a.logger),
				ServiceOrders: service.NewServiceOrderService(database, a.logger),
				Users:         users,
			}, tokens, a.cfg.CORSOrigins, a.logger)

			if err := server.ListenAndServe(cmd.Context(), a.cfg.ListenAddr); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(database)

			version, dirty, err := db.Version(database)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			a.logger.Info("schema up to date", "version", version, "dirty", dirty)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every item's quantity against its transaction ledger.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(database)

			// The image store is not touched by ledger verification.
			inventory := service.NewInventoryService(database, nil, a.cfg.LowStockThreshold, a.logger)
			mismatches, err := inventory.VerifyLedger(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range mismatches {
				fmt.Fprintf(out, "item %d %q: total_qty=%d ledger=%d\n", m.ItemID, m.Name, m.TotalQty, m.LedgerQty)
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("%d items disagree with their ledger", len(mismatches))
			}
			fmt.Fprintln(out, "ledger balanced")
			return nil
		},
	}
}

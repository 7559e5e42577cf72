package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbonduro/partsledger/internal/config"
	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/logging"
)

// app holds what every subcommand needs once the root command has loaded
// configuration and opened the log.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
}

func (a *app) openDB() (*sql.DB, error) {
	database, err := db.Open(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("database opened", "path", a.cfg.DBPath)
	return database, nil
}

func (a *app) closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{cleanup: func() {}}

	root := &cobra.Command{
		Use:           "partsledger",
		Short:         "Inventory and repair-service tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = config.Load()
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				a.cfg.DBPath = dbPath
			}
			logger, cleanup, err := logging.New(a.cfg.LogLevel, a.cfg.LogFormat, a.cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			a.cleanup = cleanup
			return nil
		},
	}
	root.PersistentFlags().String("db", "", "SQLite database path (overrides DB_PATH)")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newVerifyCmd(a))
	return root, a
}

// run executes root and releases the log file whether or not the command
// failed. cobra skips post-run hooks after a RunE error.
func run(ctx context.Context, root *cobra.Command, a *app) error {
	defer a.cleanup()
	return root.ExecuteContext(ctx)
}

// Execute runs the command line and exits non-zero on failure.
func Execute(ctx context.Context) {
	root, a := newRootCmd()
	if err := run(ctx, root, a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

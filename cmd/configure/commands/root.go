// Package commands implements the smart-meds-configure operator CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/smart-meds/internal/config"
	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smart-meds-configure",
		Short:         "Configuration tool for the Smart Meds API",
		Long:          "CLI tool for migrations, the medication catalog, runtime settings and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")

	root.AddCommand(NewMigrateCmd())
	root.AddCommand(NewCatalogCmd())
	root.AddCommand(NewSettingsCmd())
	root.AddCommand(NewReportCmd())
	root.AddCommand(NewOIDCCmd())
	return root
}

// env is what a command needs to talk to the database
type env struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
}

// withDB loads tool configuration, connects and runs fn
func withDB(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	cfg, err := config.LoadForTools()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debug, _ := cmd.Flags().GetBool("debug")
	log, err := logger.NewDevelopmentLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync(log)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	return fn(cmd.Context(), &env{cfg: cfg, db: db, logger: log})
}

// NewMigrateCmd applies pending schema migrations
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForTools()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			debug, _ := cmd.Flags().GetBool("debug")
			log, err := logger.NewDevelopmentLogger(debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync(log)
			if err := database.RunMigrations(cfg.DatabaseURL, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/spf13/cobra"
)

// NewCorsCmd creates the cors configuration command with list and set subcommands
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS configuration",
		Long:  "List or update CORS allowed origins and options (stored in database).",
	}
	cmd.AddCommand(newCorsListCmd())
	cmd.AddCommand(newCorsSetCmd())
	return cmd
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, e *env) error {
				c, err := database.NewSettingsRepository(e.db).GetCORS(ctx)
				if err != nil {
					return fmt.Errorf("failed to get cors settings: %w", err)
				}
				printCORS(cmd.OutOrStdout(), c)
				return nil
			})
		},
	}
}

// corsSettings validates flag input
func corsSettings(origins string, allowCredentials bool, maxAge int) (*models.CORSSettings, error) {
	list := database.SplitOrigins(origins)
	if len(list) == 0 {
		return nil, fmt.Errorf("--origins is required (comma-separated list)")
	}
	for _, o := range list {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return nil, fmt.Errorf("origin %q must start with http:// or https://", o)
		}
	}
	if maxAge < 0 {
		return nil, fmt.Errorf("--max-age must not be negative")
	}
	return &models.CORSSettings{
		AllowedOrigins:   strings.Join(list, ","),
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	}, nil
}

func newCorsSetCmd() *cobra.Command {
	var origins string
	var allowCreds bool
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set CORS configuration",
		Long:  "Update CORS allowed origins (comma-separated). Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := corsSettings(origins, allowCreds, maxAge)
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, e *env) error {
				if err := database.NewSettingsRepository(e.db).SetCORS(ctx, c); err != nil {
					return fmt.Errorf("failed to set cors settings: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "CORS configuration updated.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&origins, "origins", "", "Comma-separated allowed origins (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", true, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", 86400, "Access-Control-Max-Age (seconds)")
	return cmd
}

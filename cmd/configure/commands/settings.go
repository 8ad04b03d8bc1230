package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/spf13/cobra"
)

// NewSettingsCmd groups the runtime settings the server hot-reloads
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage runtime settings stored in app_settings",
		Long:  "The API server reloads these settings every minute.",
	}
	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(NewCorsCmd())
	cmd.AddCommand(NewRatelimitCmd())
	return cmd
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every stored setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, e *env) error {
				repo := database.NewSettingsRepository(e.db)
				c, err := repo.GetCORS(ctx)
				if err != nil {
					return fmt.Errorf("failed to get cors settings: %w", err)
				}
				rl, err := repo.GetRateLimit(ctx)
				if err != nil {
					return fmt.Errorf("failed to get rate limit settings: %w", err)
				}
				printCORS(cmd.OutOrStdout(), c)
				printRateLimit(cmd.OutOrStdout(), rl)
				return nil
			})
		},
	}
}

func printCORS(w io.Writer, c *models.CORSSettings) {
	if c == nil {
		fmt.Fprintln(w, "CORS: not set (FRONTEND_URL is used). Use 'settings cors set' to add one.")
		return
	}
	fmt.Fprintln(w, "CORS configuration:")
	fmt.Fprintf(w, "  Allowed origins: %s\n", c.AllowedOrigins)
	fmt.Fprintf(w, "  Allow credentials: %v\n", c.AllowCredentials)
	fmt.Fprintf(w, "  Max-Age: %d\n", c.MaxAge)
}

func printRateLimit(w io.Writer, rl *models.RateLimitSettings) {
	if rl == nil {
		fmt.Fprintln(w, "Rate limit: not set (server default applies). Use 'settings ratelimit set' to add one.")
		return
	}
	fmt.Fprintln(w, "Rate limit configuration:")
	fmt.Fprintf(w, "  Rate: %s\n", rl.Rate)
}

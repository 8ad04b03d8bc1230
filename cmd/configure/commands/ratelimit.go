package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewRatelimitCmd creates the ratelimit configuration command with list and set subcommands
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "List or update the per-user rate limit (e.g. 5-S, 100-M). Stored in database.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, e *env) error {
				rl, err := database.NewSettingsRepository(e.db).GetRateLimit(ctx)
				if err != nil {
					return fmt.Errorf("failed to get rate limit settings: %w", err)
				}
				printRateLimit(cmd.OutOrStdout(), rl)
				return nil
			})
		},
	}
}

// parseRate checks the rate is in the format the server's limiter accepts
func parseRate(rate string) (string, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return "", fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
	}
	if _, err := limiter.NewRateFromFormatted(rate); err != nil {
		return "", fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	return rate, nil
}

func newRatelimitSetCmd() *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set rate limit configuration",
		Long:  "Update rate limit (e.g. 5-S, 100-M, 1000-H). Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRate(rate)
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, e *env) error {
				if err := database.NewSettingsRepository(e.db).SetRateLimit(ctx, &models.RateLimitSettings{Rate: r}); err != nil {
					return fmt.Errorf("failed to set rate limit settings: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rate limit configuration updated.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 1000-H) (required)")
	return cmd
}

package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/services/adherence"
	"github.com/benvon/smart-meds/internal/validation"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type adherenceReporter interface {
	GetAdherenceReport(ctx context.Context, userID uuid.UUID, start, end time.Time) (*adherence.Report, error)
}

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print reports for a user",
	}
	cmd.AddCommand(newAdherenceReportCmd())
	return cmd
}

type reportOptions struct {
	email string
	start string
	end   string
}

// reportRange resolves the flag dates, falling back to the default window ending today
func reportRange(start, end string, today time.Time) (time.Time, time.Time, error) {
	from, to := adherence.DefaultRange(today)
	var err error
	if start != "" {
		if from, err = validation.ParseDate(start); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end != "" {
		if to, err = validation.ParseDate(end); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, adherence.ErrInvalidRange
	}
	return from, to, nil
}

func newAdherenceReportCmd() *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "adherence",
		Short: "Print a user's adherence and punctuality report as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.email == "" {
				return fmt.Errorf("--user is required")
			}
			return withDB(cmd, func(ctx context.Context, e *env) error {
				service := adherence.NewService(
					database.NewUserMedicationRepository(e.db),
					database.NewMedicationLogRepository(e.db),
					database.NewInteractionAlertRepository(e.db),
					e.cfg.Location,
					e.logger,
				)
				return writeAdherenceReport(ctx, cmd.OutOrStdout(), database.NewUserRepository(e.db), service, opts, e.cfg.Now())
			})
		},
	}
	cmd.Flags().StringVar(&opts.email, "user", "", "Email of the user to report on (required)")
	cmd.Flags().StringVar(&opts.start, "start", "", "First day (YYYY-MM-DD), default 30 days ago")
	cmd.Flags().StringVar(&opts.end, "end", "", "Last day (YYYY-MM-DD), default today")
	return cmd
}

func writeAdherenceReport(
	ctx context.Context,
	w io.Writer,
	users database.UserRepositoryInterface,
	reports adherenceReporter,
	opts reportOptions,
	today time.Time,
) error {
	start, end, err := reportRange(opts.start, opts.end, today)
	if err != nil {
		return err
	}
	user, err := users.GetByEmail(ctx, opts.email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no user with email %q", opts.email)
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	report, err := reports.GetAdherenceReport(ctx, user.ID, start, end)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return enc.Close()
}

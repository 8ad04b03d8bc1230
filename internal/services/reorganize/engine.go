package reorganize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReminderScheduler regenerates dose reminders for a ledger entry
type ReminderScheduler interface {
	ScheduleReminders(ctx context.Context, userID uuid.UUID, userMedicationID int64, effectiveFrom time.Time) error
}

// Schedule is a requested new daily schedule for one catalog medication
type Schedule struct {
	MedicationID int64    `json:"medication_id"`
	NewTimeSlots []string `json:"new_time_slots"`
}

// Reorganized describes one updated ledger entry
type Reorganized struct {
	ID           int64    `json:"id"`
	MedicationID int64    `json:"medication_id"`
	Name         string   `json:"name"`
	OldTimeSlots []string `json:"old_time_slots"`
	NewTimeSlots []string `json:"new_time_slots"`
	StartDate    string   `json:"start_date"`
}

// Result is the outcome of a reorganization
type Result struct {
	Success                bool          `json:"success"`
	Message                string        `json:"message"`
	ReorganizedMedications []Reorganized `json:"reorganized_medications"`
	Error                  string        `json:"error,omitempty"`
}

// Engine rewrites daily schedules for a set of medications in one transaction
type Engine struct {
	userMeds  database.UserMedicationRepositoryInterface
	tx        database.TxRunner
	reminders ReminderScheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a new reorganization engine
func NewEngine(userMeds database.UserMedicationRepositoryInterface, tx database.TxRunner, reminders ReminderScheduler, logger *zap.Logger, now func() time.Time) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{userMeds: userMeds, tx: tx, reminders: reminders, logger: logger, now: now}
}

// ReorganizeMedications applies every schedule starting tomorrow. Unknown or inactive
// medications are skipped; any other failure rolls back every update in the call.
func (e *Engine) ReorganizeMedications(ctx context.Context, userID uuid.UUID, schedules []Schedule) *Result {
	ctx, span := telemetry.StartSpan(ctx, "reorganize.apply",
		attribute.String("user_id", userID.String()),
		attribute.Int("requested", len(schedules)),
	)
	result, err := e.reorganize(ctx, userID, schedules)
	if err != nil {
		e.logger.Error("reorganize_rolled_back",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		result = &Result{
			Message:                "I couldn't update your schedule, so nothing was changed. Please try again.",
			ReorganizedMedications: []Reorganized{},
			Error:                  err.Error(),
		}
	}
	span.SetAttributes(attribute.Int("reorganized", len(result.ReorganizedMedications)))
	telemetry.EndSpan(span, err)
	return result
}

func (e *Engine) reorganize(ctx context.Context, userID uuid.UUID, schedules []Schedule) (*Result, error) {
	if len(schedules) == 0 {
		return &Result{
			Message:                "No schedule changes were requested.",
			ReorganizedMedications: []Reorganized{},
		}, nil
	}

	normalized := make([][]string, len(schedules))
	for i, s := range schedules {
		slots, err := models.NormalizeTimeSlots(s.NewTimeSlots)
		if err != nil {
			return nil, fmt.Errorf("medication %d: %w", s.MedicationID, err)
		}
		if len(slots) == 0 {
			return nil, fmt.Errorf("medication %d: at least one time slot is required", s.MedicationID)
		}
		normalized[i] = slots
	}

	today := models.TruncateDay(e.now())
	tomorrow := today.AddDate(0, 0, 1)

	var updated []Reorganized
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i, s := range schedules {
			um, err := e.userMeds.GetActiveByMedication(ctx, userID, s.MedicationID, today)
			if errors.Is(err, sql.ErrNoRows) {
				e.logger.Warn("reorganize_skipped_unknown_medication",
					zap.String("user_id", userID.String()),
					zap.Int64("medication_id", s.MedicationID),
				)
				continue
			}
			if err != nil {
				return err
			}
			if err := e.userMeds.UpdateTimeSlots(ctx, um.ID, normalized[i], tomorrow); err != nil {
				return err
			}
			updated = append(updated, Reorganized{
				ID:           um.ID,
				MedicationID: um.MedicationID,
				Name:         um.MedicationName,
				OldTimeSlots: slices.Clone(um.TimeSlots),
				NewTimeSlots: normalized[i],
				StartDate:    tomorrow.Format(models.DateLayout),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reminders go out only once the new schedules are committed.
	for _, r := range updated {
		if e.reminders == nil {
			break
		}
		if err := e.reminders.ScheduleReminders(ctx, userID, r.ID, tomorrow); err != nil {
			e.logger.Error("reminder_reschedule_enqueue_failed",
				zap.Int64("user_medication_id", r.ID),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("reorganize_completed",
		zap.String("user_id", userID.String()),
		zap.Int("requested", len(schedules)),
		zap.Int("reorganized", len(updated)),
		zap.String("effective_from", tomorrow.Format(models.DateLayout)),
	)

	if updated == nil {
		updated = []Reorganized{}
	}
	msg := fmt.Sprintf("Updated %d medication schedule(s), effective %s.", len(updated), tomorrow.Format(models.DateLayout))
	if len(updated) == 0 {
		msg = "None of the requested medications are currently active, so no schedule was changed."
	}
	return &Result{Success: true, Message: msg, ReorganizedMedications: updated}, nil
}

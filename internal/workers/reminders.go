package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/queue"
	"github.com/benvon/smart-meds/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultHorizonDays is how many days of pending doses a refresh materializes
const DefaultHorizonDays = 7

// ErrForeignMedication means the job's ledger entry belongs to another user
var ErrForeignMedication = errors.New("user medication does not belong to job user")

// RescheduleOutcome summarizes one reminder refresh
type RescheduleOutcome struct {
	Deleted int64
	Created int
}

// ReminderRescheduler regenerates pending dose logs for ledger entries
type ReminderRescheduler struct {
	userMeds    database.UserMedicationRepositoryInterface
	logs        database.MedicationLogRepositoryInterface
	tx          database.TxRunner
	jobQueue    queue.JobQueue // for delayed retries
	loc         *time.Location
	horizonDays int
	logger      *zap.Logger
	now         func() time.Time
}

// NewReminderRescheduler creates a reminder worker. Slot times are interpreted in loc.
func NewReminderRescheduler(
	userMeds database.UserMedicationRepositoryInterface,
	logs database.MedicationLogRepositoryInterface,
	tx database.TxRunner,
	jobQueue queue.JobQueue,
	loc *time.Location,
	horizonDays int,
	logger *zap.Logger,
	now func() time.Time,
) *ReminderRescheduler {
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &ReminderRescheduler{
		userMeds:    userMeds,
		logs:        logs,
		tx:          tx,
		jobQueue:    jobQueue,
		loc:         loc,
		horizonDays: horizonDays,
		logger:      logger,
		now:         now,
	}
}

// ProcessJob dispatches a queued job and settles its message
func (r *ReminderRescheduler) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	switch job.Type {
	case queue.JobTypeRescheduleReminders:
		if err := r.processRescheduleJob(ctx, job); err != nil {
			return r.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // unknown job type, send to DLQ
			r.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (r *ReminderRescheduler) processRescheduleJob(ctx context.Context, job *queue.Job) error {
	if job.UserMedicationID == nil {
		return fmt.Errorf("user_medication_id is required for %s job", job.Type)
	}

	um, err := r.userMeds.GetByID(ctx, *job.UserMedicationID)
	if err != nil {
		return fmt.Errorf("failed to get user medication: %w", err)
	}
	if um.UserID != job.UserID {
		return ErrForeignMedication
	}

	from := um.StartDate
	if job.EffectiveFrom != nil {
		from = *job.EffectiveFrom
	}
	outcome, err := r.Reschedule(ctx, um, from)
	if err != nil {
		return err
	}

	r.logger.Info("reminders_rescheduled",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.Int64("user_medication_id", um.ID),
		zap.Int64("deleted", outcome.Deleted),
		zap.Int("created", outcome.Created),
	)
	return nil
}

// Reschedule replaces the pending doses of um scheduled on or after from with fresh ones
// built from its current time slots. Doses already past are never created.
func (r *ReminderRescheduler) Reschedule(ctx context.Context, um *models.UserMedication, from time.Time) (outcome RescheduleOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reminders.reschedule",
		attribute.Int64("user_medication.id", um.ID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	from = models.TruncateDay(from)
	if start := models.TruncateDay(um.StartDate); start.After(from) {
		from = start
	}
	scheduled := r.doseTimes(um, from)

	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		deleted, err := r.logs.DeletePendingFrom(ctx, um.ID, r.instant(from, 0, 0))
		if err != nil {
			return err
		}
		if err := r.logs.CreatePending(ctx, um.ID, scheduled); err != nil {
			return err
		}
		outcome = RescheduleOutcome{Deleted: deleted, Created: len(scheduled)}
		return nil
	})
	if err != nil {
		return RescheduleOutcome{}, fmt.Errorf("failed to reschedule reminders for medication %d: %w", um.ID, err)
	}
	return outcome, nil
}

// doseTimes lists every future slot instant of um in [from, from+horizon), clipped at the end date
func (r *ReminderRescheduler) doseTimes(um *models.UserMedication, from time.Time) []time.Time {
	if !um.Active {
		return nil
	}
	now := r.now()
	var out []time.Time
	for i := 0; i < r.horizonDays; i++ {
		day := from.AddDate(0, 0, i)
		if um.EndDate != nil && day.After(models.TruncateDay(*um.EndDate)) {
			break
		}
		for _, slot := range um.TimeSlots {
			t, err := time.Parse(models.TimeSlotLayout, slot)
			if err != nil {
				r.logger.Warn("reminder_slot_invalid",
					zap.Int64("user_medication_id", um.ID),
					zap.String("slot", slot),
				)
				continue
			}
			at := r.instant(day, t.Hour(), t.Minute())
			if at.Before(now) {
				continue
			}
			out = append(out, at)
		}
	}
	return out
}

// instant places the calendar date day at hour:minute in the configured zone
func (r *ReminderRescheduler) instant(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, r.loc)
}

// handleJobError retries transient failures with backoff and dead-letters the rest
func (r *ReminderRescheduler) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(err),
	}

	// Missing or foreign ledger entries will never succeed
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrForeignMedication) || job.UserMedicationID == nil {
		r.logger.Warn("reminder_job_dropped", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			r.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("reminder job %s dropped: %w", job.ID, err)
	}

	if !job.CanRetry() {
		r.logger.Error("reminder_job_exhausted", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			r.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("reminder job %s exhausted retries: %w", job.ID, err)
	}

	if r.jobQueue == nil {
		job.IncrementRetry()
		if nackErr := msg.Nack(true); nackErr != nil {
			r.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("reminder job %s requeued: %w", job.ID, err)
	}

	delay := RetryDelay(job.RetryCount)
	notBefore := r.now().Add(delay)
	retry := *job
	retry.RetryCount = job.RetryCount + 1
	retry.NotBefore = &notBefore

	if enqueueErr := r.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
		r.logger.Error("reminder_job_requeue_failed", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
		if nackErr := msg.Nack(true); nackErr != nil {
			r.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue reminder job %s: %w", job.ID, enqueueErr)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		r.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}
	r.logger.Warn("reminder_job_retry_scheduled", append(fields, zap.Duration("delay", delay))...)
	return fmt.Errorf("reminder job %s retry scheduled: %w", job.ID, err)
}

// RetryDelay is the exponential backoff before retry attempt+1, capped at five minutes
func RetryDelay(attempt int) time.Duration {
	shift := min(max(attempt, 0), 6)
	return min(5*time.Second*time.Duration(1<<uint(shift)), 5*time.Minute)
}

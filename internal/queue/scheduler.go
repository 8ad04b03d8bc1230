package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scheduler turns reminder refresh requests into queued jobs
type Scheduler struct {
	queue JobQueue
}

// NewScheduler creates a scheduler publishing to q
func NewScheduler(q JobQueue) *Scheduler {
	return &Scheduler{queue: q}
}

// ScheduleReminders enqueues a reschedule_reminders job for one ledger entry
func (s *Scheduler) ScheduleReminders(ctx context.Context, userID uuid.UUID, userMedicationID int64, effectiveFrom time.Time) error {
	job := NewRescheduleRemindersJob(userID, userMedicationID, effectiveFrom)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue reminder job for medication %d: %w", userMedicationID, err)
	}
	return nil
}

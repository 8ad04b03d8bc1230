package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeRescheduleReminders regenerates the pending dose logs of one ledger entry
	JobTypeRescheduleReminders JobType = "reschedule_reminders"
)

// DefaultMaxRetries is the retry budget of a new job
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID               uuid.UUID      `json:"id"`
	Type             JobType        `json:"type"`
	UserID           uuid.UUID      `json:"user_id"`
	UserMedicationID *int64         `json:"user_medication_id,omitempty"`
	EffectiveFrom    *time.Time     `json:"effective_from,omitempty"` // calendar date, UTC midnight
	NotBefore        *time.Time     `json:"not_before,omitempty"`     // Earliest time to process job (nil = immediate)
	NotAfter         *time.Time     `json:"not_after,omitempty"`      // Latest time to process job (nil = no expiration)
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	RetryCount       int            `json:"retry_count"`
	MaxRetries       int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewRescheduleRemindersJob creates a job regenerating reminders of a ledger entry from effectiveFrom on
func NewRescheduleRemindersJob(userID uuid.UUID, userMedicationID int64, effectiveFrom time.Time) *Job {
	job := NewJob(JobTypeRescheduleReminders, userID)
	y, m, d := effectiveFrom.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	job.UserMedicationID = &userMedicationID
	job.EffectiveFrom = &from
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewRescheduleRemindersJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	from := time.Date(2026, 3, 14, 18, 45, 0, 0, time.FixedZone("EST", -5*3600))

	job := NewRescheduleRemindersJob(userID, 42, from)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeRescheduleReminders {
		t.Errorf("Expected job type %s, got %s", JobTypeRescheduleReminders, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, job.UserID)
	}
	if job.UserMedicationID == nil || *job.UserMedicationID != 42 {
		t.Errorf("Expected user medication ID 42, got %v", job.UserMedicationID)
	}
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if job.EffectiveFrom == nil || !job.EffectiveFrom.Equal(want) {
		t.Errorf("Expected effective_from %v, got %v", want, job.EffectiveFrom)
	}
	if job.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if job.RetryCount != 0 || job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected fresh retry budget, got %d/%d", job.RetryCount, job.MaxRetries)
	}
}

func TestJob_ShouldProcessAndIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name        string
		notBefore   *time.Time
		notAfter    *time.Time
		wantProcess bool
		wantExpired bool
	}{
		{name: "no time constraints", wantProcess: true},
		{name: "not before in past", notBefore: timePtr(now.Add(-time.Hour)), wantProcess: true},
		{name: "not before in future", notBefore: timePtr(now.Add(time.Hour)), wantProcess: false},
		{name: "not after in past", notAfter: timePtr(now.Add(-time.Hour)), wantProcess: false, wantExpired: true},
		{name: "not after in future", notAfter: timePtr(now.Add(time.Hour)), wantProcess: true},
		{
			name:        "inside window",
			notBefore:   timePtr(now.Add(-time.Hour)),
			notAfter:    timePtr(now.Add(time.Hour)),
			wantProcess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := NewJob(JobTypeRescheduleReminders, uuid.New())
			job.NotBefore = tt.notBefore
			job.NotAfter = tt.notAfter
			if got := job.ShouldProcess(); got != tt.wantProcess {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.wantProcess)
			}
			if got := job.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestJob_RetryBudget(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeRescheduleReminders, uuid.New())
	for i := 0; i < DefaultMaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("CanRetry() = false after %d retries", i)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Errorf("CanRetry() = true with RetryCount=%d MaxRetries=%d", job.RetryCount, job.MaxRetries)
	}
}

type recordingQueue struct {
	jobs []*Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job *Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Consume(context.Context, int) (<-chan *Message, <-chan error, error) {
	return nil, nil, errors.New("not supported")
}

func (q *recordingQueue) Close() error                      { return nil }
func (q *recordingQueue) HealthCheck(context.Context) error { return nil }

func TestScheduler_ScheduleReminders(t *testing.T) {
	t.Parallel()

	t.Run("enqueues job", func(t *testing.T) {
		t.Parallel()
		q := &recordingQueue{}
		userID := uuid.New()
		from := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

		if err := NewScheduler(q).ScheduleReminders(context.Background(), userID, 7, from); err != nil {
			t.Fatalf("ScheduleReminders() error = %v", err)
		}
		if len(q.jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(q.jobs))
		}
		job := q.jobs[0]
		if job.Type != JobTypeRescheduleReminders || job.UserID != userID || *job.UserMedicationID != 7 {
			t.Errorf("unexpected job %+v", job)
		}
		if !job.EffectiveFrom.Equal(from) {
			t.Errorf("effective_from = %v, want %v", job.EffectiveFrom, from)
		}
	})

	t.Run("wraps enqueue failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("broker down")
		err := NewScheduler(&recordingQueue{err: boom}).ScheduleReminders(context.Background(), uuid.New(), 1, time.Now())
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped %v", err, boom)
		}
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}

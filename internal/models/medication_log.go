package models

import "time"

// LogStatus represents the state of one scheduled dose
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusTaken   LogStatus = "taken"
	LogStatusMissed  LogStatus = "missed"
	LogStatusSkipped LogStatus = "skipped"
)

// IsLost reports whether the dose counts as lost (missed or skipped)
func (s LogStatus) IsLost() bool {
	return s == LogStatusMissed || s == LogStatusSkipped
}

// MedicationLog is one scheduled-dose occurrence of a UserMedication
type MedicationLog struct {
	ID               int64      `json:"id"`
	UserMedicationID int64      `json:"user_medication_id"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	TakenAt          *time.Time `json:"taken_at,omitempty"`
	Status           LogStatus  `json:"status"`
	Notes            *string    `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

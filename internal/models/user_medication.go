package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// UserMedication is an entry in a patient's medication ledger
type UserMedication struct {
	ID                    int64      `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	MedicationID          int64      `json:"medication_id"`
	MedicationName        string     `json:"medication_name"`
	Dosage                string     `json:"dosage"`
	TimeSlots             []string   `json:"time_slots"` // sorted "HH:MM"
	Route                 string     `json:"route"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date,omitempty"`
	ScheduleEffectiveFrom *time.Time `json:"schedule_effective_from,omitempty"`
	InitialStock          int        `json:"initial_stock"`
	CurrentStock          int        `json:"current_stock"`
	LowStockThreshold     int        `json:"low_stock_threshold"`
	Active                bool       `json:"active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsActiveOn reports whether the entry is active and its window contains day
func (um *UserMedication) IsActiveOn(day time.Time) bool {
	if !um.Active {
		return false
	}
	d := TruncateDay(day)
	if TruncateDay(um.StartDate).After(d) {
		return false
	}
	if um.EndDate != nil && TruncateDay(*um.EndDate).Before(d) {
		return false
	}
	return true
}

// IsLowStock reports whether current stock is at or below the threshold
func (um *UserMedication) IsLowStock() bool {
	return um.CurrentStock <= um.LowStockThreshold
}

// TruncateDay returns t's calendar date (in t's location) as midnight UTC, the
// representation used for every DATE column.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimeSlotLayout is the "HH:MM" 24h format of a daily time slot
const TimeSlotLayout = "15:04"

// NormalizeTimeSlots validates "HH:MM" slots and returns them de-duplicated and sorted
func NormalizeTimeSlots(slots []string) ([]string, error) {
	seen := make(map[string]bool, len(slots))
	out := make([]string, 0, len(slots))
	for _, raw := range slots {
		t, err := time.Parse(TimeSlotLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid time slot %q: expected HH:MM", raw)
		}
		slot := t.Format(TimeSlotLayout)
		if !seen[slot] {
			seen[slot] = true
			out = append(out, slot)
		}
	}
	sort.Strings(out)
	return out, nil
}

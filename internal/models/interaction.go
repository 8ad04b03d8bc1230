package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the clinical severity of a drug interaction
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
	SeverityNone     Severity = "none"
)

// RaisesAlert reports whether interactions of this severity produce a user alert
func (s Severity) RaisesAlert() bool {
	return s == SeveritySevere || s == SeverityModerate
}

// InteractionFact is the cached evaluation of one ordered catalog pair. Facts are
// always written for both orderings.
type InteractionFact struct {
	MedicationID    int64     `json:"medication_id"`
	InteractsWithID int64     `json:"interacts_with_id"`
	HasInteraction  bool      `json:"has_interaction"`
	Severity        Severity  `json:"severity"`
	Description     string    `json:"description"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// Reversed returns the fact seen from the other medication
func (f InteractionFact) Reversed() InteractionFact {
	f.MedicationID, f.InteractsWithID = f.InteractsWithID, f.MedicationID
	return f
}

// InteractionAlert is a user-facing record raised for a severe or moderate interaction.
// AcknowledgedAt nil means the alert is still active.
type InteractionAlert struct {
	ID              int64      `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Medication1ID   int64      `json:"medication_1_id"`
	Medication2ID   int64      `json:"medication_2_id"`
	Medication1Name string     `json:"medication_1_name,omitempty"`
	Medication2Name string     `json:"medication_2_name,omitempty"`
	Severity        Severity   `json:"severity"`
	Description     string     `json:"description"`
	Recommendation  string     `json:"recommendation"`
	DetectedAt      time.Time  `json:"detected_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
}

// Involves reports whether the alert references the catalog medication
func (a *InteractionAlert) Involves(medicationID int64) bool {
	return a.Medication1ID == medicationID || a.Medication2ID == medicationID
}

// Other returns the id of the alert's other medication
func (a *InteractionAlert) Other(medicationID int64) int64 {
	if a.Medication1ID == medicationID {
		return a.Medication2ID
	}
	return a.Medication1ID
}

// Package adherence derives adherence and punctuality metrics from a user's
// medication ledger and dose logs over a date range.
package adherence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// PunctualityThreshold is the largest distance between taken and scheduled time that still counts as on time
	PunctualityThreshold = 30 * time.Minute
	// DefaultRangeDays is the report length when no range is given
	DefaultRangeDays = 30
)

// ErrInvalidRange is returned when the start date falls after the end date
var ErrInvalidRange = errors.New("start date must not be after end date")

// InteractionRef is an interaction affecting one medication in the report
type InteractionRef struct {
	MedicationID   int64           `json:"medication_id" yaml:"medication_id"`
	MedicationName string          `json:"medication_name,omitempty" yaml:"medication_name,omitempty"`
	Severity       models.Severity `json:"severity" yaml:"severity"`
	Description    string          `json:"description" yaml:"description"`
}

// MedicationReport is the per-medication section of a report
type MedicationReport struct {
	UserMedicationID int64            `json:"user_medication_id" yaml:"user_medication_id"`
	MedicationID     int64            `json:"medication_id" yaml:"medication_id"`
	Name             string           `json:"name" yaml:"name"`
	Dosage           string           `json:"dosage" yaml:"dosage"`
	TimeSlots        []string         `json:"time_slots" yaml:"time_slots"`
	EffectiveStart   string           `json:"effective_start" yaml:"effective_start"`
	EffectiveEnd     string           `json:"effective_end" yaml:"effective_end"`
	TotalScheduled   int              `json:"total_scheduled" yaml:"total_scheduled"`
	TotalTaken       int              `json:"total_taken" yaml:"total_taken"`
	TotalLost        int              `json:"total_lost" yaml:"total_lost"`
	TotalPending     int              `json:"total_pending" yaml:"total_pending"`
	PunctualCount    int              `json:"punctual_count" yaml:"punctual_count"`
	AdherenceRate    float64          `json:"adherence_rate" yaml:"adherence_rate"`
	PunctualityRate  float64          `json:"punctuality_rate" yaml:"punctuality_rate"`
	Interactions     []InteractionRef `json:"interactions" yaml:"interactions"`
}

// Report is an adherence report over [StartDate, EndDate]
type Report struct {
	StartDate       string             `json:"start_date" yaml:"start_date"`
	EndDate         string             `json:"end_date" yaml:"end_date"`
	AdherenceRate   float64            `json:"adherence_rate" yaml:"adherence_rate"`
	PunctualityRate float64            `json:"punctuality_rate" yaml:"punctuality_rate"`
	TotalScheduled  int                `json:"total_scheduled" yaml:"total_scheduled"`
	TotalTaken      int                `json:"total_taken" yaml:"total_taken"`
	TotalLost       int                `json:"total_lost" yaml:"total_lost"`
	TotalPending    int                `json:"total_pending" yaml:"total_pending"`
	PunctualCount   int                `json:"punctual_count" yaml:"punctual_count"`
	Medications     []MedicationReport `json:"medications" yaml:"medications"`
}

// Service builds adherence reports
type Service struct {
	userMeds database.UserMedicationRepositoryInterface
	logs     database.MedicationLogRepositoryInterface
	alerts   database.InteractionAlertRepositoryInterface
	loc      *time.Location
	logger   *zap.Logger
}

// NewService creates an adherence service. loc is the zone whose midnights bound each
// report day; nil means UTC.
func NewService(
	userMeds database.UserMedicationRepositoryInterface,
	logs database.MedicationLogRepositoryInterface,
	alerts database.InteractionAlertRepositoryInterface,
	loc *time.Location,
	logger *zap.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{userMeds: userMeds, logs: logs, alerts: alerts, loc: loc, logger: logger}
}

// DefaultRange returns the last DefaultRangeDays days ending on today
func DefaultRange(today time.Time) (time.Time, time.Time) {
	end := models.TruncateDay(today)
	return end.AddDate(0, 0, -(DefaultRangeDays - 1)), end
}

// Rate returns num/den as a percentage rounded half-up to two decimals, or 0 when den is 0
func Rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(num)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(den))).
		Round(2).
		InexactFloat64()
}

// DayCount is the number of calendar days in [start, end], never less than one
func DayCount(start, end time.Time) int {
	days := int(models.TruncateDay(end).Sub(models.TruncateDay(start)).Hours()/24) + 1
	return max(1, days)
}

// IsPunctual reports whether a taken dose was within PunctualityThreshold of its schedule
func IsPunctual(l *models.MedicationLog) bool {
	if l.Status != models.LogStatusTaken || l.TakenAt == nil {
		return false
	}
	d := l.TakenAt.Sub(l.ScheduledAt)
	if d < 0 {
		d = -d
	}
	return d <= PunctualityThreshold
}

// GetAdherenceReport computes the report for every medication active at some point in [start, end]
func (s *Service) GetAdherenceReport(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Report, error) {
	start, end = models.TruncateDay(start), models.TruncateDay(end)
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	ctx, span := telemetry.StartSpan(ctx, "adherence.report",
		attribute.String("user_id", userID.String()),
		attribute.String("start_date", start.Format(models.DateLayout)),
		attribute.String("end_date", end.Format(models.DateLayout)),
	)
	report, err := s.build(ctx, userID, start, end)
	telemetry.EndSpan(span, err)
	return report, err
}

func (s *Service) build(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Report, error) {
	entries, err := s.userMeds.ListOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications for report: %w", err)
	}
	alerts, err := s.alerts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction alerts for report: %w", err)
	}

	report := &Report{
		StartDate:   start.Format(models.DateLayout),
		EndDate:     end.Format(models.DateLayout),
		Medications: make([]MedicationReport, 0, len(entries)),
	}

	for _, um := range entries {
		effStart := maxTime(models.TruncateDay(um.StartDate), start)
		effEnd := end
		if um.EndDate != nil {
			effEnd = minTime(models.TruncateDay(*um.EndDate), end)
		}

		mr := MedicationReport{
			UserMedicationID: um.ID,
			MedicationID:     um.MedicationID,
			Name:             um.MedicationName,
			Dosage:           um.Dosage,
			TimeSlots:        um.TimeSlots,
			EffectiveStart:   effStart.Format(models.DateLayout),
			EffectiveEnd:     effEnd.Format(models.DateLayout),
			TotalScheduled:   DayCount(effStart, effEnd) * len(um.TimeSlots),
			Interactions:     interactionsFor(um.MedicationID, alerts),
		}

		logs, err := s.logs.ListInRange(ctx, um.ID, s.startOf(effStart), s.startOf(effEnd.AddDate(0, 0, 1)))
		if err != nil {
			return nil, fmt.Errorf("failed to list dose logs for medication %d: %w", um.ID, err)
		}
		for _, l := range logs {
			switch {
			case l.Status == models.LogStatusTaken:
				mr.TotalTaken++
				if IsPunctual(l) {
					mr.PunctualCount++
				}
			case l.Status.IsLost():
				mr.TotalLost++
			case l.Status == models.LogStatusPending:
				mr.TotalPending++
			}
		}
		mr.AdherenceRate = Rate(mr.TotalTaken, mr.TotalScheduled)
		mr.PunctualityRate = Rate(mr.PunctualCount, mr.TotalTaken)

		report.TotalScheduled += mr.TotalScheduled
		report.TotalTaken += mr.TotalTaken
		report.TotalLost += mr.TotalLost
		report.TotalPending += mr.TotalPending
		report.PunctualCount += mr.PunctualCount
		report.Medications = append(report.Medications, mr)
	}

	report.AdherenceRate = Rate(report.TotalTaken, report.TotalScheduled)
	report.PunctualityRate = Rate(report.PunctualCount, report.TotalTaken)

	s.logger.Debug("adherence_report_built",
		zap.String("user_id", userID.String()),
		zap.Int("medications", len(report.Medications)),
		zap.Int("total_scheduled", report.TotalScheduled),
		zap.Int("total_taken", report.TotalTaken),
	)
	return report, nil
}

// startOf converts a calendar date to midnight in the service zone
func (s *Service) startOf(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
}

func interactionsFor(medicationID int64, alerts []*models.InteractionAlert) []InteractionRef {
	out := []InteractionRef{}
	seen := make(map[int64]bool)
	for _, a := range alerts {
		if !a.Involves(medicationID) {
			continue
		}
		other := a.Other(medicationID)
		if seen[other] {
			continue
		}
		seen[other] = true
		name := a.Medication2Name
		if other == a.Medication1ID {
			name = a.Medication1Name
		}
		out = append(out, InteractionRef{
			MedicationID:   other,
			MedicationName: name,
			Severity:       a.Severity,
			Description:    a.Description,
		})
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

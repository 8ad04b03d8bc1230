package adherence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/smart-meds/internal/database/dbtest"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
)

// D is the last day of every report range below
var D = time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

func at(day time.Time, slot string) time.Time {
	t, _ := time.Parse(models.TimeSlotLayout, slot)
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func seedEntry(store *dbtest.Store, userID uuid.UUID, name string, start time.Time, slots ...string) *models.UserMedication {
	m := store.Medications.Add(&models.Medication{Name: name, Strength: "1 mg", Form: "tablet"})
	return store.UserMedications.Seed(&models.UserMedication{
		UserID:       userID,
		MedicationID: m.ID,
		Dosage:       "1 tablet",
		TimeSlots:    slots,
		StartDate:    start,
		Active:       true,
	})
}

func newService(store *dbtest.Store) *Service {
	return NewService(store.UserMedications, store.Logs, store.Alerts, time.UTC, nil)
}

func TestGetAdherenceReport_EndToEnd(t *testing.T) {
	t.Parallel()
	store := dbtest.NewStore()
	userID := uuid.New()
	x := seedEntry(store, userID, "Drug X", D.AddDate(0, 0, -10), "08:00", "14:00", "20:00")
	y := seedEntry(store, userID, "Drug Y", D.AddDate(0, 0, -10), "09:00", "21:00")

	start := D.AddDate(0, 0, -4)
	for day := start; !day.After(D); day = day.AddDate(0, 0, 1) {
		for _, slot := range x.TimeSlots {
			sched := at(day, slot)
			taken := sched.Add(5 * time.Minute)
			store.Logs.Seed(&models.MedicationLog{UserMedicationID: x.ID, ScheduledAt: sched, TakenAt: &taken, Status: models.LogStatusTaken})
		}
		for _, slot := range y.TimeSlots {
			store.Logs.Seed(&models.MedicationLog{UserMedicationID: y.ID, ScheduledAt: at(day, slot), Status: models.LogStatusMissed})
		}
	}
	// Outside the range; must be ignored.
	early := at(start.AddDate(0, 0, -1), "08:00")
	store.Logs.Seed(&models.MedicationLog{UserMedicationID: x.ID, ScheduledAt: early, TakenAt: &early, Status: models.LogStatusTaken})

	report, err := newService(store).GetAdherenceReport(context.Background(), userID, start, D)
	if err != nil {
		t.Fatalf("GetAdherenceReport() error = %v", err)
	}
	if report.TotalScheduled != 25 {
		t.Errorf("TotalScheduled = %d, want 25", report.TotalScheduled)
	}
	if report.TotalTaken != 15 || report.TotalLost != 10 || report.TotalPending != 0 {
		t.Errorf("taken/lost/pending = %d/%d/%d, want 15/10/0", report.TotalTaken, report.TotalLost, report.TotalPending)
	}
	if report.AdherenceRate != 60.00 {
		t.Errorf("AdherenceRate = %v, want 60.00", report.AdherenceRate)
	}
	if report.PunctualityRate != 100.00 {
		t.Errorf("PunctualityRate = %v, want 100.00", report.PunctualityRate)
	}
	if len(report.Medications) != 2 {
		t.Fatalf("expected 2 medication entries, got %d", len(report.Medications))
	}
	if got := report.Medications[1]; got.Name != "Drug Y" || got.AdherenceRate != 0 || got.PunctualityRate != 0 {
		t.Errorf("unexpected Drug Y entry: %+v", got)
	}
	if report.StartDate != "2026-07-16" || report.EndDate != "2026-07-20" {
		t.Errorf("range echoed as %s..%s", report.StartDate, report.EndDate)
	}
}

func TestGetAdherenceReport_StartingOnLastDay(t *testing.T) {
	t.Parallel()
	store := dbtest.NewStore()
	userID := uuid.New()
	seedEntry(store, userID, "Late Starter", D, "08:00", "20:00")

	report, err := newService(store).GetAdherenceReport(context.Background(), userID, D.AddDate(0, 0, -6), D)
	if err != nil {
		t.Fatalf("GetAdherenceReport() error = %v", err)
	}
	if report.TotalScheduled != 2 {
		t.Errorf("TotalScheduled = %d, want 2", report.TotalScheduled)
	}
	if len(report.Medications) != 1 || report.Medications[0].EffectiveStart != D.Format(models.DateLayout) {
		t.Errorf("unexpected entries %+v", report.Medications)
	}
}

func TestGetAdherenceReport_EndDateClipsWindow(t *testing.T) {
	t.Parallel()
	store := dbtest.NewStore()
	userID := uuid.New()
	um := seedEntry(store, userID, "Antibiotic", D.AddDate(0, 0, -20), "08:00")
	stop := D.AddDate(0, 0, -3)
	um.EndDate = &stop
	store.UserMedications.Seed(um)
	// Ended before the range: not part of the report.
	gone := seedEntry(store, userID, "Old Course", D.AddDate(0, 0, -40), "08:00")
	longAgo := D.AddDate(0, 0, -30)
	gone.EndDate = &longAgo
	store.UserMedications.Seed(gone)

	report, err := newService(store).GetAdherenceReport(context.Background(), userID, D.AddDate(0, 0, -9), D)
	if err != nil {
		t.Fatalf("GetAdherenceReport() error = %v", err)
	}
	if len(report.Medications) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(report.Medications))
	}
	// D-9 .. D-3 inclusive.
	if report.TotalScheduled != 7 {
		t.Errorf("TotalScheduled = %d, want 7", report.TotalScheduled)
	}
}

func TestGetAdherenceReport_InteractionsAreNotDateScoped(t *testing.T) {
	t.Parallel()
	store := dbtest.NewStore()
	userID := uuid.New()
	a := seedEntry(store, userID, "Warfarin", D.AddDate(0, 0, -5), "08:00")
	b := seedEntry(store, userID, "Aspirin", D.AddDate(0, 0, -5), "08:00")
	acked := D.AddDate(-1, 0, 0)
	store.Alerts.Seed(&models.InteractionAlert{
		UserID: userID, Medication1ID: b.MedicationID, Medication2ID: a.MedicationID,
		Severity: models.SeveritySevere, Description: "bleeding risk",
		DetectedAt: D.AddDate(-1, 0, 0), AcknowledgedAt: &acked,
	})

	report, err := newService(store).GetAdherenceReport(context.Background(), userID, D.AddDate(0, 0, -1), D)
	if err != nil {
		t.Fatalf("GetAdherenceReport() error = %v", err)
	}
	for _, mr := range report.Medications {
		if len(mr.Interactions) != 1 {
			t.Errorf("%s: expected 1 interaction, got %+v", mr.Name, mr.Interactions)
			continue
		}
		want := a.MedicationID
		if mr.MedicationID == a.MedicationID {
			want = b.MedicationID
		}
		if mr.Interactions[0].MedicationID != want || mr.Interactions[0].Severity != models.SeveritySevere {
			t.Errorf("%s: unexpected interaction %+v", mr.Name, mr.Interactions[0])
		}
	}
}

func TestGetAdherenceReport_InvalidRange(t *testing.T) {
	t.Parallel()
	_, err := newService(dbtest.NewStore()).GetAdherenceReport(context.Background(), uuid.New(), D, D.AddDate(0, 0, -1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestIsPunctual(t *testing.T) {
	t.Parallel()
	sched := at(D, "08:00")
	tests := []struct {
		name   string
		offset time.Duration
		status models.LogStatus
		want   bool
	}{
		{name: "exactly thirty minutes late", offset: 30 * time.Minute, status: models.LogStatusTaken, want: true},
		{name: "thirty one minutes late", offset: 31 * time.Minute, status: models.LogStatusTaken, want: false},
		{name: "thirty minutes early", offset: -30 * time.Minute, status: models.LogStatusTaken, want: true},
		{name: "thirty one minutes early", offset: -31 * time.Minute, status: models.LogStatusTaken, want: false},
		{name: "skipped dose", offset: 0, status: models.LogStatusSkipped, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			taken := sched.Add(tt.offset)
			l := &models.MedicationLog{ScheduledAt: sched, TakenAt: &taken, Status: tt.status}
			if got := IsPunctual(l); got != tt.want {
				t.Errorf("IsPunctual() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		num, den int
		want     float64
	}{
		{15, 25, 60},
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 8, 12.5},
	}
	for _, tt := range tests {
		if got := Rate(tt.num, tt.den); got != tt.want {
			t.Errorf("Rate(%d, %d) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestDayCount(t *testing.T) {
	t.Parallel()
	if got := DayCount(D, D); got != 1 {
		t.Errorf("DayCount(D, D) = %d, want 1", got)
	}
	if got := DayCount(D.AddDate(0, 0, -4), D); got != 5 {
		t.Errorf("DayCount(D-4, D) = %d, want 5", got)
	}
	if got := DayCount(D, D.AddDate(0, 0, -3)); got != 1 {
		t.Errorf("DayCount of inverted span = %d, want 1", got)
	}
}

func TestDefaultRange(t *testing.T) {
	t.Parallel()
	start, end := DefaultRange(D.Add(15 * time.Hour))
	if !end.Equal(D) || DayCount(start, end) != DefaultRangeDays {
		t.Errorf("DefaultRange() = %v..%v", start, end)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/benvon/smart-meds/internal/database/dbtest"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/adherence"
	"github.com/benvon/smart-meds/internal/services/interactions"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type fakeChecker func(ctx context.Context, userID uuid.UUID) *interactions.Result

func (f fakeChecker) CheckAllMedicationInteractions(ctx context.Context, userID uuid.UUID) *interactions.Result {
	return f(ctx, userID)
}

type fakeReorganizer func(ctx context.Context, userID uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result

func (f fakeReorganizer) ReorganizeMedications(ctx context.Context, userID uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result {
	return f(ctx, userID, schedules)
}

type fakeReporter func(ctx context.Context, userID uuid.UUID, start, end time.Time) (*adherence.Report, error)

func (f fakeReporter) GetAdherenceReport(ctx context.Context, userID uuid.UUID, start, end time.Time) (*adherence.Report, error) {
	return f(ctx, userID, start, end)
}

var testToday = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type medicationFixture struct {
	store       *dbtest.Store
	checker     fakeChecker
	reorganizer fakeReorganizer
	reporter    fakeReporter
}

func (f *medicationFixture) router() *mux.Router {
	if f.store == nil {
		f.store = dbtest.NewStore()
	}
	h := NewMedicationHandler(f.checker, f.store.Alerts, f.reorganizer, f.reporter, nil, func() time.Time { return testToday })
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/api/v1").Subrouter())
	return r
}

func TestMedicationHandler_CheckInteractions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     *interactions.Result
		wantStatus int
	}{
		{
			name:       "found",
			result:     &interactions.Result{Success: true, Message: "Found 1 interaction.", InteractionsFound: 1, SevereCount: 1, AlertsCreated: 1},
			wantStatus: http.StatusOK,
		},
		{
			name:       "fewer than two medications",
			result:     &interactions.Result{Message: "At least two active medications are needed to check for interactions."},
			wantStatus: http.StatusOK,
		},
		{
			name:       "evaluator aborted",
			result:     &interactions.Result{Message: "I couldn't finish checking.", Error: "rate limited"},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &medicationFixture{checker: func(context.Context, uuid.UUID) *interactions.Result { return tt.result }}
			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/interactions/check", nil), testUser()))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestMedicationHandler_Alerts(t *testing.T) {
	t.Parallel()

	user := testUser()
	other := testUser()
	store := dbtest.NewStore()
	mine := store.Alerts.Seed(&models.InteractionAlert{UserID: user.ID, Medication1ID: 1, Medication2ID: 2, Severity: models.SeveritySevere, Description: "bleeding risk"})
	theirs := store.Alerts.Seed(&models.InteractionAlert{UserID: other.ID, Medication1ID: 1, Medication2ID: 3, Severity: models.SeverityModerate})
	acked := time.Now()
	store.Alerts.Seed(&models.InteractionAlert{UserID: user.ID, Medication1ID: 4, Medication2ID: 5, Severity: models.SeverityModerate, AcknowledgedAt: &acked})

	f := &medicationFixture{store: store}
	router := f.router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil), user))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var alerts []models.InteractionAlert
	decodeEnvelope(t, w.Body, &alerts)
	if len(alerts) != 1 || alerts[0].ID != mine.ID {
		t.Fatalf("Expected only the unacknowledged alert, got %+v", alerts)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "own alert", path: "/api/v1/alerts/" + itoa(mine.ID) + "/acknowledge", wantStatus: http.StatusOK},
		{name: "other user's alert", path: "/api/v1/alerts/" + itoa(theirs.ID) + "/acknowledge", wantStatus: http.StatusNotFound},
		{name: "unknown id", path: "/api/v1/alerts/9999/acknowledge", wantStatus: http.StatusNotFound},
		{name: "bad id", path: "/api/v1/alerts/abc/acknowledge", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, withUser(httptest.NewRequest(http.MethodPost, tt.path, nil), user))
		if w.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.wantStatus, w.Code)
		}
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil), user))
	alerts = nil
	decodeEnvelope(t, w.Body, &alerts)
	if len(alerts) != 0 {
		t.Errorf("Expected no unacknowledged alerts after acknowledge, got %d", len(alerts))
	}
}

func TestMedicationHandler_Reorganize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		result     *reorganize.Result
		wantStatus int
		wantCalled bool
	}{
		{
			name: "ok",
			body: map[string]any{
				"schedules": []map[string]any{{"medication_id": 7, "new_time_slots": []string{"20:00", "08:00"}}},
				"reason":    "twice daily",
			},
			result:     &reorganize.Result{Success: true, Message: "Updated 1 medication schedule(s)."},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "empty schedules",
			body:       map[string]any{"schedules": []any{}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad slot",
			body:       map[string]any{"schedules": []map[string]any{{"medication_id": 7, "new_time_slots": []string{"25:00"}}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing medication id",
			body:       map[string]any{"schedules": []map[string]any{{"new_time_slots": []string{"08:00"}}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rolled back",
			body:       map[string]any{"schedules": []map[string]any{{"medication_id": 7, "new_time_slots": []string{"08:00"}}}},
			result:     &reorganize.Result{Message: "I couldn't update your schedule, so nothing was changed.", Error: "tx failed"},
			wantStatus: http.StatusInternalServerError,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			f := &medicationFixture{reorganizer: func(_ context.Context, _ uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result {
				called = true
				if len(schedules) != 1 || schedules[0].MedicationID != 7 {
					t.Errorf("unexpected schedules %+v", schedules)
				}
				return tt.result
			}}
			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, withUser(newTestRequest(http.MethodPost, "/api/v1/medications/reorganize", tt.body), testUser()))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if called != tt.wantCalled {
				t.Errorf("reorganizer called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestMedicationHandler_Adherence(t *testing.T) {
	t.Parallel()

	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		query      string
		reportErr  error
		wantStatus int
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{name: "default range", wantStatus: http.StatusOK, wantStart: day(2026, 2, 9), wantEnd: day(2026, 3, 10)},
		{name: "explicit range", query: "?start_date=2026-03-01&end_date=2026-03-07", wantStatus: http.StatusOK, wantStart: day(2026, 3, 1), wantEnd: day(2026, 3, 7)},
		{name: "bad date", query: "?start_date=03/01/2026", wantStatus: http.StatusBadRequest},
		{name: "start after end", query: "?start_date=2026-03-08&end_date=2026-03-01", reportErr: adherence.ErrInvalidRange, wantStatus: http.StatusBadRequest, wantStart: day(2026, 3, 8), wantEnd: day(2026, 3, 1)},
		{name: "store failure", reportErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantStart: day(2026, 2, 9), wantEnd: day(2026, 3, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &medicationFixture{reporter: func(_ context.Context, _ uuid.UUID, start, end time.Time) (*adherence.Report, error) {
				if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
					t.Errorf("range = %s..%s, want %s..%s", start, end, tt.wantStart, tt.wantEnd)
				}
				if tt.reportErr != nil {
					return nil, tt.reportErr
				}
				return &adherence.Report{StartDate: start.Format(models.DateLayout), EndDate: end.Format(models.DateLayout), Medications: []adherence.MedicationReport{}}, nil
			}}
			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/adherence"+tt.query, nil), testUser()))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

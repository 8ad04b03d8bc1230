package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/adherence"
	"github.com/benvon/smart-meds/internal/services/interactions"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/benvon/smart-meds/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// InteractionChecker runs a full interaction check for a user
type InteractionChecker interface {
	CheckAllMedicationInteractions(ctx context.Context, userID uuid.UUID) *interactions.Result
}

// Reorganizer applies schedule changes for a user
type Reorganizer interface {
	ReorganizeMedications(ctx context.Context, userID uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result
}

// AdherenceReporter builds adherence reports
type AdherenceReporter interface {
	GetAdherenceReport(ctx context.Context, userID uuid.UUID, start, end time.Time) (*adherence.Report, error)
}

var (
	_ InteractionChecker = (*interactions.Engine)(nil)
	_ Reorganizer        = (*reorganize.Engine)(nil)
	_ AdherenceReporter  = (*adherence.Service)(nil)
)

// MedicationHandler serves interaction checks, alerts, reorganization and adherence reports
type MedicationHandler struct {
	checker     InteractionChecker
	alerts      database.InteractionAlertRepositoryInterface
	reorganizer Reorganizer
	reports     AdherenceReporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewMedicationHandler creates a new medication handler. now supplies "today" in the service time zone.
func NewMedicationHandler(
	checker InteractionChecker,
	alerts database.InteractionAlertRepositoryInterface,
	reorganizer Reorganizer,
	reports AdherenceReporter,
	logger *zap.Logger,
	now func() time.Time,
) *MedicationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &MedicationHandler{
		checker:     checker,
		alerts:      alerts,
		reorganizer: reorganizer,
		reports:     reports,
		logger:      logger,
		now:         now,
	}
}

// RegisterRoutes registers medication routes. The router should already have the /api/v1 prefix.
func (h *MedicationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/interactions/check", h.CheckInteractions).Methods(http.MethodPost)
	r.HandleFunc("/alerts", h.ListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods(http.MethodPost)
	r.HandleFunc("/medications/reorganize", h.Reorganize).Methods(http.MethodPost)
	r.HandleFunc("/adherence", h.Adherence).Methods(http.MethodGet)
}

// CheckInteractions evaluates every pair of the user's active medications
func (h *MedicationHandler) CheckInteractions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	result := h.checker.CheckAllMedicationInteractions(r.Context(), user.ID)
	// Preconditions such as "fewer than two medications" are not errors.
	if result.Error != "" {
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", result.Message)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListAlerts returns the user's unacknowledged alerts
func (h *MedicationHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	alerts, err := h.alerts.ListUnacknowledged(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("alert_list_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.InteractionAlert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

// AcknowledgeAlert marks one of the user's alerts as acknowledged
func (h *MedicationHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid alert ID")
		return
	}

	alert, err := h.alerts.Acknowledge(r.Context(), user.ID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Alert not found")
		return
	}
	if err != nil {
		h.logger.Error("alert_acknowledge_failed",
			zap.String("user_id", user.ID.String()),
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to acknowledge alert")
		return
	}
	h.logger.Info("alert_acknowledged", zap.String("user_id", user.ID.String()), zap.Int64("alert_id", id))
	respondJSON(w, http.StatusOK, alert)
}

// ScheduleRequest is one requested schedule in a reorganize request
type ScheduleRequest struct {
	MedicationID int64    `json:"medication_id" validate:"required,gt=0"`
	NewTimeSlots []string `json:"new_time_slots" validate:"required,min=1,dive,timeslot"`
}

// ReorganizeRequest represents a reorganize request
type ReorganizeRequest struct {
	Schedules []ScheduleRequest `json:"schedules" validate:"required,min=1,dive"`
	Reason    string            `json:"reason" validate:"max=1000"`
}

// Reorganize rewrites daily schedules starting tomorrow
func (h *MedicationHandler) Reorganize(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ReorganizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", validation.Describe(err))
		return
	}

	schedules := make([]reorganize.Schedule, len(req.Schedules))
	for i, s := range req.Schedules {
		schedules[i] = reorganize.Schedule{MedicationID: s.MedicationID, NewTimeSlots: s.NewTimeSlots}
	}
	h.logger.Info("reorganize_requested",
		zap.String("user_id", user.ID.String()),
		zap.Int("schedules", len(schedules)),
		zap.String("reason", validation.SanitizeText(req.Reason)),
	)

	result := h.reorganizer.ReorganizeMedications(r.Context(), user.ID, schedules)
	if result.Error != "" {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", result.Message)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Adherence returns the adherence report for ?start_date&end_date, defaulting to the last 30 days
func (h *MedicationHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end := adherence.DefaultRange(h.now())
	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		d, err := validation.ParseDate(v)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid start_date: expected YYYY-MM-DD")
			return
		}
		start = d
	}
	if v := q.Get("end_date"); v != "" {
		d, err := validation.ParseDate(v)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid end_date: expected YYYY-MM-DD")
			return
		}
		end = d
	}

	report, err := h.reports.GetAdherenceReport(r.Context(), user.ID, start, end)
	if errors.Is(err, adherence.ErrInvalidRange) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("adherence_report_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to build adherence report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

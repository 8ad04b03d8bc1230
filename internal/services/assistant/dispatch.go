package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/benvon/smart-meds/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ToolExecution is the outcome of the one tool run in a turn. Message is the rendered,
// user-facing text; Result is the structured payload kept for audit.
type ToolExecution struct {
	Tool    ToolName `json:"tool"`
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Result  any      `json:"result,omitempty"`
}

type scheduleArgs struct {
	MedicationID int64    `json:"medication_id" validate:"required"`
	NewTimeSlots []string `json:"new_time_slots" validate:"required,min=1,dive,timeslot"`
}

type reorganizeArgs struct {
	Schedules []scheduleArgs `json:"schedules" validate:"required,min=1,dive"`
	Reason    string         `json:"reason" validate:"required"`
}

const (
	phaseSearch = "search"
	phaseCommit = "commit"
)

type addMedicationArgs struct {
	Action string `json:"action"`
	Query  string `json:"query"`
	commitArgs
}

type commitArgs struct {
	MedicationID      int64    `json:"medication_id" validate:"required"`
	Dosage            string   `json:"dosage" validate:"required"`
	TimeSlots         []string `json:"time_slots" validate:"required,min=1,dive,timeslot"`
	Route             string   `json:"route" validate:"required"`
	StartDate         string   `json:"start_date" validate:"required,isodate"`
	EndDate           string   `json:"end_date,omitempty" validate:"omitempty,isodate"`
	InitialStock      *int     `json:"initial_stock" validate:"required,gte=0"`
	CurrentStock      *int     `json:"current_stock" validate:"required,gte=0"`
	LowStockThreshold *int     `json:"low_stock_threshold" validate:"required,gte=0"`
}

type searchResult struct {
	Success    bool                 `json:"success"`
	Phase      string               `json:"phase"`
	Query      string               `json:"query"`
	Candidates []*models.Medication `json:"candidates"`
	Message    string               `json:"message,omitempty"`
}

type addResult struct {
	Success       bool                   `json:"success"`
	Phase         string                 `json:"phase"`
	Message       string                 `json:"message,omitempty"`
	FieldsMissing []string               `json:"fields_missing,omitempty"`
	Medication    *models.UserMedication `json:"user_medication,omitempty"`
	StartDate     string                 `json:"-"`
}

func failedTool(tool ToolName, message string) *ToolExecution {
	return &ToolExecution{
		Tool:    tool,
		Message: message,
		Result:  map[string]any{"success": false, "message": message},
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode tool arguments: %w", err)
	}
	return nil
}

// executeTool runs one validated tool call. Failures, including panics, come back
// as an unsuccessful ToolExecution.
func (s *Service) executeTool(ctx context.Context, userID uuid.UUID, catalog *ToolCatalog, call ai.ToolCall) (exec *ToolExecution) {
	ctx, span := telemetry.StartSpan(ctx, "assistant.tool", attribute.String("tool", call.Name))
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool_execution_panic",
				zap.String("tool", call.Name),
				zap.Any("panic", r),
			)
			exec = failedTool(ToolName(call.Name), "Sorry, something went wrong while doing that. Please try again.")
		}
		span.SetAttributes(attribute.Bool("success", exec.Success))
		telemetry.EndSpan(span, nil)
	}()

	switch ToolName(call.Name) {
	case ToolCheckInteractions:
		res := s.interactions.CheckAllMedicationInteractions(ctx, userID)
		return &ToolExecution{
			Tool:    ToolCheckInteractions,
			Success: res.Success,
			Message: render(string(ToolCheckInteractions), res, res.Message),
			Result:  res,
		}
	case ToolReorganize:
		return s.runReorganize(ctx, userID, catalog, call.Arguments)
	case ToolAddMedication:
		return s.runAddMedication(ctx, userID, call.Arguments)
	default:
		return failedTool(ToolName(call.Name), "That action isn't available.")
	}
}

func (s *Service) runReorganize(ctx context.Context, userID uuid.UUID, catalog *ToolCatalog, raw json.RawMessage) *ToolExecution {
	var args reorganizeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failedTool(ToolReorganize, "I couldn't understand the schedule change. Please describe it again.")
	}
	if err := validation.Validate.Struct(args); err != nil {
		return failedTool(ToolReorganize, "I need the medications, their new times and a reason to change the schedule: "+validation.Describe(err)+".")
	}

	schedules := make([]reorganize.Schedule, 0, len(args.Schedules))
	for _, sa := range args.Schedules {
		if !catalog.AllowsMedication(sa.MedicationID) {
			s.logger.Warn("reorganize_rejected_foreign_medication",
				zap.String("user_id", userID.String()),
				zap.Int64("medication_id", sa.MedicationID),
			)
			return failedTool(ToolReorganize, "I can only change the schedule of medications you are currently taking.")
		}
		schedules = append(schedules, reorganize.Schedule{MedicationID: sa.MedicationID, NewTimeSlots: sa.NewTimeSlots})
	}

	res := s.reorganizer.ReorganizeMedications(ctx, userID, schedules)
	return &ToolExecution{
		Tool:    ToolReorganize,
		Success: res.Success,
		Message: render(string(ToolReorganize), res, res.Message),
		Result:  res,
	}
}

func (s *Service) runAddMedication(ctx context.Context, userID uuid.UUID, raw json.RawMessage) *ToolExecution {
	var args addMedicationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failedTool(ToolAddMedication, "I couldn't understand which medication to add. Please tell me its name.")
	}
	action := args.Action
	if action == "" {
		action = phaseCommit
		if args.Query != "" && args.MedicationID == 0 {
			action = phaseSearch
		}
	}

	switch action {
	case phaseSearch:
		return s.searchCatalog(ctx, args.Query)
	case phaseCommit:
		return s.commitMedication(ctx, userID, args.commitArgs)
	default:
		return failedTool(ToolAddMedication, "I couldn't understand which medication to add. Please tell me its name.")
	}
}

func (s *Service) searchCatalog(ctx context.Context, query string) *ToolExecution {
	query = validation.SanitizeText(query)
	if query == "" {
		res := &addResult{Phase: phaseSearch, FieldsMissing: []string{"query"}}
		return &ToolExecution{
			Tool:    ToolAddMedication,
			Message: "Which medication would you like to add?",
			Result:  res,
		}
	}
	meds, err := s.catalog.Search(ctx, query)
	if err != nil {
		s.logger.Error("catalog_search_failed", zap.Error(err))
		return failedTool(ToolAddMedication, "I couldn't search the medication catalog right now. Please try again.")
	}
	res := &searchResult{Success: true, Phase: phaseSearch, Query: query, Candidates: meds}
	if res.Candidates == nil {
		res.Candidates = []*models.Medication{}
	}
	return &ToolExecution{
		Tool:    ToolAddMedication,
		Success: true,
		Message: render("medication_search", res, ""),
		Result:  res,
	}
}

func (s *Service) commitMedication(ctx context.Context, userID uuid.UUID, args commitArgs) *ToolExecution {
	res := &addResult{Phase: phaseCommit}
	args.Dosage = validation.SanitizeText(args.Dosage)
	args.Route = validation.SanitizeText(args.Route)

	if err := validation.Validate.Struct(args); err != nil {
		if missing := validation.MissingFields(err); len(missing) > 0 {
			res.FieldsMissing = missing
			res.Message = "Some details are missing."
		} else {
			res.Message = "Some details don't look right: " + validation.Describe(err) + "."
		}
		return &ToolExecution{Tool: ToolAddMedication, Message: render("medication_added", res, res.Message), Result: res}
	}

	slots, err := models.NormalizeTimeSlots(args.TimeSlots)
	if err != nil {
		res.Message = "Some details don't look right: " + err.Error() + "."
		return &ToolExecution{Tool: ToolAddMedication, Message: res.Message, Result: res}
	}
	start, _ := validation.ParseDate(args.StartDate)
	um := &models.UserMedication{
		UserID:            userID,
		MedicationID:      args.MedicationID,
		Dosage:            args.Dosage,
		TimeSlots:         slots,
		Route:             args.Route,
		StartDate:         start,
		InitialStock:      *args.InitialStock,
		CurrentStock:      *args.CurrentStock,
		LowStockThreshold: *args.LowStockThreshold,
	}
	if args.EndDate != "" {
		end, _ := validation.ParseDate(args.EndDate)
		if end.Before(start) {
			res.Message = "The end date can't be before the start date."
			return &ToolExecution{Tool: ToolAddMedication, Message: res.Message, Result: res}
		}
		um.EndDate = &end
	}

	med, err := s.catalog.FindByID(ctx, args.MedicationID)
	if errors.Is(err, sql.ErrNoRows) {
		res.Message = "I couldn't find that medication in the catalog. Let's search for it again."
		return &ToolExecution{Tool: ToolAddMedication, Message: res.Message, Result: res}
	}
	if err != nil {
		s.logger.Error("catalog_lookup_failed", zap.Int64("medication_id", args.MedicationID), zap.Error(err))
		return failedTool(ToolAddMedication, "I couldn't reach the medication catalog right now. Please try again.")
	}

	if err := s.userMeds.Create(ctx, um); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			res.Message = fmt.Sprintf("%s is already on your medication list.", med.DisplayName())
			return &ToolExecution{Tool: ToolAddMedication, Message: res.Message, Result: res}
		}
		s.logger.Error("user_medication_create_failed", zap.String("user_id", userID.String()), zap.Error(err))
		return failedTool(ToolAddMedication, "I couldn't save that medication. Please try again.")
	}
	um.MedicationName = med.Name

	from := maxDay(start, s.now())
	if s.reminders != nil {
		if err := s.reminders.ScheduleReminders(ctx, userID, um.ID, from); err != nil {
			s.logger.Error("reminder_schedule_enqueue_failed", zap.Int64("user_medication_id", um.ID), zap.Error(err))
		}
	}

	s.logger.Info("user_medication_added",
		zap.String("user_id", userID.String()),
		zap.Int64("user_medication_id", um.ID),
		zap.Int64("medication_id", um.MedicationID),
	)
	res.Success = true
	res.Medication = um
	res.StartDate = start.Format(models.DateLayout)
	res.Message = fmt.Sprintf("Added %s.", med.DisplayName())
	return &ToolExecution{
		Tool:    ToolAddMedication,
		Success: true,
		Message: render("medication_added", res, res.Message),
		Result:  res,
	}
}

func maxDay(day, now time.Time) time.Time {
	today := models.TruncateDay(now)
	if day.Before(today) {
		return today
	}
	return day
}

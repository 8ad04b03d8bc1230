// Package assistant runs conversational turns: it persists chat history, builds a
// caller-scoped prompt and tool catalog, calls the reasoning service and executes
// at most one requested tool per turn.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/services/interactions"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/benvon/smart-meds/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// DefaultHistoryWindow is how many prior messages are sent as context
	DefaultHistoryWindow = 20
	// MaxMessageLength caps a single user message
	MaxMessageLength = 4000
)

var (
	// ErrEmptyMessage is returned for a blank user message
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
)

// InteractionChecker runs a full interaction check for a user
type InteractionChecker interface {
	CheckAllMedicationInteractions(ctx context.Context, userID uuid.UUID) *interactions.Result
}

// Reorganizer applies schedule changes for a user
type Reorganizer interface {
	ReorganizeMedications(ctx context.Context, userID uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result
}

// Catalog resolves catalog medications
type Catalog interface {
	FindByID(ctx context.Context, id int64) (*models.Medication, error)
	Search(ctx context.Context, text string) ([]*models.Medication, error)
}

// Config holds the reasoning-service parameters of a turn
type Config struct {
	Model         string
	Temperature   float64
	HistoryWindow int
}

// Deps are the collaborators of the Service
type Deps struct {
	Chat         database.ChatRepositoryInterface
	UserMeds     database.UserMedicationRepositoryInterface
	Alerts       database.InteractionAlertRepositoryInterface
	Provider     ai.ChatProvider
	Interactions InteractionChecker
	Reorganizer  Reorganizer
	Catalog      Catalog
	Reminders    reorganize.ReminderScheduler
}

// Service is the conversational assistant orchestrator
type Service struct {
	chat         database.ChatRepositoryInterface
	userMeds     database.UserMedicationRepositoryInterface
	alerts       database.InteractionAlertRepositoryInterface
	provider     ai.ChatProvider
	interactions InteractionChecker
	reorganizer  Reorganizer
	catalog      Catalog
	reminders    reorganize.ReminderScheduler
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a new assistant service
func NewService(deps Deps, cfg Config, logger *zap.Logger, now func() time.Time) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		chat:         deps.Chat,
		userMeds:     deps.UserMeds,
		alerts:       deps.Alerts,
		provider:     deps.Provider,
		interactions: deps.Interactions,
		reorganizer:  deps.Reorganizer,
		catalog:      deps.Catalog,
		reminders:    deps.Reminders,
		cfg:          cfg,
		logger:       logger,
		now:          now,
	}
}

// TurnResult is the outcome of a non-streaming turn
type TurnResult struct {
	UserMessage      *models.ChatMessage `json:"user_message"`
	AssistantMessage *models.ChatMessage `json:"assistant_message"`
	ToolExecution    *ToolExecution      `json:"tool_execution,omitempty"`
}

// turn is the prepared context of one exchange
type turn struct {
	userID  uuid.UUID
	session *models.ChatSession
	request *ai.CompletionRequest
	catalog *ToolCatalog
	started time.Time
}

// History returns the user's conversation, oldest first
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]*models.ChatMessage, error) {
	session, err := s.chat.GetOrCreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.chat.ListAll(ctx, session.ID)
}

// Clear wipes the user's messages and keeps the session
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	session, err := s.chat.GetOrCreateSession(ctx, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.chat.ClearMessages(ctx, session.ID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("chat_cleared", zap.String("user_id", userID.String()), zap.Int64("messages", n))
	return n, nil
}

func cleanMessage(text string) (string, error) {
	text = validation.SanitizeText(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// begin persists the user message. It is the only step whose failure aborts a turn.
func (s *Service) begin(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (*turn, *models.ChatMessage, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.chat.GetOrCreateSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	msg := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.ChatRoleUser,
		Content:   text,
		Metadata:  models.MessageMetadata{IsSuggestion: isSuggestion},
	}
	if err := s.chat.AddMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	return &turn{userID: userID, session: session, started: time.Now()}, msg, nil
}

// prepare loads history, medications and alerts and builds the request and tool catalog
func (s *Service) prepare(ctx context.Context, t *turn) error {
	history, err := s.chat.ListRecent(ctx, t.session.ID, s.cfg.HistoryWindow)
	if err != nil {
		return err
	}
	active, err := s.userMeds.ListActive(ctx, t.userID, s.now())
	if err != nil {
		return err
	}
	alerts, err := s.alerts.ListUnacknowledged(ctx, t.userID, models.SeveritySevere, models.SeverityModerate)
	if err != nil {
		return err
	}

	t.catalog = BuildToolCatalog(active)
	messages := make([]ai.ChatMessage, 0, len(history)+1)
	messages = append(messages, ai.ChatMessage{Role: models.ChatRoleSystem, Content: BuildSystemPrompt(s.now(), active, alerts)})
	for _, m := range history {
		messages = append(messages, ai.ChatMessage{Role: m.Role, Content: HistoryContent(m)})
	}
	t.request = &ai.CompletionRequest{
		Messages:    messages,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		Tools:       t.catalog.Definitions(),
	}
	return nil
}

// SendMessage runs one non-streaming turn. Generation and tool failures are reported
// in the assistant message; an error is returned only when a message cannot be persisted.
func (s *Service) SendMessage(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (*TurnResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "assistant.send_message",
		attribute.String("user_id", userID.String()),
		attribute.Bool("is_suggestion", isSuggestion),
	)
	result, err := s.sendMessage(ctx, userID, text, isSuggestion)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) sendMessage(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (*TurnResult, error) {
	t, userMsg, err := s.begin(ctx, userID, text, isSuggestion)
	if err != nil {
		return nil, err
	}
	result := &TurnResult{UserMessage: userMsg}
	reply := &models.ChatMessage{SessionID: t.session.ID, Role: models.ChatRoleAssistant}

	var resp *ai.CompletionResponse
	err = s.prepare(ctx, t)
	if err == nil {
		resp, err = s.provider.ChatCompletion(ctx, t.request)
	}
	if err != nil {
		s.logger.Error("assistant_generation_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		reply.Content = ai.UserFacingMessage(err)
		reply.Metadata.Error = err.Error()
	} else {
		reply.Metadata.Model = resp.Model
		reply.Metadata.Usage = &resp.Usage
		result.ToolExecution = s.finish(ctx, t, reply, resp.Content, resp.ToolCalls)
	}
	reply.Metadata.LatencyMs = time.Since(t.started).Milliseconds()

	if err := s.chat.AddMessage(context.WithoutCancel(ctx), reply); err != nil {
		return nil, err
	}
	result.AssistantMessage = reply
	s.logTurn(t, reply, result.ToolExecution)
	return result, nil
}

// finish dispatches the first recognized tool call, if any, and sets the reply content
func (s *Service) finish(ctx context.Context, t *turn, reply *models.ChatMessage, content string, calls []ai.ToolCall) *ToolExecution {
	for _, c := range calls {
		reply.Metadata.ToolCalls = append(reply.Metadata.ToolCalls, models.ToolCallRecord{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	content = strings.TrimSpace(content)

	call, ok := t.catalog.SelectToolCall(calls)
	if !ok {
		if len(calls) > 0 {
			s.logger.Warn("tool_call_ignored",
				zap.String("user_id", t.userID.String()),
				zap.String("tool", calls[0].Name),
			)
		}
		if content == "" {
			content = "Sorry, I don't have an answer for that. Could you rephrase?"
		}
		reply.Content = content
		return nil
	}

	exec := s.executeTool(ctx, t.userID, t.catalog, call)
	reply.Metadata.ToolExecution = executionRecord(exec)
	reply.Content = joinNonEmpty(content, exec.Message)
	return exec
}

func executionRecord(exec *ToolExecution) *models.ToolExecutionRecord {
	raw, err := json.Marshal(exec.Result)
	if err != nil {
		raw = nil
	}
	return &models.ToolExecutionRecord{Tool: string(exec.Tool), Success: exec.Success, Result: raw}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func (s *Service) logTurn(t *turn, reply *models.ChatMessage, exec *ToolExecution) {
	fields := []zap.Field{
		zap.String("user_id", t.userID.String()),
		zap.Int64("latency_ms", reply.Metadata.LatencyMs),
		zap.Bool("streamed", reply.Metadata.Streamed),
		zap.Bool("failed", reply.Metadata.Error != ""),
	}
	if reply.Metadata.Usage != nil {
		fields = append(fields, zap.Int64("total_tokens", reply.Metadata.Usage.TotalTokens))
	}
	if exec != nil {
		fields = append(fields, zap.String("tool", string(exec.Tool)), zap.Bool("tool_success", exec.Success))
	}
	s.logger.Info("assistant_turn_completed", fields...)
}

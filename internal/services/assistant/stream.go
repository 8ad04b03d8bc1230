package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventType discriminates turn events
type EventType string

const (
	EventUserMessageCreated EventType = "user_message_created"
	EventContentDelta       EventType = "content_delta"
	EventToolCalls          EventType = "tool_calls"
	EventToolExecution      EventType = "tool_execution"
	EventMessageCompleted   EventType = "message_completed"
)

// Event is one item of a streamed turn
type Event struct {
	Type          EventType               `json:"type"`
	Message       *models.ChatMessage     `json:"message,omitempty"`
	Delta         string                  `json:"delta,omitempty"`
	ToolCalls     []models.ToolCallRecord `json:"tool_calls,omitempty"`
	ToolExecution *ToolExecution          `json:"tool_execution,omitempty"`
}

// StreamState is a state of the streaming turn machine
type StreamState string

const (
	StateAwaitingContent   StreamState = "awaiting_content"
	StateAwaitingToolCalls StreamState = "awaiting_tool_calls"
	StateExecutingTool     StreamState = "executing_tool"
	StateDone              StreamState = "done"
)

const streamBuffer = 32

// Stream runs one streaming turn. The user message is persisted before Stream returns;
// the channel yields user_message_created, content deltas, optional tool events and
// finally message_completed, then closes. Cancelling ctx stops delivery but the
// assistant message is still persisted.
func (s *Service) Stream(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (<-chan Event, error) {
	t, userMsg, err := s.begin(ctx, userID, text, isSuggestion)
	if err != nil {
		return nil, err
	}
	events := make(chan Event, streamBuffer)
	go s.runStream(ctx, t, userMsg, events)
	return events, nil
}

type streamMachine struct {
	s       *Service
	ctx     context.Context
	t       *turn
	out     chan<- Event
	state   StreamState
	content strings.Builder
	calls   []ai.ToolCall
	usage   *models.TokenUsage
	err     error
}

// emit delivers an event unless the consumer has gone away
func (m *streamMachine) emit(ev Event) {
	select {
	case <-m.ctx.Done():
	case m.out <- ev:
	}
}

func (s *Service) runStream(ctx context.Context, t *turn, userMsg *models.ChatMessage, out chan<- Event) {
	defer close(out)
	ctx, span := telemetry.StartSpan(ctx, "assistant.stream", attribute.String("user_id", t.userID.String()))

	m := &streamMachine{s: s, ctx: ctx, t: t, out: out, state: StateAwaitingContent}
	m.emit(Event{Type: EventUserMessageCreated, Message: userMsg})

	reply := &models.ChatMessage{
		SessionID: t.session.ID,
		Role:      models.ChatRoleAssistant,
		Metadata:  models.MessageMetadata{Streamed: true, Model: s.cfg.Model},
	}

	var exec *ToolExecution
	events, err := s.openStream(ctx, t)
	if err != nil {
		m.err = err
	} else {
		m.consume(events)
	}

	if m.err != nil {
		s.logger.Error("assistant_stream_failed",
			zap.String("user_id", t.userID.String()),
			zap.String("state", string(m.state)),
			zap.Error(m.err),
		)
		reply.Metadata.Error = m.err.Error()
		reply.Content = joinNonEmpty(m.content.String(), ai.UserFacingMessage(m.err))
	} else {
		if len(m.calls) > 0 {
			if _, ok := t.catalog.SelectToolCall(m.calls); ok {
				m.state = StateExecutingTool
			}
		}
		exec = s.finish(ctx, t, reply, m.content.String(), m.calls)
		if exec != nil {
			m.emit(Event{Type: EventToolExecution, ToolExecution: exec})
		}
	}
	m.state = StateDone
	reply.Metadata.Usage = m.usage
	reply.Metadata.LatencyMs = time.Since(t.started).Milliseconds()

	persistErr := s.chat.AddMessage(context.WithoutCancel(ctx), reply)
	if persistErr != nil {
		s.logger.Error("assistant_message_persist_failed",
			zap.String("user_id", t.userID.String()),
			zap.Error(persistErr),
		)
	}
	m.emit(Event{Type: EventMessageCompleted, Message: reply})
	s.logTurn(t, reply, exec)
	telemetry.EndSpan(span, m.err)
}

func (s *Service) openStream(ctx context.Context, t *turn) (<-chan ai.StreamEvent, error) {
	if err := s.prepare(ctx, t); err != nil {
		return nil, err
	}
	return s.provider.StreamChatCompletion(ctx, t.request)
}

// consume drains provider events until the provider closes the stream, forwarding
// content in arrival order
func (m *streamMachine) consume(events <-chan ai.StreamEvent) {
	for {
		select {
		case <-m.ctx.Done():
			m.err = m.ctx.Err()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case ai.StreamEventContentDelta:
				if ev.Delta == "" {
					continue
				}
				if m.state != StateAwaitingContent {
					m.s.logger.Debug("stream_content_after_tool_calls", zap.String("state", string(m.state)))
				}
				m.content.WriteString(ev.Delta)
				m.emit(Event{Type: EventContentDelta, Delta: ev.Delta})
			case ai.StreamEventToolCalls:
				m.state = StateAwaitingToolCalls
				m.calls = append(m.calls, ev.ToolCalls...)
				records := make([]models.ToolCallRecord, 0, len(ev.ToolCalls))
				for _, c := range ev.ToolCalls {
					records = append(records, models.ToolCallRecord{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
				}
				m.emit(Event{Type: EventToolCalls, ToolCalls: records})
			case ai.StreamEventUsage:
				m.usage = ev.Usage
			case ai.StreamEventError:
				m.err = ev.Err
				return
			}
		}
	}
}

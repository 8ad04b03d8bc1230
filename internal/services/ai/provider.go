package ai

import (
	"context"
	"encoding/json"

	"github.com/benvon/smart-meds/internal/models"
)

// ChatProvider is the reasoning service used by the assistant
type ChatProvider interface {
	// ChatCompletion returns one complete response, possibly requesting tools
	ChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamChatCompletion returns events in arrival order. The channel is closed after
	// the last event; a StreamEventError event carries any failure.
	StreamChatCompletion(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)
}

// InteractionEvaluator judges whether a medication interacts with each candidate
type InteractionEvaluator interface {
	EvaluateInteractions(ctx context.Context, subject *models.Medication, candidates []*models.Medication) ([]InteractionEvaluation, error)
}

// AIProvider is the interface for AI providers
type AIProvider interface {
	ChatProvider
	InteractionEvaluator
}

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    models.ChatRole `json:"role"`
	Content string          `json:"content"`
}

// ToolDefinition is a function descriptor offered to the reasoning service.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionRequest is one call to the reasoning service
type CompletionRequest struct {
	Messages    []ChatMessage
	Model       string // empty uses the provider default
	Temperature float64
	Tools       []ToolDefinition
}

// ToolCall is a tool invocation requested by the reasoning service
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionResponse is the non-streaming result
type CompletionResponse struct {
	Content   string
	Model     string
	Usage     models.TokenUsage
	ToolCalls []ToolCall
}

// StreamEventType discriminates StreamEvent
type StreamEventType string

const (
	StreamEventContentDelta StreamEventType = "content_delta"
	StreamEventToolCalls    StreamEventType = "tool_calls"
	StreamEventUsage        StreamEventType = "usage"
	StreamEventError        StreamEventType = "error"
)

// StreamEvent is one item of a streaming completion
type StreamEvent struct {
	Type      StreamEventType
	Delta     string
	ToolCalls []ToolCall
	Usage     *models.TokenUsage
	Err       error
}

// InteractionEvaluation is the verdict for one candidate medication
type InteractionEvaluation struct {
	MedicationID   int64           `json:"medication_id"`
	HasInteraction bool            `json:"has_interaction"`
	Severity       models.Severity `json:"severity"`
	Description    string          `json:"description"`
}

// ProviderFactory creates an AI provider from string options
type ProviderFactory func(options map[string]string) (AIProvider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, options map[string]string) (AIProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return factory(options)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}

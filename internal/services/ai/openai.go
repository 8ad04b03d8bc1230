package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds non-streaming calls; streams are bounded by the caller's context
	DefaultTimeout = 60 * time.Second
	// DefaultMaxTokens caps generated tokens for chat turns
	DefaultMaxTokens = 800
)

// OpenAIProvider implements AIProvider using OpenAI's chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider. A nil logger disables provider logs.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	// Streaming responses are bounded by the request context, not a client timeout.
	httpClient := &http.Client{}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Model returns the model used when a request does not name one
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) buildParams(req *CompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case models.ChatRoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case models.ChatRoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(DefaultMaxTokens),
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		}))
	}

	return params
}

func toolCallsFromMessage(calls []openai.ChatCompletionMessageToolCallUnion) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Function.Name == "" {
			continue
		}
		out = append(out, ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: rawArguments(c.Function.Arguments),
		})
	}
	return out
}

// rawArguments keeps the tool arguments as JSON, wrapping invalid payloads as a string
// so the message metadata stays valid JSON.
func rawArguments(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}

func (p *OpenAIProvider) debug(msg string, fields ...zap.Field) {
	if p.logger != nil && p.debugMode {
		p.logger.Debug(msg, fields...)
	}
}

func requestFields(ctx context.Context, operation, model string) []zap.Field {
	return []zap.Field{
		zap.String("operation", operation),
		zap.String("model", model),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
	}
}

func lastUserPrompt(req *CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.ChatRoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// ChatCompletion sends one non-streaming request
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	params := p.buildParams(req)
	fields := requestFields(ctx, "chat_completion", string(params.Model))

	p.debug("llm_api_request", append(fields,
		zap.Int("message_count", len(params.Messages)),
		zap.Int("tool_count", len(params.Tools)),
		zap.String("prompt_preview", SanitizePrompt(lastUserPrompt(req), true)),
	)...)

	callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(callCtx, params)
	latency := time.Since(start)
	if err != nil {
		p.debug("llm_api_error", append(fields, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))...)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to complete chat: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to complete chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	out := &CompletionResponse{
		Content:   msg.Content,
		Model:     resp.Model,
		ToolCalls: toolCallsFromMessage(msg.ToolCalls),
		Usage: models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	p.debug("llm_api_response", append(fields,
		zap.Int("response_length", len(out.Content)),
		zap.Int("tool_call_count", len(out.ToolCalls)),
		zap.String("response_preview", SanitizeResponse(out.Content, true)),
		zap.Int64("total_tokens", out.Usage.TotalTokens),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)

	return out, nil
}

// StreamChatCompletion streams content deltas in arrival order, then tool calls and usage
// once the stream has finished.
func (p *OpenAIProvider) StreamChatCompletion(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	params := p.buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	fields := requestFields(ctx, "chat_completion_stream", string(params.Model))

	p.debug("llm_api_request", append(fields,
		zap.Int("message_count", len(params.Messages)),
		zap.Int("tool_count", len(params.Tools)),
	)...)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case events <- ev:
				return true
			}
		}

		start := time.Now()
		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !send(StreamEvent{Type: StreamEventContentDelta, Delta: chunk.Choices[0].Delta.Content}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			p.debug("llm_api_error", append(fields, zap.Error(err))...)
			if apiErr := ExtractAPIError(err); apiErr != nil {
				err = apiErr
			}
			send(StreamEvent{Type: StreamEventError, Err: fmt.Errorf("failed to stream chat: %w", err)})
			return
		}

		if len(acc.Choices) > 0 {
			if calls := toolCallsFromMessage(acc.Choices[0].Message.ToolCalls); len(calls) > 0 {
				if !send(StreamEvent{Type: StreamEventToolCalls, ToolCalls: calls}) {
					return
				}
			}
		}
		usage := &models.TokenUsage{
			PromptTokens:     acc.Usage.PromptTokens,
			CompletionTokens: acc.Usage.CompletionTokens,
			TotalTokens:      acc.Usage.TotalTokens,
		}
		p.debug("llm_api_response", append(fields,
			zap.Int64("total_tokens", usage.TotalTokens),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)...)
		send(StreamEvent{Type: StreamEventUsage, Usage: usage})
	}()

	return events, nil
}

const interactionSystemPrompt = `You are a clinical pharmacology assistant. For the subject medication, assess each candidate medication for drug-drug interactions.
Respond with valid JSON only, in the form:
{"interactions":[{"medication_id":<candidate id>,"has_interaction":<true|false>,"severity":"severe|moderate|minor|none","description":"<one or two sentences>"}]}
Include exactly one entry per candidate id. Use "none" with has_interaction false when there is no known interaction.`

func buildInteractionPrompt(subject *models.Medication, candidates []*models.Medication) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject medication: %s (active ingredient: %s)\n", subject.DisplayName(), subject.ActiveIngredient)
	b.WriteString("Candidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id %d: %s (active ingredient: %s)\n", c.ID, c.DisplayName(), c.ActiveIngredient)
	}
	return b.String()
}

// EvaluateInteractions asks the model for one verdict per candidate in JSON mode
func (p *OpenAIProvider) EvaluateInteractions(ctx context.Context, subject *models.Medication, candidates []*models.Medication) ([]InteractionEvaluation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	prompt := buildInteractionPrompt(subject, candidates)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(interactionSystemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	}
	fields := append(requestFields(ctx, "evaluate_interactions", p.model),
		zap.Int64("medication_id", subject.ID),
		zap.Int("candidate_count", len(candidates)),
	)
	p.debug("llm_api_request", append(fields, zap.String("prompt_preview", SanitizePrompt(prompt, true)))...)

	callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(callCtx, params)
	latency := time.Since(start)
	if err != nil {
		p.debug("llm_api_error", append(fields, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))...)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to evaluate interactions: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to evaluate interactions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	content := resp.Choices[0].Message.Content
	p.debug("llm_api_response", append(fields,
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)

	return parseInteractionResponse(content, candidates)
}

// parseInteractionResponse decodes the model output, keeping only verdicts for known
// candidates and normalizing severity spelling.
func parseInteractionResponse(content string, candidates []*models.Medication) ([]InteractionEvaluation, error) {
	var payload struct {
		Interactions []struct {
			MedicationID   json.Number `json:"medication_id"`
			HasInteraction bool        `json:"has_interaction"`
			Severity       string      `json:"severity"`
			Description    string      `json:"description"`
		} `json:"interactions"`
	}
	if err := json.Unmarshal(extractJSONObject(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse interaction response: %w", err)
	}

	known := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	seen := make(map[int64]bool, len(payload.Interactions))
	out := make([]InteractionEvaluation, 0, len(payload.Interactions))
	for _, it := range payload.Interactions {
		id, err := strconv.ParseInt(it.MedicationID.String(), 10, 64)
		if err != nil || !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, InteractionEvaluation{
			MedicationID:   id,
			HasInteraction: it.HasInteraction,
			Severity:       models.Severity(strings.ToLower(strings.TrimSpace(it.Severity))),
			Description:    strings.TrimSpace(it.Description),
		})
	}
	return out, nil
}

// extractJSONObject trims any prose around the outermost JSON object
func extractJSONObject(content string) []byte {
	raw := []byte(strings.TrimSpace(content))
	if len(raw) > 0 && raw[0] == '{' {
		return raw
	}
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start != -1 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// NewDefaultRegistry returns a registry with the built-in providers registered.
// Recognized options: api_key, base_url, model.
func NewDefaultRegistry(logger *zap.Logger, debugMode bool) *ProviderRegistry {
	reg := NewProviderRegistry()
	reg.Register("openai", func(options map[string]string) (AIProvider, error) {
		if options["api_key"] == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(options["api_key"], options["base_url"], options["model"], logger, debugMode), nil
	})
	return reg
}

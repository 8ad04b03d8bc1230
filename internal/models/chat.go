package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatRole is the author of a chat message
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatSession is the single open conversation of a user
type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one persisted message of a session
type ChatMessage struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Role      ChatRole        `json:"role"`
	Content   string          `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// TokenUsage is the token accounting reported by the reasoning service
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ToolCallRecord is the raw tool call as requested by the reasoning service
type ToolCallRecord struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolExecutionRecord is the structured result of the executed tool
type ToolExecutionRecord struct {
	Tool    string          `json:"tool"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// MessageMetadata is stored as JSONB next to the message content
type MessageMetadata struct {
	IsSuggestion  bool                 `json:"is_suggestion,omitempty"`
	Model         string               `json:"model,omitempty"`
	Usage         *TokenUsage          `json:"usage,omitempty"`
	LatencyMs     int64                `json:"latency_ms,omitempty"`
	Streamed      bool                 `json:"streamed,omitempty"`
	ToolCalls     []ToolCallRecord     `json:"tool_calls,omitempty"`
	ToolExecution *ToolExecutionRecord `json:"tool_execution,omitempty"`
	Error         string               `json:"error,omitempty"`
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/assistant"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ChatService is the assistant surface used by the chat endpoints
type ChatService interface {
	History(ctx context.Context, userID uuid.UUID) ([]*models.ChatMessage, error)
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
	SendMessage(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (*assistant.TurnResult, error)
	Stream(ctx context.Context, userID uuid.UUID, text string, isSuggestion bool) (<-chan assistant.Event, error)
}

var _ ChatService = (*assistant.Service)(nil)

// ChatHandler handles assistant chat requests
type ChatHandler struct {
	chat   ChatService
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

// RegisterRoutes registers chat routes. The router should already have the /api/v1 prefix.
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat/messages", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/chat/messages", h.ClearMessages).Methods(http.MethodDelete)
	r.HandleFunc("/chat/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chat/stream", h.StreamMessage).Methods(http.MethodPost)
}

// ChatMessageRequest represents a chat message request
type ChatMessageRequest struct {
	Message      string `json:"message"`
	IsSuggestion bool   `json:"is_suggestion"`
}

// ListMessages returns the conversation oldest first
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	messages, err := h.chat.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("chat_history_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load chat history")
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, messages)
}

// ClearMessages wipes the conversation and keeps the session
func (h *ChatHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := h.chat.Clear(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("chat_clear_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to clear chat history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// SendMessage runs one non-streaming turn
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	result, err := h.chat.SendMessage(r.Context(), user.ID, req.Message, req.IsSuggestion)
	if err != nil {
		h.respondTurnError(w, user.ID, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// StreamMessage runs one turn and forwards its events as server-sent events
func (h *ChatHandler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Streaming is not supported")
		return
	}

	events, err := h.chat.Stream(r.Context(), user.ID, req.Message, req.IsSuggestion)
	if err != nil {
		h.respondTurnError(w, user.ID, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeSSE(w, string(ev.Type), ev); err != nil {
			// Client went away. Drain so the turn can finish and persist.
			h.logger.Info("chat_stream_client_gone", zap.String("user_id", user.ID.String()), zap.Error(err))
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

func (h *ChatHandler) respondTurnError(w http.ResponseWriter, userID uuid.UUID, err error) {
	if errors.Is(err, assistant.ErrEmptyMessage) || errors.Is(err, assistant.ErrMessageTooLong) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	h.logger.Error("chat_turn_failed", zap.String("user_id", userID.String()), zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to process message")
}

// writeSSE writes one named event with a JSON payload
func writeSSE(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

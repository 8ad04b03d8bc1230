package assistant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benvon/smart-meds/internal/database/dbtest"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/services/catalog"
	"github.com/benvon/smart-meds/internal/services/interactions"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu       sync.Mutex
	requests []*ai.CompletionRequest

	complete func(req *ai.CompletionRequest) (*ai.CompletionResponse, error)
	stream   []ai.StreamEvent
}

var _ ai.ChatProvider = (*fakeProvider)(nil)

func (f *fakeProvider) ChatCompletion(_ context.Context, req *ai.CompletionRequest) (*ai.CompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.complete(req)
}

func (f *fakeProvider) StreamChatCompletion(_ context.Context, req *ai.CompletionRequest) (<-chan ai.StreamEvent, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	ch := make(chan ai.StreamEvent, len(f.stream))
	for _, ev := range f.stream {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) lastRequest(t *testing.T) *ai.CompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("provider was not called")
	}
	return f.requests[len(f.requests)-1]
}

type fakeChecker struct {
	calls  int
	result *interactions.Result
}

func (f *fakeChecker) CheckAllMedicationInteractions(context.Context, uuid.UUID) *interactions.Result {
	f.calls++
	return f.result
}

type fakeReorganizer struct {
	calls     int
	schedules []reorganize.Schedule
	result    *reorganize.Result
}

func (f *fakeReorganizer) ReorganizeMedications(_ context.Context, _ uuid.UUID, schedules []reorganize.Schedule) *reorganize.Result {
	f.calls++
	f.schedules = schedules
	return f.result
}

type fakeReminders struct {
	calls []int64
}

func (f *fakeReminders) ScheduleReminders(_ context.Context, _ uuid.UUID, id int64, _ time.Time) error {
	f.calls = append(f.calls, id)
	return nil
}

type harness struct {
	store       *dbtest.Store
	provider    *fakeProvider
	checker     *fakeChecker
	reorganizer *fakeReorganizer
	reminders   *fakeReminders
	service     *Service
	userID      uuid.UUID
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    dbtest.NewStore(),
		provider: &fakeProvider{},
		checker: &fakeChecker{result: &interactions.Result{
			Success: true, Message: "ok", InteractionsFound: 1, SevereCount: 1, AlertsCreated: 1,
			Interactions: []interactions.Interaction{{
				Medication1Name: "Warfarin", Medication2Name: "Aspirin", Severity: models.SeveritySevere, Description: "bleeding risk",
			}},
		}},
		reorganizer: &fakeReorganizer{result: &reorganize.Result{
			Success: true, Message: "ok",
			ReorganizedMedications: []reorganize.Reorganized{{
				Name: "Warfarin", OldTimeSlots: []string{"08:00"}, NewTimeSlots: []string{"09:00"}, StartDate: "2026-09-15",
			}},
		}},
		reminders: &fakeReminders{},
		userID:    uuid.New(),
	}
	h.service = NewService(Deps{
		Chat:         h.store.Chat,
		UserMeds:     h.store.UserMedications,
		Alerts:       h.store.Alerts,
		Provider:     h.provider,
		Interactions: h.checker,
		Reorganizer:  h.reorganizer,
		Catalog:      catalog.NewService(h.store.Medications, 5),
		Reminders:    h.reminders,
	}, cfg, nil, func() time.Time { return testNow })
	return h
}

// takes adds a catalog medication and an active ledger entry for it
func (h *harness) takes(name string, slots ...string) *models.UserMedication {
	m := h.store.Medications.Add(&models.Medication{Name: name, ActiveIngredient: name, Strength: "5 mg", Form: "tablet"})
	return h.store.UserMedications.Seed(&models.UserMedication{
		UserID:       h.userID,
		MedicationID: m.ID,
		Dosage:       "1 tablet",
		TimeSlots:    slots,
		StartDate:    testNow.AddDate(0, -1, 0),
		Active:       true,
	})
}

func toolCall(name string, args any) ai.ToolCall {
	raw, _ := json.Marshal(args)
	return ai.ToolCall{ID: "call_" + name, Name: name, Arguments: raw}
}

func respond(content string, calls ...ai.ToolCall) func(*ai.CompletionRequest) (*ai.CompletionResponse, error) {
	return func(*ai.CompletionRequest) (*ai.CompletionResponse, error) {
		return &ai.CompletionResponse{
			Content:   content,
			Model:     "test-model",
			Usage:     models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			ToolCalls: calls,
		}, nil
	}
}

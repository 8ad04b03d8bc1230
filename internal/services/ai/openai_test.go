package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/benvon/smart-meds/internal/models"
)

func TestParseInteractionResponse(t *testing.T) {
	t.Parallel()

	candidates := []*models.Medication{{ID: 2, Name: "Warfarin"}, {ID: 3, Name: "Omeprazole"}}

	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, []InteractionEvaluation)
	}{
		{
			name:    "valid json",
			content: `{"interactions":[{"medication_id":2,"has_interaction":true,"severity":"Severe","description":" Bleeding risk. "},{"medication_id":3,"has_interaction":false,"severity":"none","description":""}]}`,
			validate: func(t *testing.T, got []InteractionEvaluation) {
				if len(got) != 2 {
					t.Fatalf("len = %d, want 2", len(got))
				}
				if got[0].Severity != models.SeveritySevere {
					t.Errorf("severity = %q, want normalized %q", got[0].Severity, models.SeveritySevere)
				}
				if got[0].Description != "Bleeding risk." {
					t.Errorf("description = %q", got[0].Description)
				}
				if got[1].HasInteraction {
					t.Error("second candidate should not interact")
				}
			},
		},
		{
			name:    "prose around json",
			content: "Here you go:\n{\"interactions\":[{\"medication_id\":3,\"has_interaction\":true,\"severity\":\"minor\",\"description\":\"x\"}]}\nThanks",
			validate: func(t *testing.T, got []InteractionEvaluation) {
				if len(got) != 1 || got[0].MedicationID != 3 {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name:    "unknown and duplicate ids dropped",
			content: `{"interactions":[{"medication_id":99,"has_interaction":true,"severity":"severe"},{"medication_id":2,"has_interaction":true,"severity":"moderate"},{"medication_id":2,"has_interaction":false,"severity":"none"}]}`,
			validate: func(t *testing.T, got []InteractionEvaluation) {
				if len(got) != 1 {
					t.Fatalf("len = %d, want 1", len(got))
				}
				if got[0].Severity != models.SeverityModerate {
					t.Errorf("first verdict should win, got %q", got[0].Severity)
				}
			},
		},
		{
			name:    "string id accepted",
			content: `{"interactions":[{"medication_id":"2","has_interaction":true,"severity":"minor"}]}`,
			validate: func(t *testing.T, got []InteractionEvaluation) {
				if len(got) != 1 || got[0].MedicationID != 2 {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name:    "not json",
			content: "I cannot help with that",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseInteractionResponse(tt.content, candidates)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseInteractionResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, got)
			}
		})
	}
}

func TestBuildInteractionPrompt(t *testing.T) {
	t.Parallel()
	subject := &models.Medication{ID: 1, Name: "Aspirin", Strength: "100 mg", ActiveIngredient: "acetylsalicylic acid"}
	prompt := buildInteractionPrompt(subject, []*models.Medication{
		{ID: 2, Name: "Warfarin", ActiveIngredient: "warfarin"},
	})
	for _, want := range []string{"Aspirin 100 mg", "acetylsalicylic acid", "id 2: Warfarin"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := NewOpenAIProvider("sk-test", "", "", nil, false)
	params := p.buildParams(&CompletionRequest{
		Messages: []ChatMessage{
			{Role: models.ChatRoleSystem, Content: "rules"},
			{Role: models.ChatRoleUser, Content: "hi"},
			{Role: models.ChatRoleAssistant, Content: "hello"},
		},
		Temperature: 0.3,
		Tools: []ToolDefinition{
			{Name: "check_medication_interactions", Parameters: map[string]any{"type": "object"}},
		},
	})
	if string(params.Model) != DefaultOpenAIModel {
		t.Errorf("model = %q, want default", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(params.Messages))
	}
	if len(params.Tools) != 1 {
		t.Errorf("tools = %d, want 1", len(params.Tools))
	}
}

func TestRawArguments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"", "{}"},
		{`{"reason":"x"}`, `{"reason":"x"}`},
		{`{broken`, `"{broken"`},
	}
	for _, tt := range tests {
		got := rawArguments(tt.in)
		if string(got) != tt.want {
			t.Errorf("rawArguments(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if !json.Valid(got) {
			t.Errorf("rawArguments(%q) produced invalid JSON", tt.in)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()
	reg := NewDefaultRegistry(nil, false)

	if _, err := reg.GetProvider("openai", map[string]string{"api_key": "sk-test"}); err != nil {
		t.Errorf("GetProvider(openai) error = %v", err)
	}
	if _, err := reg.GetProvider("openai", nil); err == nil {
		t.Error("expected error without api key")
	}
	_, err := reg.GetProvider("bedrock", nil)
	var notFound *ErrProviderNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

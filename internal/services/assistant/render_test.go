package assistant

import (
	"strings"
	"testing"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/interactions"
)

func TestRenderInteractionCheck(t *testing.T) {
	t.Parallel()

	severe := interactions.Interaction{
		Medication1Name: "Warfarin", Medication2Name: "Aspirin",
		Severity: models.SeveritySevere, Description: "bleeding risk",
	}
	moderate := interactions.Interaction{
		Medication1Name: "Lisinopril", Medication2Name: "Ibuprofen",
		Severity: models.SeverityModerate, Description: "reduced effect",
	}

	tests := []struct {
		name     string
		result   *interactions.Result
		want     []string
		dontWant []string
	}{
		{
			name:     "first check, nothing found",
			result:   &interactions.Result{Success: true},
			want:     []string{"found no interactions."},
			dontWant: []string{"still open", "contact your doctor"},
		},
		{
			name:     "recheck served from cache with open severe alert",
			result:   &interactions.Result{Success: true, CachedPairs: 1, OpenAlerts: []interactions.Interaction{severe}},
			want:     []string{"found no new interactions.", "still open", "- Warfarin + Aspirin (severe): bleeding risk", "contact your doctor"},
			dontWant: []string{"found no interactions"},
		},
		{
			name:     "recheck with open moderate alert",
			result:   &interactions.Result{Success: true, CachedPairs: 3, OpenAlerts: []interactions.Interaction{moderate}},
			want:     []string{"found no new interactions.", "- Lisinopril + Ibuprofen (moderate)"},
			dontWant: []string{"contact your doctor"},
		},
		{
			name: "new finding next to an older open alert",
			result: &interactions.Result{
				Success: true, InteractionsFound: 1, ModerateCount: 1, AlertsCreated: 1,
				Interactions: []interactions.Interaction{moderate}, OpenAlerts: []interactions.Interaction{severe},
			},
			want: []string{"found 1 new interaction(s): 0 severe, 1 moderate, 0 mild", "1 new alert(s)", "still open", "Warfarin + Aspirin", "contact your doctor"},
		},
		{
			name:   "failure shows the engine message",
			result: &interactions.Result{Message: "At least two active medications are needed to check for interactions."},
			want:   []string{"At least two active medications"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := render(string(ToolCheckInteractions), tt.result, "fallback")
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("rendered text missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.dontWant {
				if strings.Contains(got, w) {
					t.Errorf("rendered text should not contain %q:\n%s", w, got)
				}
			}
		})
	}
}

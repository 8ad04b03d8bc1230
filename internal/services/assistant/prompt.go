package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/models"
)

const basePrompt = `You are a medication assistant inside a medication tracking app.
Rules:
- Only discuss the user's own medications, schedules, stock and adherence.
- Never invent medications, doses or interactions; use the tools to check or change data.
- You cannot diagnose. For anything urgent, tell the user to contact a doctor or pharmacist.
- When changing dosing times, explain that new times start tomorrow.
- To add a medication, search the catalog first and let the user choose from the numbered results.
  Commit with the medication_id listed for the number the user picked.
- Keep answers short and in plain language.`

// BuildSystemPrompt combines the fixed rules with a snapshot of the user's current
// medications and open severe or moderate interaction alerts.
func BuildSystemPrompt(today time.Time, active []*models.UserMedication, alerts []*models.InteractionAlert) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nToday is %s.\n", models.TruncateDay(today).Format(models.DateLayout))

	if len(active) == 0 {
		b.WriteString("\nThe user has no active medications. No tools are available until one is added through the app.\n")
	} else {
		b.WriteString("\nActive medications (medication_id: name, dosage, daily times):\n")
		for _, um := range active {
			fmt.Fprintf(&b, "- %d: %s, %s, %s", um.MedicationID, um.MedicationName, um.Dosage, strings.Join(um.TimeSlots, ", "))
			if um.EndDate != nil {
				fmt.Fprintf(&b, " (until %s)", um.EndDate.Format(models.DateLayout))
			}
			if um.IsLowStock() {
				fmt.Fprintf(&b, " [low stock: %d left]", um.CurrentStock)
			}
			b.WriteString("\n")
		}
	}

	if len(alerts) > 0 {
		b.WriteString("\nOpen interaction alerts:\n")
		for _, a := range alerts {
			fmt.Fprintf(&b, "- %s: %s + %s. %s\n", strings.ToUpper(string(a.Severity)), a.Medication1Name, a.Medication2Name, a.Description)
		}
	}
	return b.String()
}

// HistoryContent is the text a stored message contributes to the model context. Catalog
// search replies keep the ids behind their numbered options so a later commit can use them.
func HistoryContent(m *models.ChatMessage) string {
	rec := m.Metadata.ToolExecution
	if m.Role != models.ChatRoleAssistant || rec == nil || rec.Tool != string(ToolAddMedication) || len(rec.Result) == 0 {
		return m.Content
	}
	var res searchResult
	if err := json.Unmarshal(rec.Result, &res); err != nil || res.Phase != phaseSearch || len(res.Candidates) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	b.WriteString("\n\n[catalog options: ")
	for i, med := range res.Candidates {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%d = medication_id %d (%s)", i+1, med.ID, med.DisplayName())
	}
	b.WriteString("]")
	return b.String()
}

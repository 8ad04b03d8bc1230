package assistant

import (
	"slices"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
)

// ToolName identifies a tool offered to the reasoning service
type ToolName string

const (
	ToolCheckInteractions ToolName = "check_medication_interactions"
	ToolReorganize        ToolName = "reorganize_medications"
	ToolAddMedication     ToolName = "add_user_medication"
)

const timeSlotPattern = `^([01]?[0-9]|2[0-3]):[0-5][0-9]$`

// ToolSpec is one tool in a caller-scoped catalog. The concrete types below are the
// only implementations.
type ToolSpec interface {
	Name() ToolName
	Definition() ai.ToolDefinition
}

// CheckInteractionsTool runs a full interaction check over the caller's active medications
type CheckInteractionsTool struct{}

// ReorganizeTool rewrites daily schedules. MedicationIDs lists the catalog ids the
// caller may reference.
type ReorganizeTool struct {
	MedicationIDs []int64
}

// AddMedicationTool searches the catalog and adds a ledger entry
type AddMedicationTool struct{}

var (
	_ ToolSpec = CheckInteractionsTool{}
	_ ToolSpec = ReorganizeTool{}
	_ ToolSpec = AddMedicationTool{}
)

// Name implements ToolSpec
func (CheckInteractionsTool) Name() ToolName { return ToolCheckInteractions }

// Definition implements ToolSpec
func (CheckInteractionsTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        string(ToolCheckInteractions),
		Description: "Check all of the user's active medications for drug interactions and raise alerts for severe or moderate ones.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Name implements ToolSpec
func (ReorganizeTool) Name() ToolName { return ToolReorganize }

// Definition implements ToolSpec
func (t ReorganizeTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        string(ToolReorganize),
		Description: "Change the daily dosing times of one or more of the user's active medications. New times take effect tomorrow.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"schedules": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"medication_id": map[string]any{
								"type":        "integer",
								"enum":        t.MedicationIDs,
								"description": "Catalog id of one of the user's active medications",
							},
							"new_time_slots": map[string]any{
								"type":     "array",
								"minItems": 1,
								"items": map[string]any{
									"type":    "string",
									"pattern": timeSlotPattern,
								},
								"description": "Daily times in 24h HH:MM",
							},
						},
						"required": []string{"medication_id", "new_time_slots"},
					},
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Why the schedule is being changed",
				},
			},
			"required": []string{"schedules", "reason"},
		},
	}
}

// Name implements ToolSpec
func (AddMedicationTool) Name() ToolName { return ToolAddMedication }

// Definition implements ToolSpec
func (AddMedicationTool) Definition() ai.ToolDefinition {
	integer := map[string]any{"type": "integer", "minimum": 0}
	return ai.ToolDefinition{
		Name: string(ToolAddMedication),
		Description: "Add a medication to the user's list. First call with action=search and the name the user gave; " +
			"after the user picks a result, call with action=commit and every schedule and stock field.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action":        map[string]any{"type": "string", "enum": []string{"search", "commit"}},
				"query":         map[string]any{"type": "string", "description": "Medication name as the user said it (search)"},
				"medication_id": map[string]any{"type": "integer", "description": "Catalog id chosen from search results (commit)"},
				"dosage":        map[string]any{"type": "string", "description": "e.g. 1 tablet"},
				"time_slots": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "pattern": timeSlotPattern},
				},
				"route":               map[string]any{"type": "string", "description": "e.g. oral"},
				"start_date":          map[string]any{"type": "string", "format": "date"},
				"end_date":            map[string]any{"type": "string", "format": "date"},
				"initial_stock":       integer,
				"current_stock":       integer,
				"low_stock_threshold": integer,
			},
			"required": []string{"action"},
		},
	}
}

// ToolCatalog is the set of tools offered for one turn
type ToolCatalog struct {
	Tools []ToolSpec

	allowedMedicationIDs map[int64]struct{}
}

// BuildToolCatalog returns the tools available to a user with the given active
// medications. No active medications means no tools.
func BuildToolCatalog(active []*models.UserMedication) *ToolCatalog {
	c := &ToolCatalog{allowedMedicationIDs: make(map[int64]struct{}, len(active))}
	if len(active) == 0 {
		return c
	}
	ids := make([]int64, 0, len(active))
	for _, um := range active {
		if _, dup := c.allowedMedicationIDs[um.MedicationID]; dup {
			continue
		}
		c.allowedMedicationIDs[um.MedicationID] = struct{}{}
		ids = append(ids, um.MedicationID)
	}
	slices.Sort(ids)
	c.Tools = []ToolSpec{
		CheckInteractionsTool{},
		ReorganizeTool{MedicationIDs: ids},
		AddMedicationTool{},
	}
	return c
}

// Offers reports whether the catalog includes the named tool
func (c *ToolCatalog) Offers(name string) bool {
	for _, t := range c.Tools {
		if string(t.Name()) == name {
			return true
		}
	}
	return false
}

// AllowsMedication reports whether a catalog medication id may be referenced by tools
func (c *ToolCatalog) AllowsMedication(id int64) bool {
	_, ok := c.allowedMedicationIDs[id]
	return ok
}

// Definitions returns the provider-facing tool descriptors
func (c *ToolCatalog) Definitions() []ai.ToolDefinition {
	if len(c.Tools) == 0 {
		return nil
	}
	defs := make([]ai.ToolDefinition, 0, len(c.Tools))
	for _, t := range c.Tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// SelectToolCall returns the first call, in response order, naming an offered tool
func (c *ToolCatalog) SelectToolCall(calls []ai.ToolCall) (ai.ToolCall, bool) {
	for _, call := range calls {
		if c.Offers(call.Name) {
			return call, true
		}
	}
	return ai.ToolCall{}, false
}

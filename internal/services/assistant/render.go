package assistant

import (
	"strings"
	"text/template"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/interactions"
)

var templateFuncs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
	"hasSevere": func(list []interactions.Interaction) bool {
		for _, in := range list {
			if in.Severity == models.SeveritySevere {
				return true
			}
		}
		return false
	},
}

var templates = template.Must(template.New("tools").Funcs(templateFuncs).Parse(`
{{define "check_medication_interactions"}}{{if not .Success}}{{.Message}}{{else}}{{if gt .InteractionsFound 0}}I checked your medications and found {{.InteractionsFound}} new interaction(s): {{.SevereCount}} severe, {{.ModerateCount}} moderate, {{.MildCount}} mild.
{{range .Interactions}}
- {{.Medication1Name}} + {{.Medication2Name}} ({{.Severity}}): {{.Description}}{{end}}
{{if gt .AlertsCreated 0}}
{{.AlertsCreated}} new alert(s) were added to your alerts list.{{end}}{{else if gt .CachedPairs 0}}I checked your medications and found no new interactions.{{else}}I checked your medications and found no interactions.{{end}}{{if .OpenAlerts}}
These interaction alerts are still open:
{{range .OpenAlerts}}
- {{.Medication1Name}} + {{.Medication2Name}} ({{.Severity}}): {{.Description}}{{end}}{{end}}{{if or (gt .SevereCount 0) (hasSevere .OpenAlerts)}}
Please contact your doctor or pharmacist about the severe interaction(s) before your next dose.{{end}}{{end}}{{end}}

{{define "reorganize_medications"}}{{if not .Success}}{{.Message}}{{else if not .ReorganizedMedications}}{{.Message}}{{else}}Your new schedule starts tomorrow:
{{range .ReorganizedMedications}}
- {{.Name}}: {{join .OldTimeSlots ", "}} -> {{join .NewTimeSlots ", "}} (from {{.StartDate}}){{end}}{{end}}{{end}}

{{define "medication_search"}}{{if not .Candidates}}I couldn't find "{{.Query}}" in the medication catalog. Could you check the spelling or give the active ingredient?{{else}}I found these medications matching "{{.Query}}":
{{range $i, $m := .Candidates}}
{{inc $i}}. {{$m.Name}}{{if $m.Strength}} {{$m.Strength}}{{end}}{{if $m.Form}} ({{$m.Form}}){{end}}{{end}}

Reply with the number of the one you take.{{end}}{{end}}

{{define "medication_added"}}{{if not .Success}}{{if .FieldsMissing}}To add this medication I still need: {{join .FieldsMissing ", "}}.{{else}}{{.Message}}{{end}}{{else}}Added {{.Medication.MedicationName}} ({{.Medication.Dosage}}) at {{join .Medication.TimeSlots ", "}}, starting {{.StartDate}}.{{end}}{{end}}
`))

// render executes a named tool template; on failure it falls back to fallback
func render(name string, data any, fallback string) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return fallback
	}
	return strings.TrimSpace(b.String())
}

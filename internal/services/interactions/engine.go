package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Recommendation wording by severity
const (
	RecommendationSevere   = "Contact your doctor or pharmacist right away before taking these medications together."
	RecommendationModerate = "Let your doctor know you are taking these medications together."
	RecommendationMonitor  = "Watch for unusual side effects and mention them at your next appointment."
)

// Recommendation returns the fixed recommendation text for a severity
func Recommendation(s models.Severity) string {
	switch s {
	case models.SeveritySevere:
		return RecommendationSevere
	case models.SeverityModerate:
		return RecommendationModerate
	default:
		return RecommendationMonitor
	}
}

// Interaction is one counted interaction between two of the user's medications
type Interaction struct {
	Medication1ID   int64           `json:"medication_1_id"`
	Medication1Name string          `json:"medication_1_name"`
	Medication2ID   int64           `json:"medication_2_id"`
	Medication2Name string          `json:"medication_2_name"`
	Severity        models.Severity `json:"severity"`
	Description     string          `json:"description"`
}

// Result is the outcome of a full interaction check
type Result struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	InteractionsFound int           `json:"interactions_found"`
	SevereCount       int           `json:"severe_count"`
	ModerateCount     int           `json:"moderate_count"`
	MildCount         int           `json:"mild_count"`
	AlertsCreated     int           `json:"alerts_created"`
	Interactions      []Interaction `json:"interactions,omitempty"`
	// CachedPairs counts pairs answered by the fact cache; their interactions are
	// not in the totals above.
	CachedPairs int `json:"cached_pairs"`
	// OpenAlerts are unacknowledged severe or moderate alerts between active
	// medications that this check did not report again.
	OpenAlerts []Interaction `json:"open_alerts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func (r *Result) add(in Interaction) {
	switch in.Severity {
	case models.SeveritySevere:
		r.SevereCount++
	case models.SeverityModerate:
		r.ModerateCount++
	case models.SeverityMinor:
		r.MildCount++
	default:
		// "none" and unrecognized severities stay out of the totals.
		return
	}
	r.InteractionsFound++
	r.Interactions = append(r.Interactions, in)
}

// Engine detects interactions between a user's active medications and raises alerts
type Engine struct {
	userMeds  database.UserMedicationRepositoryInterface
	catalog   database.MedicationRepositoryInterface
	facts     database.InteractionFactRepositoryInterface
	alerts    database.InteractionAlertRepositoryInterface
	tx        database.TxRunner
	evaluator ai.InteractionEvaluator
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a new interaction engine. now supplies "today" in the service time zone.
func NewEngine(
	userMeds database.UserMedicationRepositoryInterface,
	catalog database.MedicationRepositoryInterface,
	facts database.InteractionFactRepositoryInterface,
	alerts database.InteractionAlertRepositoryInterface,
	tx database.TxRunner,
	evaluator ai.InteractionEvaluator,
	logger *zap.Logger,
	now func() time.Time,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		userMeds:  userMeds,
		catalog:   catalog,
		facts:     facts,
		alerts:    alerts,
		tx:        tx,
		evaluator: evaluator,
		logger:    logger,
		now:       now,
	}
}

// CheckAllMedicationInteractions evaluates every not-yet-cached pair among the user's
// active medications, one external call per medication, then raises alerts for the
// severe and moderate findings.
func (e *Engine) CheckAllMedicationInteractions(ctx context.Context, userID uuid.UUID) *Result {
	ctx, span := telemetry.StartSpan(ctx, "interactions.check_all", attribute.String("user_id", userID.String()))
	result, err := e.checkAll(ctx, userID)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	span.SetAttributes(
		attribute.Int("interactions_found", result.InteractionsFound),
		attribute.Int("alerts_created", result.AlertsCreated),
	)
	telemetry.EndSpan(span, err)
	return result
}

func (e *Engine) checkAll(ctx context.Context, userID uuid.UUID) (*Result, error) {
	result := &Result{}

	active, err := e.userMeds.ListActive(ctx, userID, e.now())
	if err != nil {
		result.Message = "I couldn't load your medications to check for interactions."
		return result, fmt.Errorf("failed to list active medications: %w", err)
	}
	if len(active) < 2 {
		result.Message = "At least two active medications are needed to check for interactions."
		return result, nil
	}

	ids := make([]int64, 0, len(active))
	seen := make(map[int64]bool, len(active))
	for _, um := range active {
		if !seen[um.MedicationID] {
			seen[um.MedicationID] = true
			ids = append(ids, um.MedicationID)
		}
	}
	meds, err := e.catalog.GetByIDs(ctx, ids)
	if err != nil {
		result.Message = "I couldn't load your medications to check for interactions."
		return result, fmt.Errorf("failed to load catalog entries: %w", err)
	}

	calls := 0
	cached := make(map[[2]int64]bool)
	var scanErr error
	for _, subjectID := range ids {
		subject, ok := meds[subjectID]
		if !ok {
			continue
		}

		candidates, err := e.uncachedCandidates(ctx, subjectID, ids, meds, cached)
		if err != nil {
			scanErr = err
			break
		}
		if len(candidates) == 0 {
			continue
		}

		calls++
		evals, err := e.evaluator.EvaluateInteractions(ctx, subject, candidates)
		if err != nil {
			scanErr = fmt.Errorf("failed to evaluate interactions for medication %d: %w", subjectID, err)
			break
		}

		for _, ev := range evals {
			other, ok := meds[ev.MedicationID]
			if !ok {
				continue
			}
			fact := models.InteractionFact{
				MedicationID:    subjectID,
				InteractsWithID: ev.MedicationID,
				HasInteraction:  ev.HasInteraction,
				Severity:        ev.Severity,
				Description:     ev.Description,
			}
			if err := e.facts.SaveBidirectional(ctx, fact); err != nil {
				e.logger.Warn("interaction_fact_save_failed",
					zap.Int64("medication_id", subjectID),
					zap.Int64("interacts_with_id", ev.MedicationID),
					zap.Error(err),
				)
			}
			if ev.HasInteraction {
				result.add(Interaction{
					Medication1ID:   subjectID,
					Medication1Name: subject.Name,
					Medication2ID:   other.ID,
					Medication2Name: other.Name,
					Severity:        ev.Severity,
					Description:     ev.Description,
				})
			}
		}
	}

	// Alerts for what was found before a failure are still raised; their facts are
	// already cached and would not be re-evaluated by a later check.
	created, alertErr := e.CreateAlertsForInteractions(ctx, userID, result.Interactions)
	result.AlertsCreated = created
	result.CachedPairs = len(cached)
	result.OpenAlerts = e.openAlerts(ctx, userID, seen, result.Interactions)

	e.logger.Info("interaction_check_completed",
		zap.String("user_id", userID.String()),
		zap.Int("active_medications", len(ids)),
		zap.Int("external_calls", calls),
		zap.Int("interactions_found", result.InteractionsFound),
		zap.Int("alerts_created", created),
		zap.Bool("aborted", scanErr != nil),
	)

	if scanErr != nil {
		result.Message = "I couldn't finish checking all of your medications for interactions. Please try again later."
		if alertErr != nil {
			scanErr = errors.Join(scanErr, alertErr)
		}
		return result, scanErr
	}
	if alertErr != nil {
		result.Message = "I found interactions but couldn't save the alerts. Please try again."
		return result, alertErr
	}

	result.Success = true
	result.Message = summaryMessage(result, len(ids))
	return result, nil
}

func (e *Engine) uncachedCandidates(ctx context.Context, subjectID int64, ids []int64, meds map[int64]*models.Medication, cachedPairs map[[2]int64]bool) ([]*models.Medication, error) {
	var out []*models.Medication
	for _, otherID := range ids {
		if otherID == subjectID {
			continue
		}
		other, ok := meds[otherID]
		if !ok {
			continue
		}
		cached, err := e.facts.Exists(ctx, subjectID, otherID)
		if err != nil {
			return nil, fmt.Errorf("failed to read interaction cache: %w", err)
		}
		if cached {
			cachedPairs[pairKey(subjectID, otherID)] = true
			continue
		}
		out = append(out, other)
	}
	return out, nil
}

// openAlerts lists the user's open alerts between active medications, skipping pairs
// already reported in found. A load failure only drops the list.
func (e *Engine) openAlerts(ctx context.Context, userID uuid.UUID, active map[int64]bool, found []Interaction) []Interaction {
	alerts, err := e.alerts.ListUnacknowledged(ctx, userID, models.SeveritySevere, models.SeverityModerate)
	if err != nil {
		e.logger.Warn("open_alerts_load_failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	reported := make(map[[2]int64]bool, len(found))
	for _, in := range found {
		reported[pairKey(in.Medication1ID, in.Medication2ID)] = true
	}
	var out []Interaction
	for _, a := range alerts {
		key := pairKey(a.Medication1ID, a.Medication2ID)
		if !active[a.Medication1ID] || !active[a.Medication2ID] || reported[key] {
			continue
		}
		reported[key] = true
		out = append(out, Interaction{
			Medication1ID:   a.Medication1ID,
			Medication1Name: a.Medication1Name,
			Medication2ID:   a.Medication2ID,
			Medication2Name: a.Medication2Name,
			Severity:        a.Severity,
			Description:     a.Description,
		})
	}
	return out
}

// CreateAlertsForInteractions inserts one alert per severe or moderate interaction that has
// no open alert for the same pair in either ordering. Inserts share one transaction:
// on error none persist and the returned count is zero.
func (e *Engine) CreateAlertsForInteractions(ctx context.Context, userID uuid.UUID, found []Interaction) (int, error) {
	created := 0
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, in := range found {
			if !in.Severity.RaisesAlert() {
				continue
			}
			exists, err := e.alerts.ExistsUnacknowledged(ctx, userID, in.Medication1ID, in.Medication2ID)
			if err != nil {
				return fmt.Errorf("failed to check existing alert: %w", err)
			}
			if exists {
				continue
			}
			alert := &models.InteractionAlert{
				UserID:         userID,
				Medication1ID:  in.Medication1ID,
				Medication2ID:  in.Medication2ID,
				Severity:       in.Severity,
				Description:    in.Description,
				Recommendation: Recommendation(in.Severity),
				DetectedAt:     e.now(),
			}
			if err := e.alerts.Create(ctx, alert); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		e.logger.Error("interaction_alerts_rolled_back",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return 0, err
	}
	return created, nil
}

func summaryMessage(r *Result, medCount int) string {
	var msg string
	switch {
	case r.InteractionsFound > 0:
		msg = fmt.Sprintf("Found %d new interaction(s) among your %d active medications: %d severe, %d moderate, %d mild.",
			r.InteractionsFound, medCount, r.SevereCount, r.ModerateCount, r.MildCount)
	case r.CachedPairs > 0:
		msg = fmt.Sprintf("No new interactions were found among your %d active medications.", medCount)
	default:
		msg = fmt.Sprintf("No interactions were found among your %d active medications.", medCount)
	}
	if len(r.OpenAlerts) > 0 {
		msg += fmt.Sprintf(" You still have %d open interaction alert(s).", len(r.OpenAlerts))
	}
	return msg
}

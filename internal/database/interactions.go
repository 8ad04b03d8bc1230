package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InteractionFactRepository caches pairwise interaction evaluations
type InteractionFactRepository struct {
	db *DB
}

// NewInteractionFactRepository creates a new fact cache repository
func NewInteractionFactRepository(db *DB) *InteractionFactRepository {
	return &InteractionFactRepository{db: db}
}

// Exists reports whether the pair has been evaluated, in either ordering
func (r *InteractionFactRepository) Exists(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interaction_facts
			WHERE (medication_id = $1 AND interacts_with_id = $2)
				OR (medication_id = $2 AND interacts_with_id = $1)
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check interaction fact: %w", err)
	}
	return exists, nil
}

// SaveBidirectional upserts the fact for both orderings of the pair in one transaction
func (r *InteractionFactRepository) SaveBidirectional(ctx context.Context, fact models.InteractionFact) error {
	if fact.EvaluatedAt.IsZero() {
		fact.EvaluatedAt = time.Now()
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		for _, f := range []models.InteractionFact{fact, fact.Reversed()} {
			_, err := r.db.conn(ctx).ExecContext(ctx, `
				INSERT INTO interaction_facts (medication_id, interacts_with_id, has_interaction, severity, description, evaluated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (medication_id, interacts_with_id) DO UPDATE SET
					has_interaction = EXCLUDED.has_interaction,
					severity = EXCLUDED.severity,
					description = EXCLUDED.description,
					evaluated_at = EXCLUDED.evaluated_at
			`, f.MedicationID, f.InteractsWithID, f.HasInteraction, f.Severity, f.Description, f.EvaluatedAt)
			if err != nil {
				return fmt.Errorf("failed to save interaction fact: %w", err)
			}
		}
		return nil
	})
}

// InteractionAlertRepository handles user-facing interaction alerts
type InteractionAlertRepository struct {
	db *DB
}

// NewInteractionAlertRepository creates a new alert repository
func NewInteractionAlertRepository(db *DB) *InteractionAlertRepository {
	return &InteractionAlertRepository{db: db}
}

const alertSelect = `
	SELECT a.id, a.user_id, a.medication_1_id, a.medication_2_id, m1.name, m2.name,
		a.severity, a.description, a.recommendation, a.detected_at, a.acknowledged_at
	FROM interaction_alerts a
	JOIN medications m1 ON m1.id = a.medication_1_id
	JOIN medications m2 ON m2.id = a.medication_2_id
`

func scanAlert(row rowScanner) (*models.InteractionAlert, error) {
	a := &models.InteractionAlert{}
	var ackAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Medication1ID,
		&a.Medication2ID,
		&a.Medication1Name,
		&a.Medication2Name,
		&a.Severity,
		&a.Description,
		&a.Recommendation,
		&a.DetectedAt,
		&ackAt,
	); err != nil {
		return nil, err
	}
	a.AcknowledgedAt = nullTimePtr(ackAt)
	return a, nil
}

func (r *InteractionAlertRepository) list(ctx context.Context, query string, args ...any) ([]*models.InteractionAlert, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.InteractionAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction alerts: %w", err)
	}
	return alerts, nil
}

// ExistsUnacknowledged reports whether an open alert exists for the pair, in either ordering
func (r *InteractionAlertRepository) ExistsUnacknowledged(ctx context.Context, userID uuid.UUID, a, b int64) (bool, error) {
	var exists bool
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interaction_alerts
			WHERE user_id = $1 AND acknowledged_at IS NULL
				AND ((medication_1_id = $2 AND medication_2_id = $3)
					OR (medication_1_id = $3 AND medication_2_id = $2))
		)
	`, userID, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open alert: %w", err)
	}
	return exists, nil
}

// Create inserts a new alert
func (r *InteractionAlertRepository) Create(ctx context.Context, alert *models.InteractionAlert) error {
	if alert.DetectedAt.IsZero() {
		alert.DetectedAt = time.Now()
	}
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO interaction_alerts (user_id, medication_1_id, medication_2_id, severity, description, recommendation, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		alert.UserID,
		alert.Medication1ID,
		alert.Medication2ID,
		alert.Severity,
		alert.Description,
		alert.Recommendation,
		alert.DetectedAt,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("failed to create interaction alert: %w", err)
	}
	return nil
}

// ListUnacknowledged returns the user's open alerts with one of the given severities, newest first.
// No severities means all.
func (r *InteractionAlertRepository) ListUnacknowledged(ctx context.Context, userID uuid.UUID, severities ...models.Severity) ([]*models.InteractionAlert, error) {
	if len(severities) == 0 {
		return r.list(ctx, alertSelect+`
			WHERE a.user_id = $1 AND a.acknowledged_at IS NULL
			ORDER BY a.detected_at DESC
		`, userID)
	}
	values := make([]string, len(severities))
	for i, s := range severities {
		values[i] = string(s)
	}
	return r.list(ctx, alertSelect+`
		WHERE a.user_id = $1 AND a.acknowledged_at IS NULL AND a.severity = ANY($2)
		ORDER BY a.detected_at DESC
	`, userID, pq.Array(values))
}

// ListByUser returns every alert of the user, acknowledged or not, newest first
func (r *InteractionAlertRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.InteractionAlert, error) {
	return r.list(ctx, alertSelect+`
		WHERE a.user_id = $1
		ORDER BY a.detected_at DESC
	`, userID)
}

// Acknowledge marks an open alert of the user as acknowledged
func (r *InteractionAlertRepository) Acknowledge(ctx context.Context, userID uuid.UUID, alertID int64) (*models.InteractionAlert, error) {
	result, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE interaction_alerts
		SET acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = $1 AND user_id = $2
	`, alertID, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("interaction alert not found: %w", sql.ErrNoRows)
	}
	a, err := scanAlert(r.db.conn(ctx).QueryRowContext(ctx, alertSelect+` WHERE a.id = $1`, alertID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}
	return a, nil
}

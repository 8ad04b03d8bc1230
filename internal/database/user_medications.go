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

// UserMedicationRepository handles a patient's medication ledger
type UserMedicationRepository struct {
	db *DB
}

// NewUserMedicationRepository creates a new ledger repository
func NewUserMedicationRepository(db *DB) *UserMedicationRepository {
	return &UserMedicationRepository{db: db}
}

const userMedicationSelect = `
	SELECT um.id, um.user_id, um.medication_id, m.name, um.dosage, um.time_slots, um.route,
		um.start_date, um.end_date, um.schedule_effective_from,
		um.initial_stock, um.current_stock, um.low_stock_threshold, um.active,
		um.created_at, um.updated_at
	FROM user_medications um
	JOIN medications m ON m.id = um.medication_id
`

func scanUserMedication(row rowScanner) (*models.UserMedication, error) {
	um := &models.UserMedication{}
	var endDate, effectiveFrom sql.NullTime
	var slots pq.StringArray
	if err := row.Scan(
		&um.ID,
		&um.UserID,
		&um.MedicationID,
		&um.MedicationName,
		&um.Dosage,
		&slots,
		&um.Route,
		&um.StartDate,
		&endDate,
		&effectiveFrom,
		&um.InitialStock,
		&um.CurrentStock,
		&um.LowStockThreshold,
		&um.Active,
		&um.CreatedAt,
		&um.UpdatedAt,
	); err != nil {
		return nil, err
	}
	um.TimeSlots = []string(slots)
	um.StartDate = models.TruncateDay(um.StartDate)
	um.EndDate = nullDatePtr(endDate)
	um.ScheduleEffectiveFrom = nullDatePtr(effectiveFrom)
	return um, nil
}

func (r *UserMedicationRepository) list(ctx context.Context, query string, args ...any) ([]*models.UserMedication, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user medications: %w", err)
	}
	defer rows.Close()

	var out []*models.UserMedication
	for rows.Next() {
		um, err := scanUserMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user medication: %w", err)
		}
		out = append(out, um)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user medications: %w", err)
	}
	return out, nil
}

// Create inserts a ledger entry. The partial unique index rejects a second active
// entry for the same catalog medication.
func (r *UserMedicationRepository) Create(ctx context.Context, um *models.UserMedication) error {
	now := time.Now()
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO user_medications (user_id, medication_id, dosage, time_slots, route, start_date, end_date,
			initial_stock, current_stock, low_stock_threshold, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::date, $8, $9, $10, TRUE, $11, $11)
		RETURNING id, created_at, updated_at
	`,
		um.UserID,
		um.MedicationID,
		um.Dosage,
		pq.Array(um.TimeSlots),
		um.Route,
		dateParam(um.StartDate),
		nullDateParam(um.EndDate),
		um.InitialStock,
		um.CurrentStock,
		um.LowStockThreshold,
		now,
	).Scan(&um.ID, &um.CreatedAt, &um.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("medication %d already active for user: %w", um.MedicationID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user medication: %w", err)
	}
	um.Active = true
	return nil
}

// GetByID retrieves a ledger entry regardless of owner
func (r *UserMedicationRepository) GetByID(ctx context.Context, id int64) (*models.UserMedication, error) {
	um, err := scanUserMedication(r.db.conn(ctx).QueryRowContext(ctx, userMedicationSelect+` WHERE um.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user medication not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user medication: %w", err)
	}
	return um, nil
}

// ListActive returns the user's entries that are active on day, ordered by name
func (r *UserMedicationRepository) ListActive(ctx context.Context, userID uuid.UUID, day time.Time) ([]*models.UserMedication, error) {
	return r.list(ctx, userMedicationSelect+`
		WHERE um.user_id = $1
			AND um.active
			AND um.start_date <= $2::date
			AND (um.end_date IS NULL OR um.end_date >= $2::date)
		ORDER BY m.name, um.id
	`, userID, dateParam(day))
}

// ListOverlapping returns the user's active-flagged entries whose window intersects [start, end]
func (r *UserMedicationRepository) ListOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.UserMedication, error) {
	return r.list(ctx, userMedicationSelect+`
		WHERE um.user_id = $1
			AND um.active
			AND um.start_date <= $3::date
			AND (um.end_date IS NULL OR um.end_date >= $2::date)
		ORDER BY m.name, um.id
	`, userID, dateParam(start), dateParam(end))
}

// GetActiveByMedication returns the user's entry for a catalog medication that is active on day
func (r *UserMedicationRepository) GetActiveByMedication(ctx context.Context, userID uuid.UUID, medicationID int64, day time.Time) (*models.UserMedication, error) {
	um, err := scanUserMedication(r.db.conn(ctx).QueryRowContext(ctx, userMedicationSelect+`
		WHERE um.user_id = $1
			AND um.medication_id = $2
			AND um.active
			AND um.start_date <= $3::date
			AND (um.end_date IS NULL OR um.end_date >= $3::date)
		LIMIT 1
	`, userID, medicationID, dateParam(day)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user medication not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user medication: %w", err)
	}
	return um, nil
}

// UpdateTimeSlots overwrites the daily slots and records the day the new schedule applies from
func (r *UserMedicationRepository) UpdateTimeSlots(ctx context.Context, id int64, slots []string, effectiveFrom time.Time) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE user_medications
		SET time_slots = $2, schedule_effective_from = $3::date, updated_at = $4
		WHERE id = $1
	`, id, pq.Array(slots), dateParam(effectiveFrom), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update time slots: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user medication not found: %w", sql.ErrNoRows)
	}
	return nil
}

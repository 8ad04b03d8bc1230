package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/lib/pq"
)

// MedicationLogRepository handles scheduled-dose logs
type MedicationLogRepository struct {
	db *DB
}

// NewMedicationLogRepository creates a new dose log repository
func NewMedicationLogRepository(db *DB) *MedicationLogRepository {
	return &MedicationLogRepository{db: db}
}

// ListInRange returns logs of a ledger entry scheduled in [from, to), oldest first
func (r *MedicationLogRepository) ListInRange(ctx context.Context, userMedicationID int64, from, to time.Time) ([]*models.MedicationLog, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `
		SELECT id, user_medication_id, scheduled_at, taken_at, status, notes, created_at
		FROM medication_logs
		WHERE user_medication_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at
	`, userMedicationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list medication logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.MedicationLog
	for rows.Next() {
		l := &models.MedicationLog{}
		var takenAt sql.NullTime
		var notes sql.NullString
		if err := rows.Scan(&l.ID, &l.UserMedicationID, &l.ScheduledAt, &takenAt, &l.Status, &notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan medication log: %w", err)
		}
		l.TakenAt = nullTimePtr(takenAt)
		l.Notes = nullStringPtr(notes)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medication logs: %w", err)
	}
	return logs, nil
}

// DeletePendingFrom removes pending logs scheduled at or after from and returns how many were removed
func (r *MedicationLogRepository) DeletePendingFrom(ctx context.Context, userMedicationID int64, from time.Time) (int64, error) {
	result, err := r.db.conn(ctx).ExecContext(ctx, `
		DELETE FROM medication_logs
		WHERE user_medication_id = $1 AND status = 'pending' AND scheduled_at >= $2
	`, userMedicationID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// CreatePending inserts one pending log per scheduled time
func (r *MedicationLogRepository) CreatePending(ctx context.Context, userMedicationID int64, scheduled []time.Time) error {
	if len(scheduled) == 0 {
		return nil
	}
	stamps := make([]string, len(scheduled))
	for i, t := range scheduled {
		stamps[i] = t.Format(time.RFC3339)
	}
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO medication_logs (user_medication_id, scheduled_at, status)
		SELECT $1, s, 'pending' FROM unnest($2::timestamptz[]) AS s
	`, userMedicationID, pq.Array(stamps))
	if err != nil {
		return fmt.Errorf("failed to create pending logs: %w", err)
	}
	return nil
}

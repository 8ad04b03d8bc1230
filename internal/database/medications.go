package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/lib/pq"
)

// MedicationRepository handles the read-mostly medication catalog
type MedicationRepository struct {
	db *DB
}

// NewMedicationRepository creates a new catalog repository
func NewMedicationRepository(db *DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

const medicationColumns = `id, name, active_ingredient, strength, form, search_key, created_at, updated_at`

func scanMedication(row rowScanner) (*models.Medication, error) {
	m := &models.Medication{}
	if err := row.Scan(
		&m.ID,
		&m.Name,
		&m.ActiveIngredient,
		&m.Strength,
		&m.Form,
		&m.SearchKey,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID retrieves a catalog medication by ID
func (r *MedicationRepository) GetByID(ctx context.Context, id int64) (*models.Medication, error) {
	m, err := scanMedication(r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("medication not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return m, nil
}

// GetByIDs retrieves catalog medications keyed by ID. Unknown IDs are absent from the map.
func (r *MedicationRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Medication, error) {
	out := make(map[int64]*models.Medication, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get medications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medications: %w", err)
	}
	return out, nil
}

// Search returns medications whose search key contains the already-normalized needle
func (r *MedicationRepository) Search(ctx context.Context, normalized string, limit int) ([]*models.Medication, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE search_key LIKE '%' || $1 || '%'
		ORDER BY POSITION($1 IN search_key), name, id
		LIMIT $2
	`, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search medications: %w", err)
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medications: %w", err)
	}
	return meds, nil
}

// Upsert inserts or updates a catalog medication identified by name, strength and form
func (r *MedicationRepository) Upsert(ctx context.Context, m *models.Medication) error {
	now := time.Now()
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO medications (name, active_ingredient, strength, form, search_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (name, strength, form) DO UPDATE SET
			active_ingredient = EXCLUDED.active_ingredient,
			search_key = EXCLUDED.search_key,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, m.Name, m.ActiveIngredient, m.Strength, m.Form, m.SearchKey, now).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert medication: %w", err)
	}
	return nil
}

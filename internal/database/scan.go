package database

import (
	"database/sql"
	"time"

	"github.com/benvon/smart-meds/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// dateParam formats a calendar day for a DATE parameter, avoiding session time zone shifts
func dateParam(t time.Time) string {
	return t.Format(models.DateLayout)
}

func nullDateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateParam(*t)
}

func nullDatePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	d := models.TruncateDay(nt.Time)
	return &d
}

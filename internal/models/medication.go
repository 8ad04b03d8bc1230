package models

import "time"

// Medication is a read-only catalog entry
type Medication struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ActiveIngredient string    `json:"active_ingredient"`
	Strength         string    `json:"strength"`
	Form             string    `json:"form"`
	SearchKey        string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DisplayName returns the name with strength and form when known, e.g. "Ibuprofen 400 mg (tablet)".
func (m *Medication) DisplayName() string {
	name := m.Name
	if m.Strength != "" {
		name += " " + m.Strength
	}
	if m.Form != "" {
		name += " (" + m.Form + ")"
	}
	return name
}

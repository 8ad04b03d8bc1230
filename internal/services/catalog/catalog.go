package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSearchLimit caps search results when no limit is configured
const DefaultSearchLimit = 5

// Normalize folds case and strips diacritics so "Ácido" and "acido" compare equal.
// Runs of whitespace collapse to one space.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// SearchKey builds the stored search key for a catalog entry
func SearchKey(m *models.Medication) string {
	return Normalize(m.Name + " " + m.ActiveIngredient)
}

// Service is the catalog lookup used by the assistant
type Service struct {
	repo  database.MedicationRepositoryInterface
	limit int
}

// NewService creates a catalog service. limit <= 0 uses DefaultSearchLimit.
func NewService(repo database.MedicationRepositoryInterface, limit int) *Service {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &Service{repo: repo, limit: limit}
}

// FindByID returns the catalog medication, wrapping sql.ErrNoRows when unknown
func (s *Service) FindByID(ctx context.Context, id int64) (*models.Medication, error) {
	return s.repo.GetByID(ctx, id)
}

// Search does an accent- and case-insensitive substring match over name and active ingredient
func (s *Service) Search(ctx context.Context, text string) ([]*models.Medication, error) {
	needle := Normalize(text)
	if needle == "" {
		return nil, nil
	}
	meds, err := s.repo.Search(ctx, needle, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	return meds, nil
}

// Import upserts catalog entries, computing their search keys. Returns how many were written.
func (s *Service) Import(ctx context.Context, meds []*models.Medication) (int, error) {
	for i, m := range meds {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return i, fmt.Errorf("entry %d: name is required", i+1)
		}
		m.ActiveIngredient = strings.TrimSpace(m.ActiveIngredient)
		m.Strength = strings.TrimSpace(m.Strength)
		m.Form = strings.TrimSpace(m.Form)
		m.SearchKey = SearchKey(m)
		if err := s.repo.Upsert(ctx, m); err != nil {
			return i, fmt.Errorf("entry %d (%s): %w", i+1, m.Name, err)
		}
	}
	return len(meds), nil
}

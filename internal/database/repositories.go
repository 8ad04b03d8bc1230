package database

import (
	"context"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// MedicationRepositoryInterface defines catalog lookups
type MedicationRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*models.Medication, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Medication, error)
	Search(ctx context.Context, normalized string, limit int) ([]*models.Medication, error)
	Upsert(ctx context.Context, m *models.Medication) error
}

// UserMedicationRepositoryInterface defines ledger operations
type UserMedicationRepositoryInterface interface {
	Create(ctx context.Context, um *models.UserMedication) error
	GetByID(ctx context.Context, id int64) (*models.UserMedication, error)
	ListActive(ctx context.Context, userID uuid.UUID, day time.Time) ([]*models.UserMedication, error)
	ListOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.UserMedication, error)
	GetActiveByMedication(ctx context.Context, userID uuid.UUID, medicationID int64, day time.Time) (*models.UserMedication, error)
	UpdateTimeSlots(ctx context.Context, id int64, slots []string, effectiveFrom time.Time) error
}

// MedicationLogRepositoryInterface defines dose log operations
type MedicationLogRepositoryInterface interface {
	ListInRange(ctx context.Context, userMedicationID int64, from, to time.Time) ([]*models.MedicationLog, error)
	DeletePendingFrom(ctx context.Context, userMedicationID int64, from time.Time) (int64, error)
	CreatePending(ctx context.Context, userMedicationID int64, scheduled []time.Time) error
}

// InteractionFactRepositoryInterface defines the pairwise evaluation cache
type InteractionFactRepositoryInterface interface {
	Exists(ctx context.Context, a, b int64) (bool, error)
	SaveBidirectional(ctx context.Context, fact models.InteractionFact) error
}

// InteractionAlertRepositoryInterface defines alert operations
type InteractionAlertRepositoryInterface interface {
	ExistsUnacknowledged(ctx context.Context, userID uuid.UUID, a, b int64) (bool, error)
	Create(ctx context.Context, alert *models.InteractionAlert) error
	ListUnacknowledged(ctx context.Context, userID uuid.UUID, severities ...models.Severity) ([]*models.InteractionAlert, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.InteractionAlert, error)
	Acknowledge(ctx context.Context, userID uuid.UUID, alertID int64) (*models.InteractionAlert, error)
}

// ChatRepositoryInterface defines chat history operations
type ChatRepositoryInterface interface {
	GetOrCreateSession(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error)
	AddMessage(ctx context.Context, msg *models.ChatMessage) error
	ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error)
	ListAll(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	ClearMessages(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// SettingsRepositoryInterface defines runtime settings operations
type SettingsRepositoryInterface interface {
	GetCORS(ctx context.Context) (*models.CORSSettings, error)
	SetCORS(ctx context.Context, s *models.CORSSettings) error
	GetRateLimit(ctx context.Context) (*models.RateLimitSettings, error)
	SetRateLimit(ctx context.Context, s *models.RateLimitSettings) error
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface             = (*UserRepository)(nil)
	_ MedicationRepositoryInterface       = (*MedicationRepository)(nil)
	_ UserMedicationRepositoryInterface   = (*UserMedicationRepository)(nil)
	_ MedicationLogRepositoryInterface    = (*MedicationLogRepository)(nil)
	_ InteractionFactRepositoryInterface  = (*InteractionFactRepository)(nil)
	_ InteractionAlertRepositoryInterface = (*InteractionAlertRepository)(nil)
	_ ChatRepositoryInterface             = (*ChatRepository)(nil)
	_ SettingsRepositoryInterface         = (*SettingsRepository)(nil)
)

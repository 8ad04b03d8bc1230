// Package dbtest provides an in-memory implementation of the repository interfaces
// and database.TxRunner for unit tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
)

// Store is an in-memory database. WithinTx snapshots all state and restores it when
// fn fails, which is enough to observe rollback behavior.
type Store struct {
	mu     sync.Mutex
	nextID int64

	users       map[uuid.UUID]*models.User
	medications map[int64]*models.Medication
	userMeds    map[int64]*models.UserMedication
	logs        map[int64]*models.MedicationLog
	facts       map[[2]int64]models.InteractionFact
	alerts      map[int64]*models.InteractionAlert
	sessions    map[uuid.UUID]*models.ChatSession
	messages    []*models.ChatMessage
	settings    map[string]any

	// Fail is consulted before every mutation; a non-nil return aborts it.
	Fail func(op string, id int64) error

	ops map[string]int

	Users           *Users
	Medications     *Medications
	UserMedications *UserMedications
	Logs            *Logs
	Facts           *Facts
	Alerts          *Alerts
	Chat            *Chat
	Settings        *Settings
}

// NewStore returns an empty store
func NewStore() *Store {
	s := &Store{
		users:       make(map[uuid.UUID]*models.User),
		medications: make(map[int64]*models.Medication),
		userMeds:    make(map[int64]*models.UserMedication),
		logs:        make(map[int64]*models.MedicationLog),
		facts:       make(map[[2]int64]models.InteractionFact),
		alerts:      make(map[int64]*models.InteractionAlert),
		sessions:    make(map[uuid.UUID]*models.ChatSession),
		settings:    make(map[string]any),
		ops:         make(map[string]int),
	}
	s.Users = &Users{s}
	s.Medications = &Medications{s}
	s.UserMedications = &UserMedications{s}
	s.Logs = &Logs{s}
	s.Facts = &Facts{s}
	s.Alerts = &Alerts{s}
	s.Chat = &Chat{s}
	s.Settings = &Settings{s}
	return s
}

var (
	_ database.TxRunner                            = (*Store)(nil)
	_ database.UserRepositoryInterface             = (*Users)(nil)
	_ database.MedicationRepositoryInterface       = (*Medications)(nil)
	_ database.UserMedicationRepositoryInterface   = (*UserMedications)(nil)
	_ database.MedicationLogRepositoryInterface    = (*Logs)(nil)
	_ database.InteractionFactRepositoryInterface  = (*Facts)(nil)
	_ database.InteractionAlertRepositoryInterface = (*Alerts)(nil)
	_ database.ChatRepositoryInterface             = (*Chat)(nil)
	_ database.SettingsRepositoryInterface         = (*Settings)(nil)
)

// Ops returns how many times a mutation ran to completion
func (s *Store) Ops(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[op]
}

// mutate runs fn under the lock after consulting Fail. Caller must not hold mu.
func (s *Store) mutate(op string, id int64, fn func() error) error {
	if s.Fail != nil {
		if err := s.Fail(op, id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	s.ops[op]++
	return nil
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	nextID      int64
	users       map[uuid.UUID]*models.User
	medications map[int64]*models.Medication
	userMeds    map[int64]*models.UserMedication
	logs        map[int64]*models.MedicationLog
	facts       map[[2]int64]models.InteractionFact
	alerts      map[int64]*models.InteractionAlert
	sessions    map[uuid.UUID]*models.ChatSession
	messages    []*models.ChatMessage
	settings    map[string]any
	ops         map[string]int
}

func clonePtrMap[K comparable, V any](m map[K]*V, cp func(V) V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := cp(*v)
		out[k] = &c
	}
	return out
}

func same[V any](v V) V { return v }

func cloneUserMedication(um models.UserMedication) models.UserMedication {
	um.TimeSlots = slices.Clone(um.TimeSlots)
	return um
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]*models.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		c := *m
		msgs[i] = &c
	}
	facts := make(map[[2]int64]models.InteractionFact, len(s.facts))
	for k, v := range s.facts {
		facts[k] = v
	}
	settings := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	ops := make(map[string]int, len(s.ops))
	for k, v := range s.ops {
		ops[k] = v
	}
	return snapshot{
		nextID:      s.nextID,
		users:       clonePtrMap(s.users, same[models.User]),
		medications: clonePtrMap(s.medications, same[models.Medication]),
		userMeds:    clonePtrMap(s.userMeds, cloneUserMedication),
		logs:        clonePtrMap(s.logs, same[models.MedicationLog]),
		facts:       facts,
		alerts:      clonePtrMap(s.alerts, same[models.InteractionAlert]),
		sessions:    clonePtrMap(s.sessions, same[models.ChatSession]),
		messages:    msgs,
		settings:    settings,
		ops:         ops,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.users = snap.users
	s.medications = snap.medications
	s.userMeds = snap.userMeds
	s.logs = snap.logs
	s.facts = snap.facts
	s.alerts = snap.alerts
	s.sessions = snap.sessions
	s.messages = snap.messages
	s.settings = snap.settings
	s.ops = snap.ops
}

type txKey struct{}

// Commits returns how many transactions committed
func (s *Store) Commits() int { return s.Ops("tx.commit") }

// Rollbacks returns how many transactions rolled back
func (s *Store) Rollbacks() int { return s.Ops("tx.rollback") }

// WithinTx implements database.TxRunner
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		s.mu.Lock()
		s.ops["tx.rollback"]++
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.ops["tx.commit"]++
	s.mu.Unlock()
	return nil
}

func notFound(what string) error {
	return fmt.Errorf("%s not found: %w", what, sql.ErrNoRows)
}

// Users is the in-memory user repository
type Users struct{ s *Store }

// Create implements database.UserRepositoryInterface
func (r *Users) Create(_ context.Context, user *models.User) error {
	return r.s.mutate("users.create", 0, func() error {
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		now := time.Now()
		user.CreatedAt, user.UpdatedAt = now, now
		c := *user
		r.s.users[user.ID] = &c
		return nil
	})
}

func (r *Users) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, notFound("user")
}

// GetByID implements database.UserRepositoryInterface
func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

// GetByEmail implements database.UserRepositoryInterface
func (r *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

// GetByProviderID implements database.UserRepositoryInterface
func (r *Users) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ProviderID != nil && *u.ProviderID == providerID })
}

// Update implements database.UserRepositoryInterface
func (r *Users) Update(_ context.Context, user *models.User) error {
	return r.s.mutate("users.update", 0, func() error {
		if _, ok := r.s.users[user.ID]; !ok {
			return notFound("user")
		}
		user.UpdatedAt = time.Now()
		c := *user
		r.s.users[user.ID] = &c
		return nil
	})
}

// Medications is the in-memory catalog
type Medications struct{ s *Store }

// Add seeds a catalog medication; SearchKey defaults to the lower-cased name and ingredient
func (r *Medications) Add(m *models.Medication) *models.Medication {
	if m.SearchKey == "" {
		m.SearchKey = strings.ToLower(m.Name + " " + m.ActiveIngredient)
	}
	_ = r.Upsert(context.Background(), m)
	return m
}

// GetByID implements database.MedicationRepositoryInterface
func (r *Medications) GetByID(_ context.Context, id int64) (*models.Medication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medications[id]
	if !ok {
		return nil, notFound("medication")
	}
	c := *m
	return &c, nil
}

// GetByIDs implements database.MedicationRepositoryInterface
func (r *Medications) GetByIDs(_ context.Context, ids []int64) (map[int64]*models.Medication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]*models.Medication, len(ids))
	for _, id := range ids {
		if m, ok := r.s.medications[id]; ok {
			c := *m
			out[id] = &c
		}
	}
	return out, nil
}

// Search implements database.MedicationRepositoryInterface
func (r *Medications) Search(_ context.Context, normalized string, limit int) ([]*models.Medication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Medication
	for _, m := range r.s.medications {
		if strings.Contains(m.SearchKey, normalized) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := strings.Index(out[i].SearchKey, normalized), strings.Index(out[j].SearchKey, normalized)
		if pi != pj {
			return pi < pj
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert implements database.MedicationRepositoryInterface
func (r *Medications) Upsert(_ context.Context, m *models.Medication) error {
	return r.s.mutate("medications.upsert", m.ID, func() error {
		for _, existing := range r.s.medications {
			if existing.Name == m.Name && existing.Strength == m.Strength && existing.Form == m.Form {
				m.ID = existing.ID
				m.CreatedAt = existing.CreatedAt
				break
			}
		}
		if m.ID == 0 {
			m.ID = r.s.newID()
			m.CreatedAt = time.Now()
		}
		m.UpdatedAt = time.Now()
		c := *m
		r.s.medications[m.ID] = &c
		return nil
	})
}

// UserMedications is the in-memory ledger
type UserMedications struct{ s *Store }

func (r *UserMedications) withName(um *models.UserMedication) *models.UserMedication {
	c := cloneUserMedication(*um)
	if m, ok := r.s.medications[um.MedicationID]; ok {
		c.MedicationName = m.Name
	}
	return &c
}

// Create implements database.UserMedicationRepositoryInterface
func (r *UserMedications) Create(_ context.Context, um *models.UserMedication) error {
	return r.s.mutate("user_medications.create", um.MedicationID, func() error {
		for _, existing := range r.s.userMeds {
			if existing.UserID == um.UserID && existing.MedicationID == um.MedicationID && existing.Active {
				return fmt.Errorf("medication %d already active for user: %w", um.MedicationID, database.ErrDuplicate)
			}
		}
		um.ID = r.s.newID()
		um.Active = true
		now := time.Now()
		um.CreatedAt, um.UpdatedAt = now, now
		r.s.userMeds[um.ID] = r.withName(um)
		um.MedicationName = r.s.userMeds[um.ID].MedicationName
		return nil
	})
}

// Seed stores a ledger entry as given, including inactive ones
func (r *UserMedications) Seed(um *models.UserMedication) *models.UserMedication {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if um.ID == 0 {
		um.ID = r.s.newID()
	}
	r.s.userMeds[um.ID] = r.withName(um)
	um.MedicationName = r.s.userMeds[um.ID].MedicationName
	return um
}

// GetByID implements database.UserMedicationRepositoryInterface
func (r *UserMedications) GetByID(_ context.Context, id int64) (*models.UserMedication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	um, ok := r.s.userMeds[id]
	if !ok {
		return nil, notFound("user medication")
	}
	return r.withName(um), nil
}

func (r *UserMedications) filter(match func(*models.UserMedication) bool) []*models.UserMedication {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.UserMedication
	for _, um := range r.s.userMeds {
		if match(um) {
			out = append(out, r.withName(um))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MedicationName != out[j].MedicationName {
			return out[i].MedicationName < out[j].MedicationName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListActive implements database.UserMedicationRepositoryInterface
func (r *UserMedications) ListActive(_ context.Context, userID uuid.UUID, day time.Time) ([]*models.UserMedication, error) {
	return r.filter(func(um *models.UserMedication) bool {
		return um.UserID == userID && um.IsActiveOn(day)
	}), nil
}

// ListOverlapping implements database.UserMedicationRepositoryInterface
func (r *UserMedications) ListOverlapping(_ context.Context, userID uuid.UUID, start, end time.Time) ([]*models.UserMedication, error) {
	start, end = models.TruncateDay(start), models.TruncateDay(end)
	return r.filter(func(um *models.UserMedication) bool {
		if um.UserID != userID || !um.Active {
			return false
		}
		if models.TruncateDay(um.StartDate).After(end) {
			return false
		}
		return um.EndDate == nil || !models.TruncateDay(*um.EndDate).Before(start)
	}), nil
}

// GetActiveByMedication implements database.UserMedicationRepositoryInterface
func (r *UserMedications) GetActiveByMedication(_ context.Context, userID uuid.UUID, medicationID int64, day time.Time) (*models.UserMedication, error) {
	found := r.filter(func(um *models.UserMedication) bool {
		return um.UserID == userID && um.MedicationID == medicationID && um.IsActiveOn(day)
	})
	if len(found) == 0 {
		return nil, notFound("user medication")
	}
	return found[0], nil
}

// UpdateTimeSlots implements database.UserMedicationRepositoryInterface
func (r *UserMedications) UpdateTimeSlots(_ context.Context, id int64, slots []string, effectiveFrom time.Time) error {
	return r.s.mutate("user_medications.update_time_slots", id, func() error {
		um, ok := r.s.userMeds[id]
		if !ok {
			return notFound("user medication")
		}
		um.TimeSlots = slices.Clone(slots)
		from := models.TruncateDay(effectiveFrom)
		um.ScheduleEffectiveFrom = &from
		um.UpdatedAt = time.Now()
		return nil
	})
}

// Logs is the in-memory dose log repository
type Logs struct{ s *Store }

// Seed stores a dose log as given
func (r *Logs) Seed(l *models.MedicationLog) *models.MedicationLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == 0 {
		l.ID = r.s.newID()
	}
	c := *l
	r.s.logs[l.ID] = &c
	return l
}

// ListInRange implements database.MedicationLogRepositoryInterface
func (r *Logs) ListInRange(_ context.Context, userMedicationID int64, from, to time.Time) ([]*models.MedicationLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.MedicationLog
	for _, l := range r.s.logs {
		if l.UserMedicationID == userMedicationID && !l.ScheduledAt.Before(from) && l.ScheduledAt.Before(to) {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// DeletePendingFrom implements database.MedicationLogRepositoryInterface
func (r *Logs) DeletePendingFrom(_ context.Context, userMedicationID int64, from time.Time) (int64, error) {
	var n int64
	err := r.s.mutate("medication_logs.delete_pending", userMedicationID, func() error {
		for id, l := range r.s.logs {
			if l.UserMedicationID == userMedicationID && l.Status == models.LogStatusPending && !l.ScheduledAt.Before(from) {
				delete(r.s.logs, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// CreatePending implements database.MedicationLogRepositoryInterface
func (r *Logs) CreatePending(_ context.Context, userMedicationID int64, scheduled []time.Time) error {
	return r.s.mutate("medication_logs.create_pending", userMedicationID, func() error {
		for _, at := range scheduled {
			id := r.s.newID()
			r.s.logs[id] = &models.MedicationLog{
				ID:               id,
				UserMedicationID: userMedicationID,
				ScheduledAt:      at,
				Status:           models.LogStatusPending,
				CreatedAt:        time.Now(),
			}
		}
		return nil
	})
}

// Facts is the in-memory interaction fact cache
type Facts struct{ s *Store }

// Exists implements database.InteractionFactRepositoryInterface
func (r *Facts) Exists(_ context.Context, a, b int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ab := r.s.facts[[2]int64{a, b}]
	_, ba := r.s.facts[[2]int64{b, a}]
	return ab || ba, nil
}

// Get returns the fact stored for the ordered pair
func (r *Facts) Get(a, b int64) (models.InteractionFact, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.facts[[2]int64{a, b}]
	return f, ok
}

// SaveBidirectional implements database.InteractionFactRepositoryInterface
func (r *Facts) SaveBidirectional(_ context.Context, fact models.InteractionFact) error {
	return r.s.mutate("facts.save", fact.MedicationID, func() error {
		if fact.EvaluatedAt.IsZero() {
			fact.EvaluatedAt = time.Now()
		}
		r.s.facts[[2]int64{fact.MedicationID, fact.InteractsWithID}] = fact
		rev := fact.Reversed()
		r.s.facts[[2]int64{rev.MedicationID, rev.InteractsWithID}] = rev
		return nil
	})
}

// Alerts is the in-memory alert repository
type Alerts struct{ s *Store }

// Seed stores an alert as given
func (r *Alerts) Seed(a *models.InteractionAlert) *models.InteractionAlert {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == 0 {
		a.ID = r.s.newID()
	}
	c := *a
	r.s.alerts[a.ID] = &c
	return a
}

// All returns every stored alert ordered by id
func (r *Alerts) All() []*models.InteractionAlert {
	return r.list(func(*models.InteractionAlert) bool { return true })
}

func (r *Alerts) list(match func(*models.InteractionAlert) bool) []*models.InteractionAlert {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.InteractionAlert
	for _, a := range r.s.alerts {
		if match(a) {
			c := *a
			if m, ok := r.s.medications[a.Medication1ID]; ok {
				c.Medication1Name = m.Name
			}
			if m, ok := r.s.medications[a.Medication2ID]; ok {
				c.Medication2Name = m.Name
			}
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExistsUnacknowledged implements database.InteractionAlertRepositoryInterface
func (r *Alerts) ExistsUnacknowledged(_ context.Context, userID uuid.UUID, a, b int64) (bool, error) {
	found := r.list(func(al *models.InteractionAlert) bool {
		return al.UserID == userID && al.AcknowledgedAt == nil &&
			((al.Medication1ID == a && al.Medication2ID == b) || (al.Medication1ID == b && al.Medication2ID == a))
	})
	return len(found) > 0, nil
}

// Create implements database.InteractionAlertRepositoryInterface
func (r *Alerts) Create(_ context.Context, alert *models.InteractionAlert) error {
	return r.s.mutate("alerts.create", alert.Medication1ID, func() error {
		alert.ID = r.s.newID()
		if alert.DetectedAt.IsZero() {
			alert.DetectedAt = time.Now()
		}
		c := *alert
		r.s.alerts[alert.ID] = &c
		return nil
	})
}

// ListUnacknowledged implements database.InteractionAlertRepositoryInterface
func (r *Alerts) ListUnacknowledged(_ context.Context, userID uuid.UUID, severities ...models.Severity) ([]*models.InteractionAlert, error) {
	return r.list(func(a *models.InteractionAlert) bool {
		return a.UserID == userID && a.AcknowledgedAt == nil &&
			(len(severities) == 0 || slices.Contains(severities, a.Severity))
	}), nil
}

// ListByUser implements database.InteractionAlertRepositoryInterface
func (r *Alerts) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.InteractionAlert, error) {
	return r.list(func(a *models.InteractionAlert) bool { return a.UserID == userID }), nil
}

// Acknowledge implements database.InteractionAlertRepositoryInterface
func (r *Alerts) Acknowledge(_ context.Context, userID uuid.UUID, alertID int64) (*models.InteractionAlert, error) {
	var out models.InteractionAlert
	err := r.s.mutate("alerts.acknowledge", alertID, func() error {
		a, ok := r.s.alerts[alertID]
		if !ok || a.UserID != userID {
			return notFound("interaction alert")
		}
		if a.AcknowledgedAt == nil {
			now := time.Now()
			a.AcknowledgedAt = &now
		}
		out = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat is the in-memory chat repository
type Chat struct{ s *Store }

// GetOrCreateSession implements database.ChatRepositoryInterface
func (r *Chat) GetOrCreateSession(_ context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	var out models.ChatSession
	err := r.s.mutate("chat.session", 0, func() error {
		sess, ok := r.s.sessions[userID]
		if !ok {
			now := time.Now()
			sess = &models.ChatSession{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
			r.s.sessions[userID] = sess
		}
		out = *sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMessage implements database.ChatRepositoryInterface
func (r *Chat) AddMessage(_ context.Context, msg *models.ChatMessage) error {
	return r.s.mutate("chat.add_message", 0, func() error {
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		c := *msg
		r.s.messages = append(r.s.messages, &c)
		return nil
	})
}

func (r *Chat) bySession(sessionID uuid.UUID, includeSystem bool) []*models.ChatMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ChatMessage
	for _, m := range r.s.messages {
		if m.SessionID == sessionID && (includeSystem || m.Role != models.ChatRoleSystem) {
			c := *m
			out = append(out, &c)
		}
	}
	return out
}

// ListRecent implements database.ChatRepositoryInterface
func (r *Chat) ListRecent(_ context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	msgs := r.bySession(sessionID, false)
	if limit >= 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// ListAll implements database.ChatRepositoryInterface
func (r *Chat) ListAll(_ context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	return r.bySession(sessionID, true), nil
}

// ClearMessages implements database.ChatRepositoryInterface
func (r *Chat) ClearMessages(_ context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.mutate("chat.clear", 0, func() error {
		kept := r.s.messages[:0]
		for _, m := range r.s.messages {
			if m.SessionID == sessionID {
				n++
				continue
			}
			kept = append(kept, m)
		}
		r.s.messages = kept
		return nil
	})
	return n, err
}

// Settings is the in-memory settings repository
type Settings struct{ s *Store }

// GetCORS implements database.SettingsRepositoryInterface
func (r *Settings) GetCORS(_ context.Context) (*models.CORSSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.settings[models.SettingKeyCORS].(models.CORSSettings)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SetCORS implements database.SettingsRepositoryInterface
func (r *Settings) SetCORS(_ context.Context, s *models.CORSSettings) error {
	return r.s.mutate("settings.set", 0, func() error {
		if len(database.SplitOrigins(s.AllowedOrigins)) == 0 {
			return fmt.Errorf("allowed_origins cannot be empty")
		}
		r.s.settings[models.SettingKeyCORS] = *s
		return nil
	})
}

// GetRateLimit implements database.SettingsRepositoryInterface
func (r *Settings) GetRateLimit(_ context.Context) (*models.RateLimitSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.settings[models.SettingKeyRateLimit].(models.RateLimitSettings)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SetRateLimit implements database.SettingsRepositoryInterface
func (r *Settings) SetRateLimit(_ context.Context, s *models.RateLimitSettings) error {
	return r.s.mutate("settings.set", 0, func() error {
		if strings.TrimSpace(s.Rate) == "" {
			return fmt.Errorf("rate cannot be empty")
		}
		r.s.settings[models.SettingKeyRateLimit] = *s
		return nil
	})
}

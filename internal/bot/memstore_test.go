package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

// In-memory store implementations for pipeline tests.

func scope(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return "global"
	}
	return tenantID.String()
}

type memTenants struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*store.Tenant
}

func (m *memTenants) GetByID(_ context.Context, id uuid.UUID) (*store.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTenants) ListActive(_ context.Context) ([]store.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Tenant
	for _, t := range m.tenants {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTenants) SetPlanStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.PlanStatus = status
	}
	return nil
}

type memContacts struct {
	mu       sync.Mutex
	contacts map[string]*store.Contact
	now      func() time.Time
}

func contactKey(tenantID *uuid.UUID, channel, externalID string) string {
	return scope(tenantID) + "_" + channel + "_" + externalID
}

func (m *memContacts) Upsert(_ context.Context, tenantID *uuid.UUID, channel, externalID string, p store.ContactProfile) (*store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := contactKey(tenantID, channel, externalID)
	c, ok := m.contacts[key]
	if !ok {
		c = &store.Contact{
			ID:         uuid.Must(uuid.NewV7()),
			TenantID:   tenantID,
			Channel:    channel,
			ExternalID: externalID,
		}
		m.contacts[key] = c
	}
	refresh := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	refresh(&c.FirstName, p.FirstName)
	refresh(&c.Username, p.Username)
	refresh(&c.AvatarURL, p.AvatarURL)
	refresh(&c.Bio, p.Bio)
	refresh(&c.PlatformLink, p.PlatformLink)
	c.LastInteraction = m.now()
	cp := *c
	return &cp, nil
}

func (m *memContacts) GetByID(_ context.Context, id uuid.UUID) (*store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memContacts) pause(tenantID *uuid.UUID, channel, externalID string, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contacts[contactKey(tenantID, channel, externalID)]; ok {
		c.BotPausedUntil = &until
	}
}

type memSessions struct {
	mu       sync.Mutex
	sessions []*store.Session
	now      func() time.Time
}

func (m *memSessions) ActiveForContact(_ context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *store.Session
	for _, s := range m.sessions {
		if s.IsActive && s.ContactID == contactID && scope(s.TenantID) == scope(tenantID) {
			if latest == nil || s.StartTime.After(latest.StartTime) {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memSessions) Create(_ context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &store.Session{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  tenantID,
		ContactID: contactID,
		IsActive:  true,
		StartTime: m.now(),
		UpdatedAt: m.now(),
	}
	m.sessions = append(m.sessions, s)
	cp := *s
	return &cp, nil
}

func (m *memSessions) Close(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memSessions) CloseActiveForContact(_ context.Context, tenantID *uuid.UUID, contactID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ContactID == contactID && scope(s.TenantID) == scope(tenantID) {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memSessions) Touch(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			s.UpdatedAt = m.now()
		}
	}
	return nil
}

type memMessages struct {
	mu       sync.Mutex
	messages []*store.Message
	now      func() time.Time
}

func (m *memMessages) Append(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memMessages) bySession(sessionID uuid.UUID) []store.Message {
	var out []store.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, *msg)
		}
	}
	return out
}

func (m *memMessages) Last(_ context.Context, sessionID uuid.UUID) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.bySession(sessionID)
	if len(msgs) == 0 {
		return nil, store.ErrNotFound
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (m *memMessages) Recent(_ context.Context, sessionID uuid.UUID, limit int) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.bySession(sessionID)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memMessages) Transcript(_ context.Context, sessionID uuid.UUID) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySession(sessionID), nil
}

type memSummaries struct {
	mu        sync.Mutex
	summaries []*store.Summary
	now       func() time.Time
}

func (m *memSummaries) Create(_ context.Context, s *store.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.Must(uuid.NewV7())
	}
	s.CreatedAt = m.now()
	cp := *s
	m.summaries = append(m.summaries, &cp)
	return nil
}

func (m *memSummaries) RecentForContact(_ context.Context, tenantID *uuid.UUID, contactID uuid.UUID, limit int) ([]store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Summary
	for i := len(m.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.summaries[i]
		if s.ContactID == contactID && scope(s.TenantID) == scope(tenantID) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func (m *memSettings) set(tenantID *uuid.UUID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := scope(tenantID)
	if m.values[sc] == nil {
		m.values[sc] = make(map[string]string)
	}
	m.values[sc][key] = value
}

func (m *memSettings) Get(_ context.Context, tenantID *uuid.UUID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[scope(tenantID)][key], nil
}

func (m *memSettings) All(_ context.Context, tenantID *uuid.UUID) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.values[scope(tenantID)] {
		out[k] = v
	}
	return out, nil
}

type memAssets struct {
	mu     sync.Mutex
	assets []*store.Asset
}

func (m *memAssets) Knowledge(_ context.Context, tenantID *uuid.UUID, limit int) ([]store.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Asset
	for _, a := range m.assets {
		if a.IsKnowledge && scope(a.TenantID) == scope(tenantID) && len(out) < limit {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAssets) ByName(_ context.Context, tenantID *uuid.UUID, name string) (*store.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.Name == name && scope(a.TenantID) == scope(tenantID) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type memUsage struct {
	mu   sync.Mutex
	logs []store.UsageLog
}

func (m *memUsage) Record(_ context.Context, log *store.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
	return nil
}

// memEnv bundles the fakes plus a movable clock.
type memEnv struct {
	stores    *store.Stores
	tenants   *memTenants
	contacts  *memContacts
	sessions  *memSessions
	messages  *memMessages
	summaries *memSummaries
	settings  *memSettings
	assets    *memAssets
	usage     *memUsage

	mu  sync.Mutex
	now time.Time
}

func newMemEnv() *memEnv {
	env := &memEnv{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	clock := env.clock
	env.tenants = &memTenants{tenants: make(map[uuid.UUID]*store.Tenant)}
	env.contacts = &memContacts{contacts: make(map[string]*store.Contact), now: clock}
	env.sessions = &memSessions{now: clock}
	env.messages = &memMessages{now: clock}
	env.summaries = &memSummaries{now: clock}
	env.settings = &memSettings{values: make(map[string]map[string]string)}
	env.assets = &memAssets{}
	env.usage = &memUsage{}
	env.stores = &store.Stores{
		Tenants:   env.tenants,
		Contacts:  env.contacts,
		Sessions:  env.sessions,
		Messages:  env.messages,
		Summaries: env.summaries,
		Settings:  env.settings,
		Assets:    env.assets,
		Usage:     env.usage,
	}
	return env
}

func (e *memEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *memEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// Package store defines the storage collaborator contract of the
// conversation pipeline: CRUD and query operations over tenants,
// contacts, sessions, messages, summaries, settings and assets.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("store: not found")

// TenantStore provides tenant lookups and plan-state transitions.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	ListActive(ctx context.Context) ([]Tenant, error)
	// SetPlanStatus transitions the plan status (e.g. to "expired" when
	// the subscription end date has passed).
	SetPlanStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ContactProfile is the mutable slice of a contact refreshed on every
// inbound message. Empty fields are ignored, never overwriting known values.
type ContactProfile struct {
	FirstName    string
	Username     string
	AvatarURL    string
	Bio          string
	PlatformLink string
}

// ContactStore provides find-or-create-with-update semantics keyed by
// (tenant, channel, external ID).
type ContactStore interface {
	// Upsert finds or creates the contact, refreshes non-empty profile
	// fields and stamps the last-interaction time.
	Upsert(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, profile ContactProfile) (*Contact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
}

// SessionStore manages conversation windows.
type SessionStore interface {
	// ActiveForContact returns the contact's most recent active session,
	// or ErrNotFound when none exists.
	ActiveForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*Session, error)
	Create(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*Session, error)
	// Close marks a session inactive.
	Close(ctx context.Context, id uuid.UUID) error
	// CloseActiveForContact marks every active session of the contact inactive.
	CloseActiveForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) error
	// Touch bumps the session's updated-at for recency-sorted inbox ordering.
	Touch(ctx context.Context, id uuid.UUID) error
}

// MessageStore is append-only message history.
type MessageStore interface {
	Append(ctx context.Context, msg *Message) error
	// Last returns the newest message of a session, or ErrNotFound.
	Last(ctx context.Context, sessionID uuid.UUID) (*Message, error)
	// Recent returns the last limit messages of a session in
	// chronological order.
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
	// Transcript returns every message of a session in chronological order.
	Transcript(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
}

// SummaryStore persists and recalls compressed session memories.
type SummaryStore interface {
	Create(ctx context.Context, s *Summary) error
	// RecentForContact returns up to limit summaries, newest first.
	RecentForContact(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID, limit int) ([]Summary, error)
}

// SettingStore reads tenant-scoped configuration. A nil tenant ID
// addresses the global (platform) scope; lookups never fall back
// between scopes implicitly.
type SettingStore interface {
	// Get returns the value for key, or "" when unset.
	Get(ctx context.Context, tenantID *uuid.UUID, key string) (string, error)
	// All returns every setting of the scope as a map.
	All(ctx context.Context, tenantID *uuid.UUID) (map[string]string, error)
}

// AssetStore queries tenant files.
type AssetStore interface {
	// Knowledge returns up to limit assets flagged as knowledge sources.
	Knowledge(ctx context.Context, tenantID *uuid.UUID, limit int) ([]Asset, error)
	// ByName resolves an asset by its display name, or ErrNotFound.
	ByName(ctx context.Context, tenantID *uuid.UUID, name string) (*Asset, error)
}

// UsageStore records LLM token consumption for the billing subsystem.
type UsageStore interface {
	Record(ctx context.Context, log *UsageLog) error
}

// Stores bundles every store implementation for injection.
type Stores struct {
	Tenants   TenantStore
	Contacts  ContactStore
	Sessions  SessionStore
	Messages  MessageStore
	Summaries SummaryStore
	Settings  SettingStore
	Assets    AssetStore
	Usage     UsageStore
}

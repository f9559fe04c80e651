package store

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a company account: the unit of data isolation and billing.
// A nil tenant ID elsewhere in the model means platform/global scope
// (the superadmin's own bot and global defaults).
type Tenant struct {
	ID              uuid.UUID
	Name            string
	IsActive        bool
	PlanStatus      string // "active", "trial", "expired", "cancelled"
	SubscriptionEnd *time.Time
	SlotLimit       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Plan status values.
const (
	PlanActive    = "active"
	PlanTrial     = "trial"
	PlanExpired   = "expired"
	PlanCancelled = "cancelled"
)

// Contact is one real human/channel identity, uniquely keyed by
// (tenant, channel, external platform ID).
type Contact struct {
	ID              uuid.UUID
	TenantID        *uuid.UUID
	Channel         string
	ExternalID      string
	FirstName       string
	Username        string
	AvatarURL       string
	Bio             string
	PlatformLink    string
	BotPausedUntil  *time.Time
	LastInteraction time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session is one continuous conversation window for a contact.
// At most one session is active per contact at a time.
type Session struct {
	ID        uuid.UUID
	TenantID  *uuid.UUID
	ContactID uuid.UUID
	IsActive  bool
	Pinned    bool
	StartTime time.Time
	UpdatedAt time.Time
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is an immutable append-only record belonging to a session.
type Message struct {
	ID          uuid.UUID
	TenantID    *uuid.UUID
	SessionID   uuid.UUID
	Role        string
	Content     string
	ContentType string // "text", "image", "audio"
	MediaURL    string
	Buttons     []MessageButton
	Timestamp   time.Time
}

// MessageButton is button metadata attached to an assistant text message.
// Buttons are never persisted as their own rows.
type MessageButton struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Summary is a compressed memory of a closed session, attached to a contact.
type Summary struct {
	ID          uuid.UUID
	TenantID    *uuid.UUID
	ContactID   uuid.UUID
	SummaryText string
	RangeStart  time.Time
	RangeEnd    time.Time
	CreatedAt   time.Time
}

// Setting is a tenant-scoped (or global, tenant = nil) key/value pair.
type Setting struct {
	TenantID  *uuid.UUID
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Well-known setting keys.
const (
	SettingBufferSeconds    = "MESSAGE_BUFFER_SECONDS"
	SettingSystemPrompt     = "SYSTEM_PROMPT"
	SettingGroundingRules   = "GROUNDING_RULES"
	SettingOpenAIKey        = "OPENAI_API_KEY"
	SettingTelegramToken    = "TELEGRAM_BOT_TOKEN"
	SettingWhatsAppEnabled  = "WHATSAPP_ENABLED"
	SettingMetaVerifyToken  = "META_VERIFY_TOKEN"
	SettingFacebookToken    = "FACEBOOK_ACCESS_TOKEN"
	SettingInstagramToken   = "INSTAGRAM_ACCESS_TOKEN"
	SettingMetaLegacyToken  = "META_ACCESS_TOKEN"
)

// Asset is a stored tenant file, optionally flagged as knowledge
// (its extracted text is fed into the LLM context).
type Asset struct {
	ID            uuid.UUID
	TenantID      *uuid.UUID
	Name          string
	Filename      string
	URL           string
	IsKnowledge   bool
	ExtractedText string
	CreatedAt     time.Time
}

// UsageLog records token consumption of one LLM call for billing.
type UsageLog struct {
	ID               uuid.UUID
	TenantID         *uuid.UUID
	Model            string
	PromptTokens     int
	CompletionTokens int
	RequestType      string // "chat", "transcription", "summary"
	CreatedAt        time.Time
}

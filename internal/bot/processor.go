// Package bot runs the conversation pipeline: one coalesced inbound
// message in, one assistant reply out, with all persistence and
// gating in between.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/llm"
	"github.com/omnibothq/omnibot/internal/media"
	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

// User-facing fixed replies.
const (
	ErrorReply               = "⚠️ Error interno."
	ResetReply               = "🔄 Sesión reiniciada."
	TranscriptionFailedReply = "👂 No pude entender eso."

	// MediaPlaceholderText stands in for empty text on media messages.
	MediaPlaceholderText = "[Media]"

	// greetingTrigger is the synthetic first message injected by the
	// /new and /start commands.
	greetingTrigger = "hola"

	// sessionExpiry is the idle window after which a session is
	// summarized and closed.
	sessionExpiry = 24 * time.Hour
)

// Request is one coalesced inbound message ready for processing.
type Request struct {
	TenantID   *uuid.UUID
	Channel    string
	ExternalID string
	Profile    bus.Profile
	Text       string
	Kind       bus.ContentKind
	MediaURL   string
}

// ClientResolver hands out the LLM client for a tenant scope.
type ClientResolver interface {
	ClientFor(ctx context.Context, tenantID *uuid.UUID) llm.Client
}

// Processor executes the ordered conversation pipeline.
type Processor struct {
	stores   *store.Stores
	settings *settings.Service
	llm      ClientResolver
	media    *media.Store
	prompt   *PromptBuilder
	parser   Parser
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(stores *store.Stores, set *settings.Service, resolver ClientResolver, mediaStore *media.Store, logger *slog.Logger) *Processor {
	return &Processor{
		stores:   stores,
		settings: set,
		llm:      resolver,
		media:    mediaStore,
		prompt:   NewPromptBuilder(set, stores.Assets, stores.Summaries, stores.Messages),
		parser:   TagParser{},
		logger:   logger,
		now:      time.Now,
	}
}

// Handle runs the pipeline and always returns a deliverable reply,
// possibly empty (meaning: stay silent). It never panics outward.
func (p *Processor) Handle(ctx context.Context, req Request) (reply bus.Reply) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				"channel", req.Channel, "external_id", req.ExternalID, "panic", r)
			reply = bus.Reply{Text: ErrorReply}
		}
	}()

	reply, err := p.handle(ctx, req)
	if err != nil {
		p.logger.Error("pipeline failed",
			"channel", req.Channel, "external_id", req.ExternalID, "error", err)
		return bus.Reply{Text: ErrorReply}
	}
	return reply
}

func (p *Processor) handle(ctx context.Context, req Request) (bus.Reply, error) {
	// Media first, so a persisted local reference lands in history even
	// when a later gate silences the reply.
	mediaRef := req.MediaURL
	if mediaRef != "" && p.media != nil {
		mediaRef = p.media.Persist(ctx, mediaRef)
	}

	contact, err := p.stores.Contacts.Upsert(ctx, req.TenantID, req.Channel, req.ExternalID, store.ContactProfile{
		FirstName:    req.Profile.FirstName,
		Username:     req.Profile.Username,
		AvatarURL:    req.Profile.AvatarURL,
		Bio:          req.Profile.Bio,
		PlatformLink: req.Profile.PlatformLink,
	})
	if err != nil {
		return bus.Reply{}, fmt.Errorf("contact upsert: %w", err)
	}

	if p.subscriptionGate(ctx, req.TenantID) {
		return bus.Reply{}, nil
	}

	text := req.Text
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/reset":
		if err := p.stores.Sessions.CloseActiveForContact(ctx, req.TenantID, contact.ID); err != nil {
			return bus.Reply{}, fmt.Errorf("reset sessions: %w", err)
		}
		return bus.Reply{Text: ResetReply}, nil
	case "/new", "/start":
		// Same rollover as /reset, but the greeting still runs a turn
		// in the fresh session.
		if err := p.stores.Sessions.CloseActiveForContact(ctx, req.TenantID, contact.ID); err != nil {
			return bus.Reply{}, fmt.Errorf("close session for restart: %w", err)
		}
		text = greetingTrigger
	}

	if contact.BotPausedUntil != nil && contact.BotPausedUntil.After(p.now()) {
		p.logger.Debug("bot paused for contact", "contact", contact.ID)
		return bus.Reply{}, nil
	}

	session, err := p.resolveSession(ctx, req.TenantID, contact.ID)
	if err != nil {
		return bus.Reply{}, fmt.Errorf("resolve session: %w", err)
	}

	userMsg := &store.Message{
		TenantID:    req.TenantID,
		SessionID:   session.ID,
		Role:        store.RoleUser,
		Content:     text,
		ContentType: contentTypeFor(req.Kind),
		MediaURL:    mediaRef,
	}
	if err := p.stores.Messages.Append(ctx, userMsg); err != nil {
		return bus.Reply{}, fmt.Errorf("persist user message: %w", err)
	}

	prompt, err := p.prompt.Build(ctx, req.TenantID, contact.ID, session.ID, req.Channel)
	if err != nil {
		return bus.Reply{}, fmt.Errorf("build prompt: %w", err)
	}

	res, err := p.llm.ClientFor(ctx, req.TenantID).ChatCompletion(ctx, prompt)
	if err != nil {
		return bus.Reply{}, fmt.Errorf("chat completion: %w", err)
	}

	return p.resolveReply(ctx, req.TenantID, session.ID, res.Content)
}

// subscriptionGate applies tenant plan state, reporting whether the
// message must be silently dropped. The global scope has no subscription.
func (p *Processor) subscriptionGate(ctx context.Context, tenantID *uuid.UUID) bool {
	if tenantID == nil {
		return false
	}
	tenant, err := p.stores.Tenants.GetByID(ctx, *tenantID)
	if err != nil {
		p.logger.Warn("tenant lookup failed, dropping message", "tenant", tenantID, "error", err)
		return true
	}
	if !tenant.IsActive {
		return true
	}
	if tenant.SubscriptionEnd != nil && tenant.SubscriptionEnd.Before(p.now()) &&
		tenant.PlanStatus != store.PlanExpired && tenant.PlanStatus != store.PlanCancelled {
		if err := p.stores.Tenants.SetPlanStatus(ctx, tenant.ID, store.PlanExpired); err != nil {
			p.logger.Warn("plan expiry transition failed", "tenant", tenant.ID, "error", err)
		}
		tenant.PlanStatus = store.PlanExpired
	}
	return tenant.PlanStatus == store.PlanExpired || tenant.PlanStatus == store.PlanCancelled
}

// resolveSession returns the session the inbound message belongs to.
// An active session idle beyond the expiry window is summarized,
// closed and replaced.
func (p *Processor) resolveSession(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID) (*store.Session, error) {
	session, err := p.stores.Sessions.ActiveForContact(ctx, tenantID, contactID)
	if errors.Is(err, store.ErrNotFound) {
		return p.stores.Sessions.Create(ctx, tenantID, contactID)
	}
	if err != nil {
		return nil, err
	}

	lastActivity := session.UpdatedAt
	if last, err := p.stores.Messages.Last(ctx, session.ID); err == nil {
		lastActivity = last.Timestamp
	}

	if p.now().Sub(lastActivity) < sessionExpiry {
		if err := p.stores.Sessions.Touch(ctx, session.ID); err != nil {
			p.logger.Warn("session touch failed", "session", session.ID, "error", err)
		}
		return session, nil
	}

	p.summarizeSession(ctx, tenantID, contactID, session)
	if err := p.stores.Sessions.Close(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("close expired session: %w", err)
	}
	return p.stores.Sessions.Create(ctx, tenantID, contactID)
}

// summarizeSession compresses the expired session into a Summary row.
// Best-effort: a failed summary never blocks the session rollover.
func (p *Processor) summarizeSession(ctx context.Context, tenantID *uuid.UUID, contactID uuid.UUID, session *store.Session) {
	transcript, err := p.stores.Messages.Transcript(ctx, session.ID)
	if err != nil || len(transcript) == 0 {
		return
	}

	msgs := make([]llm.Message, 0, len(transcript))
	for _, m := range transcript {
		if m.Role != store.RoleUser && m.Role != store.RoleAssistant {
			continue
		}
		content := m.Content
		if content == "" && m.MediaURL != "" {
			content = MediaPlaceholderText
		}
		if content != "" {
			msgs = append(msgs, llm.Message{Role: m.Role, Content: content})
		}
	}
	if len(msgs) == 0 {
		return
	}

	res, err := p.llm.ClientFor(ctx, tenantID).Summarize(ctx, msgs)
	if err != nil || strings.TrimSpace(res.Content) == "" {
		p.logger.Warn("session summarization failed", "session", session.ID, "error", err)
		return
	}

	sum := &store.Summary{
		TenantID:    tenantID,
		ContactID:   contactID,
		SummaryText: strings.TrimSpace(res.Content),
		RangeStart:  session.StartTime,
		RangeEnd:    transcript[len(transcript)-1].Timestamp,
	}
	if err := p.stores.Summaries.Create(ctx, sum); err != nil {
		p.logger.Warn("summary persist failed", "session", session.ID, "error", err)
	}
}

// resolveReply parses directives out of the raw completion, resolves
// photo names against tenant assets and persists the outbound messages.
func (p *Processor) resolveReply(ctx context.Context, tenantID *uuid.UUID, sessionID uuid.UUID, raw string) (bus.Reply, error) {
	parsed := p.parser.Parse(raw)

	var photos []bus.Photo
	for _, name := range parsed.PhotoNames {
		asset, err := p.stores.Assets.ByName(ctx, tenantID, name)
		if err != nil {
			p.logger.Warn("photo directive names unknown asset", "name", name, "error", err)
			continue
		}
		photos = append(photos, bus.Photo{Name: asset.Name, URL: asset.URL})
	}

	if parsed.Text != "" {
		msg := &store.Message{
			TenantID:    tenantID,
			SessionID:   sessionID,
			Role:        store.RoleAssistant,
			Content:     parsed.Text,
			ContentType: "text",
		}
		for _, b := range parsed.Buttons {
			msg.Buttons = append(msg.Buttons, store.MessageButton{Label: b.Label, URL: b.URL})
		}
		if err := p.stores.Messages.Append(ctx, msg); err != nil {
			return bus.Reply{}, fmt.Errorf("persist assistant message: %w", err)
		}
	}
	for _, photo := range photos {
		msg := &store.Message{
			TenantID:    tenantID,
			SessionID:   sessionID,
			Role:        store.RoleAssistant,
			Content:     "Sent photo: " + photo.Name,
			ContentType: "image",
			MediaURL:    photo.URL,
		}
		if err := p.stores.Messages.Append(ctx, msg); err != nil {
			return bus.Reply{}, fmt.Errorf("persist photo message: %w", err)
		}
	}

	return bus.Reply{Text: parsed.Text, Photos: photos, Buttons: parsed.Buttons}, nil
}

func contentTypeFor(kind bus.ContentKind) string {
	switch kind {
	case bus.KindImage, bus.KindSticker:
		return "image"
	case bus.KindAudio:
		return "audio"
	case bus.KindDocument:
		return "document"
	case bus.KindVideo:
		return "video"
	default:
		return "text"
	}
}

package llm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

// Resolver hands out per-tenant clients. Each tenant may carry its own
// OPENAI_API_KEY setting; tenants without one share the platform key
// (global setting, then process config). Clients are cached per scope
// and rebuilt when the effective key changes.
type Resolver struct {
	settings    *settings.Service
	usage       store.UsageStore
	fallbackKey string
	chatModel   string
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]*OpenAIClient
}

func NewResolver(set *settings.Service, usage store.UsageStore, fallbackKey, chatModel string, logger *slog.Logger) *Resolver {
	return &Resolver{
		settings:    set,
		usage:       usage,
		fallbackKey: fallbackKey,
		chatModel:   chatModel,
		logger:      logger,
		clients:     make(map[string]*OpenAIClient),
	}
}

// resolveKey walks the fallback chain: tenant setting, global setting,
// process config.
func (r *Resolver) resolveKey(ctx context.Context, tenantID *uuid.UUID) string {
	if tenantID != nil {
		if key, err := r.settings.Get(ctx, tenantID, store.SettingOpenAIKey); err == nil && key != "" {
			return key
		}
	}
	if key, err := r.settings.Get(ctx, nil, store.SettingOpenAIKey); err == nil && key != "" {
		return key
	}
	return r.fallbackKey
}

// ClientFor returns the tenant's client, wrapped so token usage lands
// in the usage log. Usage logging is best-effort and never fails the call.
func (r *Resolver) ClientFor(ctx context.Context, tenantID *uuid.UUID) Client {
	key := r.resolveKey(ctx, tenantID)
	scope := "global"
	if tenantID != nil {
		scope = tenantID.String()
	}

	r.mu.Lock()
	c, ok := r.clients[scope]
	if !ok || c.APIKey() != key {
		c = NewOpenAIClient(key, r.chatModel)
		r.clients[scope] = c
	}
	r.mu.Unlock()

	return &recordingClient{inner: c, usage: r.usage, tenantID: tenantID, logger: r.logger}
}

// recordingClient forwards calls and records token usage per tenant.
type recordingClient struct {
	inner    Client
	usage    store.UsageStore
	tenantID *uuid.UUID
	logger   *slog.Logger
}

func (rc *recordingClient) record(ctx context.Context, res *Result, requestType string) {
	if res == nil || res.Usage == nil {
		return
	}
	err := rc.usage.Record(ctx, &store.UsageLog{
		TenantID:         rc.tenantID,
		Model:            res.Model,
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		RequestType:      requestType,
	})
	if err != nil {
		rc.logger.Warn("usage log write failed", "error", err)
	}
}

func (rc *recordingClient) ChatCompletion(ctx context.Context, messages []Message) (*Result, error) {
	res, err := rc.inner.ChatCompletion(ctx, messages)
	if err == nil {
		rc.record(ctx, res, "chat")
	}
	return res, err
}

func (rc *recordingClient) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	return rc.inner.Transcribe(ctx, filename, audio)
}

func (rc *recordingClient) Summarize(ctx context.Context, transcript []Message) (*Result, error) {
	res, err := rc.inner.Summarize(ctx, transcript)
	if err == nil {
		rc.record(ctx, res, "summary")
	}
	return res, err
}

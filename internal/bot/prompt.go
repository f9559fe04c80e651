package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/llm"
	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

const (
	defaultPersona = "Eres un asistente amable."

	defaultGroundingRules = "Responde únicamente con información proporcionada en este contexto. " +
		"Si no sabes la respuesta, dilo honestamente y ofrece poner al cliente en contacto con una persona."

	knowledgeAssetLimit = 15
	summaryLimit        = 3
	historyLimit        = 20
)

// PromptBuilder assembles the message list for one chat completion:
// a single system message (persona, critical rules, knowledge base,
// prior-conversation memory) followed by recent session history in
// chronological order.
type PromptBuilder struct {
	settings  *settings.Service
	assets    store.AssetStore
	summaries store.SummaryStore
	messages  store.MessageStore
}

func NewPromptBuilder(set *settings.Service, assets store.AssetStore, summaries store.SummaryStore, messages store.MessageStore) *PromptBuilder {
	return &PromptBuilder{settings: set, assets: assets, summaries: summaries, messages: messages}
}

// persona resolves the system prompt: channel-specific setting first,
// then the generic one, then the hardcoded default.
func (b *PromptBuilder) persona(ctx context.Context, tenantID *uuid.UUID, channel string) string {
	channelKey := store.SettingSystemPrompt + "_" + strings.ToUpper(channel)
	if p, err := b.settings.Get(ctx, tenantID, channelKey); err == nil && p != "" {
		return p
	}
	if p, err := b.settings.Get(ctx, tenantID, store.SettingSystemPrompt); err == nil && p != "" {
		return p
	}
	return defaultPersona
}

func (b *PromptBuilder) rules(ctx context.Context, tenantID *uuid.UUID) string {
	if r, err := b.settings.Get(ctx, tenantID, store.SettingGroundingRules); err == nil && r != "" {
		return r
	}
	return defaultGroundingRules
}

// Build returns the full completion input for a session turn.
func (b *PromptBuilder) Build(ctx context.Context, tenantID *uuid.UUID, contactID, sessionID uuid.UUID, channel string) ([]llm.Message, error) {
	var sb strings.Builder
	sb.WriteString(b.persona(ctx, tenantID, channel))

	sb.WriteString("\n\n## Reglas críticas\n")
	sb.WriteString(b.rules(ctx, tenantID))

	assets, err := b.assets.Knowledge(ctx, tenantID, knowledgeAssetLimit)
	if err != nil {
		return nil, fmt.Errorf("load knowledge assets: %w", err)
	}
	if len(assets) > 0 {
		sb.WriteString("\n\n## Base de conocimiento\nArchivos disponibles:\n")
		for _, a := range assets {
			sb.WriteString("- " + a.Name)
			if a.Filename != "" {
				sb.WriteString(" (" + a.Filename + ")")
			}
			sb.WriteString("\n")
		}
		for _, a := range assets {
			if a.ExtractedText == "" {
				continue
			}
			sb.WriteString("\n### " + a.Name + "\n")
			sb.WriteString(a.ExtractedText)
			sb.WriteString("\n")
		}
	}

	sums, err := b.summaries.RecentForContact(ctx, tenantID, contactID, summaryLimit)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	if len(sums) > 0 {
		sb.WriteString("\n\n## Memoria de conversaciones anteriores\n")
		for _, s := range sums {
			sb.WriteString("- " + s.SummaryText + "\n")
		}
	}

	history, err := b.messages.Recent(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{Role: "system", Content: sb.String()})
	for _, m := range history {
		role := m.Role
		if role != store.RoleUser && role != store.RoleAssistant {
			continue
		}
		content := m.Content
		if content == "" && m.MediaURL != "" {
			content = MediaPlaceholderText
		}
		if content == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	return out, nil
}

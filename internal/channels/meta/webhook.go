// Package meta serves the Messenger and Instagram webhook and sends
// replies through the Graph API.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/channels"
	"github.com/omnibothq/omnibot/internal/media"
	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

// Ingest is the inbound side of the pipeline the webhook feeds.
// *pipeline.Pipeline is the production implementation.
type Ingest interface {
	Enqueue(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, frag bus.Fragment)
	SubmitAudio(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, profile bus.Profile, filename string, audio []byte)
}

// Webhook receives Meta platform events for every tenant scope. The
// scope rides in the path: /webhook/meta/global or /webhook/meta/<uuid>.
type Webhook struct {
	settings          *settings.Service
	pipe              Ingest
	limiter           *channels.WebhookRateLimiter
	fallbackVerifyTok string
	logger            *slog.Logger
}

func NewWebhook(set *settings.Service, pipe Ingest, fallbackVerifyToken string, logger *slog.Logger) *Webhook {
	return &Webhook{
		settings:          set,
		pipe:              pipe,
		limiter:           channels.NewWebhookRateLimiter(),
		fallbackVerifyTok: fallbackVerifyToken,
		logger:            logger,
	}
}

func (h *Webhook) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /webhook/meta/{scope}", h.handleVerify)
	mux.HandleFunc("POST /webhook/meta/{scope}", h.handleEvents)
}

// handleVerify answers Meta's subscription handshake: echo the
// challenge only when the verify token matches the scope's setting.
func (h *Webhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	tenantID, err := channels.ParseScope(r.PathValue("scope"))
	if err != nil {
		http.Error(w, "unknown scope", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	expected, err := h.settings.Get(r.Context(), tenantID, store.SettingMetaVerifyToken)
	if err != nil || expected == "" {
		expected = h.fallbackVerifyTok
	}
	if expected == "" || q.Get("hub.verify_token") != expected {
		h.logger.Warn("meta webhook verification rejected", "scope", r.PathValue("scope"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		IsEcho      bool   `json:"is_echo"`
		Text        string `json:"text"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}

// platformFor maps the webhook object field to a channel name.
func platformFor(object string) string {
	switch object {
	case "page":
		return "facebook"
	case "instagram":
		return "instagram"
	default:
		return ""
	}
}

// handleEvents acknowledges immediately and feeds each messaging event
// into the pipeline. Meta retries on non-200, so parse failures still
// return 200 after logging.
func (h *Webhook) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := channels.ParseScope(r.PathValue("scope"))
	if err != nil {
		http.Error(w, "unknown scope", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("meta webhook payload unreadable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	channel := platformFor(payload.Object)
	if channel == "" {
		h.logger.Debug("meta webhook object ignored", "object", payload.Object)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, evt := range entry.Messaging {
			h.ingest(r.Context(), tenantID, channel, evt)
		}
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "EVENT_RECEIVED")
}

func (h *Webhook) ingest(ctx context.Context, tenantID *uuid.UUID, channel string, evt messagingEvent) {
	if evt.Message == nil || evt.Message.IsEcho || evt.Sender.ID == "" {
		return
	}
	if !h.limiter.Allow(evt.Sender.ID) {
		h.logger.Warn("meta sender rate limited", "channel", channel, "sender", evt.Sender.ID)
		return
	}

	frag := bus.Fragment{Text: evt.Message.Text, Kind: bus.KindText}
	for _, att := range evt.Message.Attachments {
		switch att.Type {
		case "image":
			frag.Kind = bus.KindImage
			frag.MediaURL = att.Payload.URL
		case "audio":
			data, err := h.download(ctx, att.Payload.URL)
			if err != nil {
				h.logger.Warn("meta audio download failed", "sender", evt.Sender.ID, "error", err)
				continue
			}
			h.pipe.SubmitAudio(ctx, tenantID, channel, evt.Sender.ID, bus.Profile{}, "voice.mp4", data)
			return
		case "file":
			frag.Kind = bus.KindDocument
			frag.MediaURL = att.Payload.URL
		case "video":
			frag.Kind = bus.KindVideo
			frag.MediaURL = att.Payload.URL
		default:
			if frag.Text == "" && frag.MediaURL == "" {
				frag.Kind = bus.KindUnsupported
			}
		}
	}

	if frag.Kind == bus.KindUnsupported {
		h.logger.Debug("meta attachment kind unsupported", "sender", evt.Sender.ID)
		return
	}
	if frag.Text == "" && frag.MediaURL == "" {
		return
	}

	h.pipe.Enqueue(ctx, tenantID, channel, evt.Sender.ID, frag)
}

func (h *Webhook) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, media.DefaultMaxBytes))
}

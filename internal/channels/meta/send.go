package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/channels"
	"github.com/omnibothq/omnibot/internal/store"
)

const (
	graphAPIBase = "https://graph.facebook.com/v19.0"

	// Messenger button templates accept at most three buttons.
	maxTemplateButtons = 3
)

// Channel is the outbound half of one Meta platform for one tenant
// scope. Inbound traffic arrives through the shared Webhook instead of
// a per-instance listener, so Start only flips state.
type Channel struct {
	*channels.BaseChannel
	token   string
	apiBase string
	client  *http.Client
	limiter *rate.Limiter
}

func New(platform string, tenantID *uuid.UUID, token string) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel(platform, tenantID),
		token:       token,
		apiBase:     graphAPIBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		// Graph API send cap, conservative: 4 messages/second burst 8.
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 8),
	}
}

// resolveToken walks the access-token fallback chain for a platform.
// Instagram falls through to the Facebook page token when it has none
// of its own.
func resolveToken(platform string, settings map[string]string, fallback string) string {
	chain := []string{store.SettingFacebookToken}
	if platform == "instagram" {
		chain = []string{store.SettingInstagramToken, store.SettingFacebookToken}
	}
	chain = append(chain, store.SettingMetaLegacyToken)

	for _, key := range chain {
		if tok := settings[key]; tok != "" {
			return tok
		}
	}
	return fallback
}

// Factory builds a Messenger or Instagram sender for scopes that carry
// an access token.
func Factory(platform, fallbackToken string) channels.AdapterFactory {
	return func(tenantID *uuid.UUID, settings map[string]string) (channels.Channel, error) {
		token := resolveToken(platform, settings, fallbackToken)
		if token == "" {
			return nil, nil
		}
		return New(platform, tenantID, token), nil
	}
}

func (c *Channel) Start(ctx context.Context) error {
	slog.Info("meta channel ready", "instance", channels.InstanceKey(c.TenantID(), c.Name()))
	c.SetRunning(true)
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return nil
}

// Send delivers the text (as a button template when buttons are
// present) followed by one image attachment per photo.
func (c *Channel) Send(ctx context.Context, externalID string, reply bus.Reply) error {
	if reply.Text != "" {
		if err := c.post(ctx, externalID, textMessage(reply)); err != nil {
			return fmt.Errorf("meta send: %w", err)
		}
	}
	for _, photo := range reply.Photos {
		if err := c.post(ctx, externalID, imageMessage(photo.URL)); err != nil {
			return fmt.Errorf("meta send photo %q: %w", photo.Name, err)
		}
	}
	return nil
}

func textMessage(reply bus.Reply) map[string]any {
	if len(reply.Buttons) == 0 {
		return map[string]any{"text": reply.Text}
	}

	buttons := make([]map[string]any, 0, maxTemplateButtons)
	for _, b := range reply.Buttons {
		if len(buttons) == maxTemplateButtons {
			break
		}
		buttons = append(buttons, map[string]any{
			"type":  "web_url",
			"url":   b.URL,
			"title": b.Label,
		})
	}
	return map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "button",
				"text":          reply.Text,
				"buttons":       buttons,
			},
		},
	}
}

func imageMessage(url string) map[string]any {
	return map[string]any{
		"attachment": map[string]any{
			"type": "image",
			"payload": map[string]any{
				"url":         url,
				"is_reusable": true,
			},
		},
	}
}

func (c *Channel) post(ctx context.Context, recipientID string, message map[string]any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"recipient":      map[string]string{"id": recipientID},
		"messaging_type": "RESPONSE",
		"message":        message,
	})
	if err != nil {
		return err
	}

	url := c.apiBase + "/me/messages?access_token=" + c.token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph api status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

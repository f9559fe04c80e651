package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/media"
)

func (c *Channel) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		go c.handleMessage(context.Background(), v)
	case *events.Connected:
		slog.Info("whatsapp connected", "instance", c.TenantScope())
	case *events.Disconnected:
		slog.Warn("whatsapp disconnected", "instance", c.TenantScope())
		go c.reconnect()
	case *events.LoggedOut:
		c.purgeAuth()
	}
}

func (c *Channel) handleMessage(ctx context.Context, evt *events.Message) {
	if evt.Info.IsGroup || evt.Info.IsFromMe {
		return
	}

	sender := evt.Info.Sender.User
	profile := bus.Profile{
		FirstName:    evt.Info.PushName,
		PlatformLink: "https://wa.me/" + sender,
	}

	msg := evt.Message
	if audio := msg.GetAudioMessage(); audio != nil {
		data, err := c.client.Download(ctx, audio)
		if err != nil {
			slog.Warn("whatsapp voice download failed", "sender", sender, "error", err)
			return
		}
		c.pipe.SubmitAudio(ctx, c.TenantID(), c.Name(), sender, profile, "voice.ogg", data)
		return
	}

	kind, text, downloadable, ext := classify(msg)
	if kind == bus.KindUnsupported {
		slog.Debug("whatsapp message kind unsupported", "sender", sender)
		return
	}

	frag := bus.Fragment{Text: text, Kind: kind, Profile: profile}
	if downloadable != nil {
		data, err := c.client.Download(ctx, downloadable)
		if err != nil {
			slog.Warn("whatsapp media download failed", "sender", sender, "error", err)
		} else if path, err := c.saveMedia(data, ext); err != nil {
			slog.Warn("whatsapp media persist failed", "sender", sender, "error", err)
		} else {
			frag.MediaURL = path
		}
	}

	c.pipe.Enqueue(ctx, c.TenantID(), c.Name(), sender, frag)
}

// classify maps an inbound protocol message onto the closed content
// kind set. Video and sticker payloads are acknowledged but not stored.
func classify(msg *waE2E.Message) (bus.ContentKind, string, whatsmeow.DownloadableMessage, string) {
	switch {
	case msg.GetImageMessage() != nil:
		return bus.KindImage, msg.GetImageMessage().GetCaption(), msg.GetImageMessage(), ".jpg"
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		ext := filepath.Ext(doc.GetFileName())
		if ext == "" {
			ext = ".bin"
		}
		return bus.KindDocument, doc.GetCaption(), doc, ext
	case msg.GetVideoMessage() != nil:
		return bus.KindVideo, msg.GetVideoMessage().GetCaption(), nil, ""
	case msg.GetStickerMessage() != nil:
		return bus.KindSticker, "", nil, ""
	default:
		if text := extractText(msg); text != "" {
			return bus.KindText, text, nil, ""
		}
		return bus.KindUnsupported, "", nil, ""
	}
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	return msg.GetExtendedTextMessage().GetText()
}

func (c *Channel) saveMedia(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.mediaDir, uuid.Must(uuid.NewV7()).String()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// renderText flattens buttons under the reply body, one per line.
func renderText(reply bus.Reply) string {
	text := strings.ReplaceAll(reply.Text, "**", "*")
	if len(reply.Buttons) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, btn := range reply.Buttons {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", btn.Label, btn.URL)
	}
	return b.String()
}

func readAllLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, media.DefaultMaxBytes))
}

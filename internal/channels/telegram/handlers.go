package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/omnibothq/omnibot/internal/bus"
)

// classified is a Telegram message reduced to pipeline vocabulary.
type classified struct {
	kind   bus.ContentKind
	text   string
	fileID string
}

// classify maps a Telegram message onto the closed content kind set.
// Captioned media keeps its caption as the text part.
func classify(msg *telego.Message) classified {
	switch {
	case len(msg.Photo) > 0:
		// Telegram delivers ascending resolutions; take the largest.
		return classified{kind: bus.KindImage, text: msg.Caption, fileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Voice != nil:
		return classified{kind: bus.KindAudio, fileID: msg.Voice.FileID}
	case msg.Audio != nil:
		return classified{kind: bus.KindAudio, fileID: msg.Audio.FileID}
	case msg.Video != nil:
		return classified{kind: bus.KindVideo, text: msg.Caption, fileID: msg.Video.FileID}
	case msg.Sticker != nil:
		return classified{kind: bus.KindSticker, fileID: msg.Sticker.FileID}
	case msg.Document != nil:
		return classified{kind: bus.KindDocument, text: msg.Caption, fileID: msg.Document.FileID}
	case msg.Text != "":
		return classified{kind: bus.KindText, text: msg.Text}
	default:
		return classified{kind: bus.KindUnsupported}
	}
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	if msg.Chat.Type != telego.ChatTypePrivate {
		// Group chats are out of scope for the assistant.
		return
	}

	externalID := strconv.FormatInt(msg.Chat.ID, 10)
	cls := classify(msg)
	profile := c.profileFor(ctx, msg.From)

	slog.Debug("telegram message received",
		"instance", c.TenantScope(), "chat_id", msg.Chat.ID, "kind", cls.kind)

	switch cls.kind {
	case bus.KindAudio:
		// Voice notes skip the debounce buffer entirely.
		data, name, err := c.downloadFile(ctx, cls.fileID)
		if err != nil {
			slog.Warn("telegram voice download failed", "file_id", cls.fileID, "error", err)
			return
		}
		c.pipe.SubmitAudio(ctx, c.TenantID(), c.Name(), externalID, profile, name, data)

	case bus.KindUnsupported:
		slog.Debug("telegram message kind unsupported", "chat_id", msg.Chat.ID)

	default:
		frag := bus.Fragment{Text: cls.text, Kind: cls.kind, Profile: profile}
		if cls.fileID != "" {
			url, err := c.fileURL(ctx, cls.fileID)
			if err != nil {
				slog.Warn("telegram file resolve failed", "file_id", cls.fileID, "error", err)
			} else {
				frag.MediaURL = url
			}
		}
		c.pipe.Enqueue(ctx, c.TenantID(), c.Name(), externalID, frag)
	}
}

type profileEntry struct {
	profile bus.Profile
	at      time.Time
}

const profileCacheTTL = 12 * time.Hour

// profileFor builds the sender profile, enriching it with avatar and
// bio at most once per TTL. Enrichment is best-effort.
func (c *Channel) profileFor(ctx context.Context, user *telego.User) bus.Profile {
	if cached, ok := c.profiles.Load(user.ID); ok {
		entry := cached.(profileEntry)
		if time.Since(entry.at) < profileCacheTTL {
			return entry.profile
		}
	}

	p := bus.Profile{
		FirstName: user.FirstName,
		Username:  user.Username,
	}
	if user.Username != "" {
		p.PlatformLink = "https://t.me/" + user.Username
	}

	if photos, err := c.bot.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{
		UserID: user.ID,
		Limit:  1,
	}); err == nil && photos.TotalCount > 0 && len(photos.Photos) > 0 {
		sizes := photos.Photos[0]
		if url, err := c.fileURL(ctx, sizes[len(sizes)-1].FileID); err == nil {
			p.AvatarURL = url
		}
	}
	if chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(user.ID)}); err == nil {
		p.Bio = chat.Bio
	}

	c.profiles.Store(user.ID, profileEntry{profile: p, at: time.Now()})
	return p
}

// fileURL resolves a file ID into a Bot API download URL.
func (c *Channel) fileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	return "https://api.telegram.org/file/bot" + c.token + "/" + file.FilePath, nil
}

// downloadFile fetches a file's bytes, returning a filename suitable
// for the transcription endpoint.
func (c *Channel) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := c.fileURL(ctx, fileID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("voice request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("voice download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("voice download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("voice read: %w", err)
	}
	return data, "voice.ogg", nil
}

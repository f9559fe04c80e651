// Package whatsapp runs a WhatsApp multi-device socket per tenant
// scope, with QR pairing and a local sqlite device store.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/channels"
	"github.com/omnibothq/omnibot/internal/pipeline"
	"github.com/omnibothq/omnibot/internal/store"
)

const (
	reconnectBase    = time.Second
	reconnectMax     = 30 * time.Second
	reconnectRetries = 5
)

// Channel owns one WhatsApp device session. The device store lives in
// a per-scope sqlite file so tenants pair independently.
type Channel struct {
	*channels.BaseChannel
	pipe     *pipeline.Pipeline
	client   *whatsmeow.Client
	dbPath   string
	mediaDir string

	mu       sync.Mutex
	qrCode   string
	stopping bool
}

func New(tenantID *uuid.UUID, pipe *pipeline.Pipeline, storeDir, mediaDir string) (*Channel, error) {
	c := &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", tenantID),
		pipe:        pipe,
		mediaDir:    mediaDir,
	}

	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("whatsapp store dir: %w", err)
	}
	c.dbPath = filepath.Join(storeDir, c.TenantScope()+".db")

	container, err := sqlstore.New(context.Background(), "sqlite",
		"file:"+c.dbPath+"?_pragma=foreign_keys(1)", waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("whatsapp device: %w", err)
	}

	c.client = whatsmeow.NewClient(device, waLog.Noop)
	c.client.AddEventHandler(c.handleEvent)
	return c, nil
}

// Factory builds WhatsApp instances for scopes that opted in via the
// WHATSAPP_ENABLED setting. Pairing state is created lazily on Start.
func Factory(pipe *pipeline.Pipeline, storeDir, mediaDir string, globalEnabled bool) channels.AdapterFactory {
	return func(tenantID *uuid.UUID, settings map[string]string) (channels.Channel, error) {
		enabled := settings[store.SettingWhatsAppEnabled] == "true"
		if tenantID == nil && globalEnabled {
			enabled = true
		}
		if !enabled {
			return nil, nil
		}
		return New(tenantID, pipe, storeDir, mediaDir)
	}
}

func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = false
	c.mu.Unlock()

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil && !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		go c.consumeQR(qrChan)
		slog.Info("whatsapp pairing started", "instance", c.TenantScope())
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		slog.Info("whatsapp session restored",
			"instance", c.TenantScope(), "number", c.client.Store.ID.User)
	}

	c.SetRunning(true)
	return nil
}

func (c *Channel) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.mu.Lock()
			c.qrCode = evt.Code
			c.mu.Unlock()
			slog.Info("whatsapp qr code refreshed", "instance", c.TenantScope())
		case "success":
			c.mu.Lock()
			c.qrCode = ""
			c.mu.Unlock()
			slog.Info("whatsapp paired", "instance", c.TenantScope())
		default:
			slog.Debug("whatsapp pairing event", "instance", c.TenantScope(), "event", evt.Event)
		}
	}
}

// QRPNG renders the current pairing code, or nil when no pairing is
// in progress.
func (c *Channel) QRPNG() []byte {
	c.mu.Lock()
	code := c.qrCode
	c.mu.Unlock()
	if code == "" {
		return nil
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		slog.Warn("whatsapp qr render failed", "error", err)
		return nil
	}
	return png
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.client.Disconnect()
	c.SetRunning(false)
	return nil
}

// reconnect retries the socket with exponential backoff. Pairing loss
// is handled separately by purgeAuth.
func (c *Channel) reconnect() {
	delay := reconnectBase
	for attempt := 1; attempt <= reconnectRetries; attempt++ {
		c.mu.Lock()
		stopping := c.stopping
		c.mu.Unlock()
		if stopping {
			return
		}

		time.Sleep(delay)
		if err := c.client.Connect(); err == nil {
			slog.Info("whatsapp reconnected", "instance", c.TenantScope(), "attempt", attempt)
			return
		} else {
			slog.Warn("whatsapp reconnect failed",
				"instance", c.TenantScope(), "attempt", attempt, "error", err)
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
	slog.Error("whatsapp reconnect abandoned", "instance", c.TenantScope())
	c.SetRunning(false)
}

// purgeAuth drops the device store after a remote logout so the next
// start runs a fresh pairing.
func (c *Channel) purgeAuth() {
	c.client.Disconnect()
	if err := os.Remove(c.dbPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("whatsapp auth purge failed", "path", c.dbPath, "error", err)
	}
	c.SetRunning(false)
	slog.Warn("whatsapp logged out, pairing required on next start",
		"instance", c.TenantScope())
}

// Send delivers the reply text (buttons flattened into it, since the
// socket has no link buttons) followed by one image upload per photo.
func (c *Channel) Send(ctx context.Context, externalID string, reply bus.Reply) error {
	jid, err := watypes.ParseJID(externalID + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("whatsapp jid %q: %w", externalID, err)
	}

	if text := renderText(reply); text != "" {
		_, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
			Conversation: proto.String(text),
		})
		if err != nil {
			return fmt.Errorf("whatsapp send: %w", err)
		}
	}

	for _, photo := range reply.Photos {
		if err := c.sendPhoto(ctx, jid, photo); err != nil {
			return fmt.Errorf("whatsapp send photo %q: %w", photo.Name, err)
		}
	}
	return nil
}

func (c *Channel) sendPhoto(ctx context.Context, jid watypes.JID, photo bus.Photo) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photo.URL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch photo: status %d", resp.StatusCode)
	}
	data, err := readAllLimited(resp.Body)
	if err != nil {
		return err
	}

	uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	img := &waE2E.ImageMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		Mimetype:      proto.String(http.DetectContentType(data)),
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}
	if photo.Caption != "" {
		img.Caption = proto.String(photo.Caption)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: img})
	return err
}

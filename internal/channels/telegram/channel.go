// Package telegram connects conversations to the Telegram Bot API
// using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/omnibothq/omnibot/internal/channels"
	"github.com/omnibothq/omnibot/internal/pipeline"
	"github.com/omnibothq/omnibot/internal/store"
)

// Channel is one Telegram bot instance bound to a tenant scope.
type Channel struct {
	*channels.BaseChannel
	bot      *telego.Bot
	token    string
	pipe     *pipeline.Pipeline
	profiles sync.Map // user ID int64 → profileEntry

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel for a tenant scope.
func New(token string, tenantID *uuid.UUID, pipe *pipeline.Pipeline) (*Channel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", tenantID),
		bot:         bot,
		token:       token,
		pipe:        pipe,
	}, nil
}

// Factory builds telegram instances from scope settings. Scopes without
// a bot token produce no instance.
func Factory(pipe *pipeline.Pipeline, fallbackToken string) channels.AdapterFactory {
	return func(tenantID *uuid.UUID, settings map[string]string) (channels.Channel, error) {
		token := settings[store.SettingTelegramToken]
		if token == "" && tenantID == nil {
			token = fallbackToken
		}
		if token == "" {
			return nil, nil
		}
		return New(token, tenantID, pipe)
	}
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected",
		"instance", channels.InstanceKey(c.TenantID(), c.Name()),
		"username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the poll goroutine to exit,
// so Telegram releases the getUpdates lock before any restart.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

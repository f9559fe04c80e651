package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/omnibothq/omnibot/internal/bus"
)

// guardMarkdown downgrades double-asterisk bold to Telegram's legacy
// single-asterisk markdown, which the Bot API would otherwise reject
// as unbalanced entities.
func guardMarkdown(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}

// keyboardFor renders reply buttons as one inline URL button per row.
func keyboardFor(buttons []bus.Button) *telego.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(b.Label).WithURL(b.URL),
		))
	}
	return tu.InlineKeyboard(rows...)
}

// Send delivers a reply: the text message first (with any buttons),
// then one photo message per resolved photo.
func (c *Channel) Send(ctx context.Context, externalID string, reply bus.Reply) error {
	var chatID int64
	if _, err := fmt.Sscanf(externalID, "%d", &chatID); err != nil {
		return fmt.Errorf("telegram chat id %q: %w", externalID, err)
	}
	id := tu.ID(chatID)

	if reply.Text != "" {
		params := tu.Message(id, guardMarkdown(reply.Text)).
			WithParseMode(telego.ModeMarkdown)
		if kb := keyboardFor(reply.Buttons); kb != nil {
			params = params.WithReplyMarkup(kb)
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			// Markdown entities from the model can still be unbalanced;
			// retry once as plain text rather than dropping the reply.
			plain := tu.Message(id, reply.Text)
			if kb := keyboardFor(reply.Buttons); kb != nil {
				plain = plain.WithReplyMarkup(kb)
			}
			if _, err := c.bot.SendMessage(ctx, plain); err != nil {
				return fmt.Errorf("telegram send: %w", err)
			}
		}
	}

	for _, photo := range reply.Photos {
		params := tu.Photo(id, tu.FileFromURL(photo.URL))
		if photo.Caption != "" {
			params = params.WithCaption(photo.Caption)
		}
		if _, err := c.bot.SendPhoto(ctx, params); err != nil {
			return fmt.Errorf("telegram send photo %q: %w", photo.Name, err)
		}
	}
	return nil
}

package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/omnibothq/omnibot/internal/bus"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		msg    *telego.Message
		kind   bus.ContentKind
		text   string
		fileID string
	}{
		{"text", &telego.Message{Text: "hola"}, bus.KindText, "hola", ""},
		{
			"photo takes largest size",
			&telego.Message{
				Caption: "mi pedido",
				Photo: []telego.PhotoSize{
					{FileID: "small", Width: 90},
					{FileID: "large", Width: 800},
				},
			},
			bus.KindImage, "mi pedido", "large",
		},
		{"voice", &telego.Message{Voice: &telego.Voice{FileID: "v1"}}, bus.KindAudio, "", "v1"},
		{"audio file", &telego.Message{Audio: &telego.Audio{FileID: "a1"}}, bus.KindAudio, "", "a1"},
		{
			"document with caption",
			&telego.Message{Caption: "factura", Document: &telego.Document{FileID: "d1"}},
			bus.KindDocument, "factura", "d1",
		},
		{"video", &telego.Message{Video: &telego.Video{FileID: "vid"}}, bus.KindVideo, "", "vid"},
		{"sticker", &telego.Message{Sticker: &telego.Sticker{FileID: "s1"}}, bus.KindSticker, "", "s1"},
		{"unsupported", &telego.Message{}, bus.KindUnsupported, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.msg)
			if got.kind != tt.kind || got.text != tt.text || got.fileID != tt.fileID {
				t.Errorf("classify = %+v, want kind=%v text=%q fileID=%q",
					got, tt.kind, tt.text, tt.fileID)
			}
		})
	}
}

func TestGuardMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sin formato", "sin formato"},
		{"**negrita**", "*negrita*"},
		{"mezcla **a** y *b*", "mezcla *a* y *b*"},
	}
	for _, tt := range tests {
		if got := guardMarkdown(tt.in); got != tt.want {
			t.Errorf("guardMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyboardFor(t *testing.T) {
	if keyboardFor(nil) != nil {
		t.Error("keyboard for no buttons should be nil")
	}

	kb := keyboardFor([]bus.Button{
		{Label: "Reservar", URL: "https://example.com/book"},
		{Label: "Menú", URL: "https://example.com/menu"},
	})
	if kb == nil || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("keyboard = %+v, want 2 rows", kb)
	}
	btn := kb.InlineKeyboard[0][0]
	if btn.Text != "Reservar" || btn.URL != "https://example.com/book" {
		t.Errorf("button = %+v", btn)
	}
}

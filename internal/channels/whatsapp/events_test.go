package whatsapp

import (
	"testing"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/omnibothq/omnibot/internal/bus"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hola")}, "hola"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("mira esto")}},
			"mira esto",
		},
		{"empty", &waE2E.Message{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.msg); got != tt.want {
				t.Errorf("extractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		msg      *waE2E.Message
		kind     bus.ContentKind
		text     string
		hasMedia bool
	}{
		{
			"text",
			&waE2E.Message{Conversation: proto.String("hola")},
			bus.KindText, "hola", false,
		},
		{
			"image with caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("el recibo")}},
			bus.KindImage, "el recibo", true,
		},
		{
			"document",
			&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("factura.pdf")}},
			bus.KindDocument, "", true,
		},
		{
			"video caption only",
			&waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("mira")}},
			bus.KindVideo, "mira", false,
		},
		{
			"sticker",
			&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			bus.KindSticker, "", false,
		},
		{"unsupported", &waE2E.Message{}, bus.KindUnsupported, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, text, downloadable, _ := classify(tt.msg)
			if kind != tt.kind {
				t.Errorf("kind = %v, want %v", kind, tt.kind)
			}
			if text != tt.text {
				t.Errorf("text = %q, want %q", text, tt.text)
			}
			if (downloadable != nil) != tt.hasMedia {
				t.Errorf("downloadable = %v, want hasMedia=%v", downloadable, tt.hasMedia)
			}
		})
	}
}

func TestClassifyDocumentExtension(t *testing.T) {
	_, _, _, ext := classify(&waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("factura.pdf")},
	})
	if ext != ".pdf" {
		t.Errorf("ext = %q, want .pdf", ext)
	}
	_, _, _, ext = classify(&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}})
	if ext != ".bin" {
		t.Errorf("ext = %q, want fallback .bin", ext)
	}
}

func TestRenderText(t *testing.T) {
	tests := []struct {
		name  string
		reply bus.Reply
		want  string
	}{
		{"plain", bus.Reply{Text: "hola"}, "hola"},
		{"bold downgraded", bus.Reply{Text: "**Oferta** del día"}, "*Oferta* del día"},
		{
			"buttons flattened",
			bus.Reply{Text: "Reserva aquí", Buttons: []bus.Button{
				{Label: "Reservar", URL: "https://example.com/book"},
			}},
			"Reserva aquí\nReservar: https://example.com/book",
		},
		{
			"buttons without body",
			bus.Reply{Buttons: []bus.Button{{Label: "Ver", URL: "https://example.com"}}},
			"Ver: https://example.com",
		},
		{"empty", bus.Reply{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderText(tt.reply); got != tt.want {
				t.Errorf("renderText = %q, want %q", got, tt.want)
			}
		})
	}
}

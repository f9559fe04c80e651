package bot

import (
	"regexp"
	"strings"

	"github.com/omnibothq/omnibot/internal/bus"
)

// Parsed is a model reply split into clean text and extracted directives.
type Parsed struct {
	Text       string
	PhotoNames []string
	Buttons    []bus.Button
}

// Parser extracts inline directives from raw model output.
type Parser interface {
	Parse(raw string) Parsed
}

// TagParser recognizes [SEND_PHOTO: name] and [BUTTON: label | url]
// tags, case-insensitively, anywhere in the reply.
type TagParser struct{}

var (
	photoTagRe  = regexp.MustCompile(`(?i)\[\s*SEND_PHOTO\s*:\s*([^\]\s]+)\s*\]`)
	buttonTagRe = regexp.MustCompile(`(?i)\[\s*BUTTON\s*:\s*([^|\]]+)\|\s*([^\]]+)\]`)

	// Markers left dangling on their own line after tag removal.
	orphanMarkerRe   = regexp.MustCompile(`(?m)^[*\-•\d.]+[ \t]*$`)
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

func (TagParser) Parse(raw string) Parsed {
	var p Parsed

	for _, m := range photoTagRe.FindAllStringSubmatch(raw, -1) {
		p.PhotoNames = append(p.PhotoNames, m[1])
	}
	for _, m := range buttonTagRe.FindAllStringSubmatch(raw, -1) {
		p.Buttons = append(p.Buttons, bus.Button{
			Label: strings.TrimSpace(m[1]),
			URL:   strings.TrimSpace(m[2]),
		})
	}

	text := photoTagRe.ReplaceAllString(raw, "")
	text = buttonTagRe.ReplaceAllString(text, "")
	text = orphanMarkerRe.ReplaceAllString(text, "")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")
	p.Text = strings.TrimSpace(text)
	return p
}

// Package bus defines the message shapes exchanged between transport
// adapters and the conversation pipeline.
package bus

// ContentKind is the closed set of normalized inbound payload kinds.
// Each adapter maps its platform-native event into exactly one of these
// before handing the fragment to the shared pipeline; unsupported kinds
// are a terminal branch, never a silent fallthrough.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindImage       ContentKind = "image"
	KindAudio       ContentKind = "audio"
	KindDocument    ContentKind = "document"
	KindVideo       ContentKind = "video"
	KindSticker     ContentKind = "sticker"
	KindUnsupported ContentKind = "unsupported"
)

// Profile carries the mutable contact fields captured from a platform event.
// Empty fields never overwrite known values downstream.
type Profile struct {
	FirstName    string `json:"first_name,omitempty"`
	Username     string `json:"username,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Bio          string `json:"bio,omitempty"`
	PlatformLink string `json:"platform_link,omitempty"`
}

// Fragment is one raw inbound message unit before debounce coalescing.
type Fragment struct {
	Text     string      `json:"text"`
	Kind     ContentKind `json:"kind"`
	MediaURL string      `json:"media_url,omitempty"`
	Profile  Profile     `json:"profile"`
}

// Button is a URL button parsed out of an assistant reply.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Photo is a resolved gallery/knowledge asset attached to a reply.
type Photo struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Reply is the structured pipeline result dispatched back to a channel.
// An empty Text with no photos means the pipeline chose to stay silent
// (paused contact, expired subscription, unsupported input).
type Reply struct {
	Text    string   `json:"text"`
	Photos  []Photo  `json:"photos,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Empty reports whether the reply carries nothing to send.
func (r Reply) Empty() bool {
	return r.Text == "" && len(r.Photos) == 0
}

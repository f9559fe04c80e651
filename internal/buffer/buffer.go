// Package buffer coalesces rapid-fire message fragments per conversation
// into a single combined message, flushed after a sliding quiet window.
package buffer

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/omnibothq/omnibot/internal/bus"
)

// MediaPlaceholder stands in for the text of a flush whose fragments
// carried no usable text but did carry media.
const MediaPlaceholder = "[Media]"

// Flush is the coalesced output handed to the flush callback: all
// non-empty fragment texts joined by newlines, the kind and media
// reference of the last media-bearing fragment, and the most recent
// sender profile observed.
type Flush struct {
	Key      Key
	Text     string
	Kind     bus.ContentKind
	MediaURL string
	Profile  bus.Profile
}

// Key identifies one debounce slot: a single conversation on a single
// channel, scoped to a tenant ("global" when the tenant is nil).
type Key struct {
	TenantScope string
	Channel     string
	ExternalID  string
}

func (k Key) String() string {
	return k.TenantScope + "_" + k.Channel + "_" + k.ExternalID
}

// FlushFunc consumes one coalesced flush. It runs on the timer goroutine
// after the entry has been removed, so a slow consumer never blocks new
// fragments from starting a fresh window.
type FlushFunc func(f Flush)

type entry struct {
	texts    []string
	kind     bus.ContentKind
	mediaURL string
	profile  bus.Profile
	deadline time.Time
	timer    Timer
	gen      uint64
}

// Buffer is the per-conversation debounce map. All state transitions
// happen under one mutex; the flush callback itself runs outside it.
type Buffer struct {
	mu      sync.Mutex
	entries map[Key]*entry
	clock   Clock
	flush   FlushFunc
	logger  *slog.Logger
	stopped bool
}

func New(clock Clock, flush FlushFunc, logger *slog.Logger) *Buffer {
	return &Buffer{
		entries: make(map[Key]*entry),
		clock:   clock,
		flush:   flush,
		logger:  logger,
	}
}

// Add appends a fragment to the key's pending window and re-arms the
// timer to fire after delay. The first fragment opens the window; each
// later one slides the deadline forward.
func (b *Buffer) Add(key Key, frag bus.Fragment, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	e, ok := b.entries[key]
	if !ok {
		e = &entry{kind: bus.KindText}
		b.entries[key] = e
	}

	if text := strings.TrimSpace(frag.Text); text != "" {
		e.texts = append(e.texts, text)
	}
	if frag.Kind != bus.KindText && frag.MediaURL != "" {
		// Last media wins.
		e.kind = frag.Kind
		e.mediaURL = frag.MediaURL
	}
	if frag.Profile != (bus.Profile{}) {
		e.profile = frag.Profile
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	e.deadline = b.clock.Now().Add(delay)
	gen := e.gen
	e.timer = b.clock.AfterFunc(delay, func() {
		b.fire(key, gen)
	})
}

// fire delivers the flush for key if gen is still current. A stale
// generation means a newer fragment re-armed the window after this
// timer was scheduled; the late fire is abandoned.
func (b *Buffer) fire(key Key, gen uint64) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok || e.gen != gen || b.stopped {
		b.mu.Unlock()
		return
	}
	delete(b.entries, key)
	b.mu.Unlock()

	f := Flush{
		Key:      key,
		Text:     strings.Join(e.texts, "\n"),
		Kind:     e.kind,
		MediaURL: e.mediaURL,
		Profile:  e.profile,
	}
	if f.Text == "" && f.MediaURL != "" {
		f.Text = MediaPlaceholder
	}
	if f.Text == "" && f.MediaURL == "" {
		// Nothing coalesced to anything deliverable.
		return
	}
	b.flush(f)
}

// Pending reports whether a window is currently open for key.
func (b *Buffer) Pending(key Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	return ok
}

// Len returns the number of open windows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Stop cancels every pending timer and drops buffered fragments.
// Fragments are ephemeral: nothing is persisted or delivered on shutdown.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for key, e := range b.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(b.entries, key)
	}
	b.logger.Debug("message buffer stopped")
}

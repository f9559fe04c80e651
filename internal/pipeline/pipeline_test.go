package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bot"
	"github.com/omnibothq/omnibot/internal/buffer"
	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/llm"
	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) buffer.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.stopped = true
	return true
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type recordedDispatch struct {
	channel    string
	externalID string
	reply      bus.Reply
}

type fakeHandler struct {
	mu       sync.Mutex
	requests []bot.Request
	reply    bus.Reply
}

func (h *fakeHandler) Handle(_ context.Context, req bot.Request) bus.Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return h.reply
}

type staticSettings map[string]string

func (s staticSettings) Get(_ context.Context, _ *uuid.UUID, key string) (string, error) {
	return s[key], nil
}

func (s staticSettings) All(context.Context, *uuid.UUID) (map[string]string, error) {
	return map[string]string(s), nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) ChatCompletion(context.Context, []llm.Message) (*llm.Result, error) {
	return nil, errors.New("unused")
}

func (f *fakeTranscriber) Transcribe(context.Context, string, []byte) (string, error) {
	return f.text, f.err
}

func (f *fakeTranscriber) Summarize(context.Context, []llm.Message) (*llm.Result, error) {
	return nil, errors.New("unused")
}

type staticResolver struct{ client llm.Client }

func (r staticResolver) ClientFor(context.Context, *uuid.UUID) llm.Client { return r.client }

func newTestPipeline(clock *manualClock, handler Handler, set store.SettingStore, client llm.Client) (*Pipeline, *[]recordedDispatch) {
	logger := slog.New(slog.DiscardHandler)
	p := New(context.Background(), clock, handler,
		settings.NewService(set, logger), staticResolver{client: client}, logger)

	var mu sync.Mutex
	dispatched := &[]recordedDispatch{}
	p.SetDispatch(func(_ context.Context, _ *uuid.UUID, channel, externalID string, reply bus.Reply) {
		mu.Lock()
		defer mu.Unlock()
		*dispatched = append(*dispatched, recordedDispatch{channel, externalID, reply})
	})
	return p, dispatched
}

func TestEnqueueUsesConfiguredDelay(t *testing.T) {
	clock := newManualClock()
	handler := &fakeHandler{reply: bus.Reply{Text: "ok"}}
	p, dispatched := newTestPipeline(clock, handler,
		staticSettings{store.SettingBufferSeconds: "3"}, &fakeTranscriber{})

	p.Enqueue(context.Background(), nil, "telegram", "7", bus.Fragment{Text: "hola", Kind: bus.KindText})
	clock.Advance(2 * time.Second)
	if len(handler.requests) != 0 {
		t.Fatal("flushed before configured delay")
	}
	clock.Advance(1 * time.Second)
	if len(handler.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(handler.requests))
	}
	if len(*dispatched) != 1 || (*dispatched)[0].reply.Text != "ok" {
		t.Fatalf("dispatched = %+v", *dispatched)
	}
}

func TestFlushCarriesCoalescedRequest(t *testing.T) {
	clock := newManualClock()
	handler := &fakeHandler{reply: bus.Reply{Text: "ok"}}
	tenantID := uuid.Must(uuid.NewV7())
	p, _ := newTestPipeline(clock, handler, staticSettings{}, &fakeTranscriber{})

	p.Enqueue(context.Background(), &tenantID, "whatsapp", "521555", bus.Fragment{Text: "hola", Kind: bus.KindText})
	p.Enqueue(context.Background(), &tenantID, "whatsapp", "521555", bus.Fragment{Text: "ayuda", Kind: bus.KindText})
	clock.Advance(settings.DefaultBufferDelay)

	if len(handler.requests) != 1 {
		t.Fatalf("requests = %d, want 1 coalesced", len(handler.requests))
	}
	req := handler.requests[0]
	if req.Text != "hola\nayuda" {
		t.Errorf("text = %q", req.Text)
	}
	if req.TenantID == nil || *req.TenantID != tenantID {
		t.Errorf("tenant = %v, want round-tripped through the key", req.TenantID)
	}
	if req.Channel != "whatsapp" || req.ExternalID != "521555" {
		t.Errorf("routing = %s/%s", req.Channel, req.ExternalID)
	}
}

func TestEmptyReplyNotDispatched(t *testing.T) {
	clock := newManualClock()
	handler := &fakeHandler{reply: bus.Reply{}}
	p, dispatched := newTestPipeline(clock, handler, staticSettings{}, &fakeTranscriber{})

	p.Enqueue(context.Background(), nil, "telegram", "7", bus.Fragment{Text: "hola", Kind: bus.KindText})
	clock.Advance(settings.DefaultBufferDelay)

	if len(*dispatched) != 0 {
		t.Errorf("dispatched empty reply: %+v", *dispatched)
	}
}

func TestSubmitAudioBypassesBuffer(t *testing.T) {
	clock := newManualClock()
	handler := &fakeHandler{reply: bus.Reply{Text: "entendido"}}
	p, dispatched := newTestPipeline(clock, handler, staticSettings{},
		&fakeTranscriber{text: "quiero una pizza"})

	p.SubmitAudio(context.Background(), nil, "telegram", "7", bus.Profile{}, "voice.ogg", []byte("ogg"))

	// No clock advance: the audio path must not wait for a window.
	if len(handler.requests) != 1 {
		t.Fatalf("requests = %d, want immediate processing", len(handler.requests))
	}
	req := handler.requests[0]
	if req.Text != "quiero una pizza" || req.Kind != bus.KindAudio {
		t.Errorf("request = %+v", req)
	}
	if len(*dispatched) != 1 || (*dispatched)[0].reply.Text != "entendido" {
		t.Errorf("dispatched = %+v", *dispatched)
	}
}

func TestSubmitAudioTranscriptionFailure(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeTranscriber
	}{
		{"error", &fakeTranscriber{err: errors.New("api down")}},
		{"empty transcript", &fakeTranscriber{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newManualClock()
			handler := &fakeHandler{reply: bus.Reply{Text: "nope"}}
			p, dispatched := newTestPipeline(clock, handler, staticSettings{}, tt.fake)

			p.SubmitAudio(context.Background(), nil, "telegram", "7", bus.Profile{}, "voice.ogg", []byte("ogg"))

			if len(handler.requests) != 0 {
				t.Errorf("handler reached despite unusable transcript")
			}
			if len(*dispatched) != 1 || (*dispatched)[0].reply.Text != bot.TranscriptionFailedReply {
				t.Errorf("dispatched = %+v, want fallback reply", *dispatched)
			}
		})
	}
}

func TestStopDropsPendingWork(t *testing.T) {
	clock := newManualClock()
	handler := &fakeHandler{reply: bus.Reply{Text: "ok"}}
	p, dispatched := newTestPipeline(clock, handler, staticSettings{}, &fakeTranscriber{})

	p.Enqueue(context.Background(), nil, "telegram", "7", bus.Fragment{Text: "hola", Kind: bus.KindText})
	p.Stop()
	clock.Advance(time.Minute)

	if len(handler.requests) != 0 || len(*dispatched) != 0 {
		t.Errorf("work delivered after Stop")
	}
}

// Package pipeline connects channel adapters to the conversation
// processor through the debounce buffer, and routes replies back out.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bot"
	"github.com/omnibothq/omnibot/internal/buffer"
	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/settings"
)

// DispatchFunc delivers a finished reply back to the transport that
// owns the conversation.
type DispatchFunc func(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, reply bus.Reply)

// Handler runs one coalesced inbound message through the conversation
// pipeline. *bot.Processor is the production implementation.
type Handler interface {
	Handle(ctx context.Context, req bot.Request) bus.Reply
}

// Pipeline is the inbound entry point for every channel adapter.
type Pipeline struct {
	buf       *buffer.Buffer
	processor Handler
	settings  *settings.Service
	llm       bot.ClientResolver
	dispatch  DispatchFunc
	logger    *slog.Logger

	// ctx outlives individual webhook requests: flushes fire from
	// timers long after the originating request has returned.
	ctx context.Context
}

func New(ctx context.Context, clock buffer.Clock, processor Handler, set *settings.Service, resolver bot.ClientResolver, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		processor: processor,
		settings:  set,
		llm:       resolver,
		logger:    logger,
		ctx:       ctx,
	}
	p.buf = buffer.New(clock, p.onFlush, logger)
	return p
}

// SetDispatch wires the outbound side. Must be called before any
// fragment is enqueued.
func (p *Pipeline) SetDispatch(d DispatchFunc) { p.dispatch = d }

func tenantScope(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return "global"
	}
	return tenantID.String()
}

func tenantFromScope(s string) *uuid.UUID {
	if s == "global" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// Enqueue buffers one inbound fragment. The debounce window is the
// tenant's configured delay, resolved per fragment so settings changes
// apply to the next window.
func (p *Pipeline) Enqueue(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, frag bus.Fragment) {
	delay := p.settings.BufferDelay(ctx, tenantID)
	key := buffer.Key{
		TenantScope: tenantScope(tenantID),
		Channel:     channel,
		ExternalID:  externalID,
	}
	p.buf.Add(key, frag, delay)
}

// onFlush runs one coalesced message through the processor and
// dispatches the reply.
func (p *Pipeline) onFlush(f buffer.Flush) {
	tenantID := tenantFromScope(f.Key.TenantScope)
	req := bot.Request{
		TenantID:   tenantID,
		Channel:    f.Key.Channel,
		ExternalID: f.Key.ExternalID,
		Profile:    f.Profile,
		Text:       f.Text,
		Kind:       f.Kind,
		MediaURL:   f.MediaURL,
	}
	reply := p.processor.Handle(p.ctx, req)
	p.deliver(tenantID, f.Key.Channel, f.Key.ExternalID, reply)
}

// SubmitAudio transcribes a voice note and processes it immediately,
// bypassing the debounce buffer. An unusable transcript produces the
// fixed fallback reply instead of a model turn.
func (p *Pipeline) SubmitAudio(ctx context.Context, tenantID *uuid.UUID, channel, externalID string, profile bus.Profile, filename string, audio []byte) {
	transcript, err := p.llm.ClientFor(ctx, tenantID).Transcribe(ctx, filename, audio)
	if err != nil || strings.TrimSpace(transcript) == "" {
		if err != nil {
			p.logger.Warn("transcription failed",
				"channel", channel, "external_id", externalID, "error", err)
		}
		p.deliver(tenantID, channel, externalID, bus.Reply{Text: bot.TranscriptionFailedReply})
		return
	}

	reply := p.processor.Handle(ctx, bot.Request{
		TenantID:   tenantID,
		Channel:    channel,
		ExternalID: externalID,
		Profile:    profile,
		Text:       transcript,
		Kind:       bus.KindAudio,
	})
	p.deliver(tenantID, channel, externalID, reply)
}

func (p *Pipeline) deliver(tenantID *uuid.UUID, channel, externalID string, reply bus.Reply) {
	if reply.Empty() {
		return
	}
	if p.dispatch == nil {
		p.logger.Warn("reply dropped, no dispatcher wired", "channel", channel)
		return
	}
	p.dispatch(p.ctx, tenantID, channel, externalID, reply)
}

// Pending reports whether a debounce window is open for the conversation.
func (p *Pipeline) Pending(tenantID *uuid.UUID, channel, externalID string) bool {
	return p.buf.Pending(buffer.Key{
		TenantScope: tenantScope(tenantID),
		Channel:     channel,
		ExternalID:  externalID,
	})
}

// Stop cancels all pending debounce windows.
func (p *Pipeline) Stop() { p.buf.Stop() }

package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps tracked rate-limit keys so rotating sender
	// IDs cannot exhaust memory.
	maxTrackedSenders = 4096

	rateWindow  = 60 * time.Second
	rateMaxHits = 30
)

type rateWindowEntry struct {
	start time.Time
	count int
}

// WebhookRateLimiter bounds inbound webhook traffic per sender.
// Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*rateWindowEntry
}

func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{
		now:     time.Now,
		entries: make(map[string]*rateWindowEntry),
	}
}

// Allow reports whether the sender is within its per-window budget.
func (r *WebhookRateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.entries) >= maxTrackedSenders {
		r.evict(now)
	}

	e, ok := r.entries[sender]
	if !ok || now.Sub(e.start) >= rateWindow {
		r.entries[sender] = &rateWindowEntry{start: now, count: 1}
		return true
	}
	e.count++
	return e.count <= rateMaxHits
}

// evict drops expired windows, then arbitrary ones if still at the cap.
func (r *WebhookRateLimiter) evict(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.start) >= rateWindow {
			delete(r.entries, k)
		}
	}
	for len(r.entries) >= maxTrackedSenders {
		for k := range r.entries {
			delete(r.entries, k)
			break
		}
	}
}

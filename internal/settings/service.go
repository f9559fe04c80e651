// Package settings reads tenant-scoped configuration with a short TTL
// cache in front of the store, so hot paths like the debounce delay
// lookup do not hit Postgres on every message.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/google/uuid"
	"github.com/omnibothq/omnibot/internal/store"
)

// Debounce window bounds. Values outside the range are clamped, not
// rejected, and any unreadable value falls back to the default.
const (
	DefaultBufferDelay = 8 * time.Second
	MinBufferDelay     = 1 * time.Second
	MaxBufferDelay     = 30 * time.Second

	cacheTTL = 60 * time.Second
)

// Service caches setting lookups per tenant scope.
type Service struct {
	store  store.SettingStore
	cache  *gocache.Cache
	logger *slog.Logger
}

func NewService(st store.SettingStore, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

func scopeKey(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return "global"
	}
	return tenantID.String()
}

// Snapshot returns all settings of the scope, from cache when fresh.
func (s *Service) Snapshot(ctx context.Context, tenantID *uuid.UUID) (map[string]string, error) {
	key := scopeKey(tenantID)
	if v, ok := s.cache.Get(key); ok {
		return v.(map[string]string), nil
	}
	all, err := s.store.All(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, all, cacheTTL)
	return all, nil
}

// Get returns one setting value, or "" when unset.
func (s *Service) Get(ctx context.Context, tenantID *uuid.UUID, key string) (string, error) {
	snap, err := s.Snapshot(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return snap[key], nil
}

// BufferDelay resolves the debounce window for a tenant. It never fails:
// storage errors and unparseable values fall back to the default, and
// out-of-range values are clamped into [MinBufferDelay, MaxBufferDelay].
func (s *Service) BufferDelay(ctx context.Context, tenantID *uuid.UUID) time.Duration {
	raw, err := s.Get(ctx, tenantID, store.SettingBufferSeconds)
	if err != nil {
		s.logger.Warn("buffer delay lookup failed, using default",
			"tenant", scopeKey(tenantID), "error", err)
		return DefaultBufferDelay
	}
	if raw == "" {
		return DefaultBufferDelay
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultBufferDelay
	}
	d := time.Duration(secs) * time.Second
	if d < MinBufferDelay {
		return MinBufferDelay
	}
	if d > MaxBufferDelay {
		return MaxBufferDelay
	}
	return d
}

// Invalidate drops the cached snapshot of a scope so the next read
// reflects a settings change immediately.
func (s *Service) Invalidate(tenantID *uuid.UUID) {
	s.cache.Delete(scopeKey(tenantID))
}

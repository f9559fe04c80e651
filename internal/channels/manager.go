package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bus"
)

// Manager holds every running adapter instance, keyed by tenant scope
// and transport name, and routes finished replies back to them.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]Channel
}

func NewManager() *Manager {
	return &Manager{instances: make(map[string]Channel)}
}

// Register adds an instance to the registry. An existing instance under
// the same key is replaced (the caller stops it first on reload).
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[InstanceKey(ch.TenantID(), ch.Name())] = ch
}

// Unregister removes an instance.
func (m *Manager) Unregister(tenantID *uuid.UUID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, InstanceKey(tenantID, name))
}

// Get returns the instance for a tenant scope and transport.
func (m *Manager) Get(tenantID *uuid.UUID, name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.instances[InstanceKey(tenantID, name)]
	return ch, ok
}

// StartAll starts every registered instance. A single failing instance
// is logged and skipped, never aborting the rest.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.instances) == 0 {
		slog.Warn("no channel instances configured")
		return
	}
	for key, ch := range m.instances {
		slog.Info("starting channel", "instance", key)
		if err := ch.Start(ctx); err != nil {
			slog.Error("channel start failed", "instance", key, "error", err)
		}
	}
}

// StopAll stops every registered instance.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for key, ch := range m.instances {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "instance", key, "error", err)
		}
	}
}

// Dispatch delivers a reply to the adapter owning the conversation.
// When the tenant has no instance of its own, the global instance of
// the same transport carries the reply.
func (m *Manager) Dispatch(ctx context.Context, tenantID *uuid.UUID, name, externalID string, reply bus.Reply) {
	ch, ok := m.Get(tenantID, name)
	if !ok && tenantID != nil {
		ch, ok = m.Get(nil, name)
	}
	if !ok {
		slog.Warn("no channel instance for reply", "channel", name)
		return
	}
	if err := ch.Send(ctx, externalID, reply); err != nil {
		slog.Error("reply delivery failed",
			"channel", name, "external_id", externalID, "error", err)
	}
}

// Status reports the running state of every instance.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.instances))
	for key, ch := range m.instances {
		status[key] = ch.IsRunning()
	}
	return status
}

// Instances returns the registered instance keys.
func (m *Manager) Instances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.instances))
	for key := range m.instances {
		keys = append(keys, key)
	}
	return keys
}

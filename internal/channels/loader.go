package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store"
)

// AdapterFactory builds one adapter instance for a tenant scope from
// that scope's settings snapshot. Returning (nil, nil) means the scope
// has no credentials for this transport and no instance is created.
type AdapterFactory func(tenantID *uuid.UUID, settings map[string]string) (Channel, error)

// TenantLoader builds the adapter fleet: the global instances plus one
// instance set per active tenant that carries transport credentials.
type TenantLoader struct {
	tenants   store.TenantStore
	settings  *settings.Service
	manager   *Manager
	factories map[string]AdapterFactory
	logger    *slog.Logger
}

func NewTenantLoader(tenants store.TenantStore, set *settings.Service, manager *Manager, logger *slog.Logger) *TenantLoader {
	return &TenantLoader{
		tenants:   tenants,
		settings:  set,
		manager:   manager,
		factories: make(map[string]AdapterFactory),
		logger:    logger,
	}
}

// RegisterFactory registers a transport factory ("telegram", "whatsapp", "meta").
func (l *TenantLoader) RegisterFactory(name string, factory AdapterFactory) {
	l.factories[name] = factory
}

// LoadAll instantiates adapters for the global scope and every active
// tenant. A broken scope is logged and skipped.
func (l *TenantLoader) LoadAll(ctx context.Context) error {
	if err := l.loadScope(ctx, nil); err != nil {
		return fmt.Errorf("load global scope: %w", err)
	}

	tenants, err := l.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}
	for _, t := range tenants {
		id := t.ID
		if err := l.loadScope(ctx, &id); err != nil {
			l.logger.Error("tenant channel load failed", "tenant", t.ID, "name", t.Name, "error", err)
		}
	}
	return nil
}

func (l *TenantLoader) loadScope(ctx context.Context, tenantID *uuid.UUID) error {
	snap, err := l.settings.Snapshot(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("settings snapshot: %w", err)
	}

	for name, factory := range l.factories {
		ch, err := factory(tenantID, snap)
		if err != nil {
			l.logger.Error("adapter construction failed",
				"channel", name, "instance", InstanceKey(tenantID, name), "error", err)
			continue
		}
		if ch == nil {
			continue
		}
		l.manager.Register(ch)
		l.logger.Info("channel instance loaded", "instance", InstanceKey(tenantID, name))
	}
	return nil
}

// ReloadScope tears down and rebuilds one scope's instances, picking up
// changed credentials. Settings cache for the scope is invalidated first.
func (l *TenantLoader) ReloadScope(ctx context.Context, tenantID *uuid.UUID) error {
	l.settings.Invalidate(tenantID)
	for name := range l.factories {
		if ch, ok := l.manager.Get(tenantID, name); ok {
			if err := ch.Stop(ctx); err != nil {
				l.logger.Warn("channel stop during reload failed",
					"instance", InstanceKey(tenantID, name), "error", err)
			}
			l.manager.Unregister(tenantID, name)
		}
	}
	if err := l.loadScope(ctx, tenantID); err != nil {
		return err
	}
	for name := range l.factories {
		if ch, ok := l.manager.Get(tenantID, name); ok && !ch.IsRunning() {
			if err := ch.Start(ctx); err != nil {
				l.logger.Error("channel start during reload failed",
					"instance", InstanceKey(tenantID, name), "error", err)
			}
		}
	}
	return nil
}

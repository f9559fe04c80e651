// Package channels provides the transport abstraction layer: adapters
// that turn platform events into inbound fragments and render replies
// back in each platform's native vocabulary.
package channels

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/bus"
)

// Channel is one running transport instance, bound to a tenant scope.
type Channel interface {
	// Name returns the transport identifier ("telegram", "whatsapp", "meta").
	Name() string

	// TenantID returns the owning tenant, nil for the global instance.
	TenantID() *uuid.UUID

	// Start begins listening for events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts the instance down.
	Stop(ctx context.Context) error

	// Send renders a reply natively and delivers it to the conversation.
	Send(ctx context.Context, externalID string, reply bus.Reply) error

	// IsRunning reports whether the instance is processing events.
	IsRunning() bool
}

// BaseChannel carries the identity shared by every adapter.
// Adapter implementations embed this struct.
type BaseChannel struct {
	name     string
	tenantID *uuid.UUID
	running  bool
}

func NewBaseChannel(name string, tenantID *uuid.UUID) *BaseChannel {
	return &BaseChannel{name: name, tenantID: tenantID}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) TenantID() *uuid.UUID { return c.tenantID }

// TenantScope returns the settings scope of this instance.
func (c *BaseChannel) TenantScope() string {
	if c.tenantID == nil {
		return "global"
	}
	return c.tenantID.String()
}

func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// InstanceKey identifies one adapter instance in the manager registry.
func InstanceKey(tenantID *uuid.UUID, name string) string {
	scope := "global"
	if tenantID != nil {
		scope = tenantID.String()
	}
	return scope + "/" + name
}

// ParseScope resolves a scope path segment to a tenant ID. "global"
// maps to nil.
func ParseScope(scope string) (*uuid.UUID, error) {
	if scope == "global" {
		return nil, nil
	}
	id, err := uuid.Parse(scope)
	if err != nil {
		return nil, fmt.Errorf("tenant scope %q: %w", scope, err)
	}
	return &id, nil
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

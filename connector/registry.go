// ABOUTME: Per-tenant connector sessions
// ABOUTME: Builds one connector per configured system, in configured order
package connector

import (
	"context"
	"fmt"
)

// Factory builds an authenticated connector for one tenant.
type Factory func(ctx context.Context, tenantID string) (Connector, error)

// Session is the set of connectors opened for one tenant. Systems whose
// factory failed are listed in Failed and treated as unavailable.
type Session struct {
	TenantID   string
	Connectors []Connector
	Failed     map[string]error
	order      []string
}

// NewSession builds a session from already opened connectors.
func NewSession(tenantID string, connectors ...Connector) *Session {
	s := &Session{TenantID: tenantID, Connectors: connectors, Failed: make(map[string]error)}
	for _, c := range connectors {
		s.order = append(s.order, c.Name())
	}
	return s
}

// Systems returns every configured system name, opened or not, in order.
func (s *Session) Systems() []string {
	return append([]string(nil), s.order...)
}

// Get returns the connector for system, if it was opened.
func (s *Session) Get(system string) (Connector, bool) {
	for _, c := range s.Connectors {
		if c.Name() == system {
			return c, true
		}
	}
	return nil, false
}

// Provider opens connector sessions for tenants.
type Provider interface {
	Open(ctx context.Context, tenantID string) *Session
}

// Registry maps system names to factories.
type Registry struct {
	order     []string
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a system. Systems are processed in registration order.
func (r *Registry) Register(system string, factory Factory) error {
	if _, exists := r.factories[system]; exists {
		return fmt.Errorf("system %q already registered", system)
	}
	r.order = append(r.order, system)
	r.factories[system] = factory
	return nil
}

// Systems returns the registered system names in order.
func (r *Registry) Systems() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Open(ctx context.Context, tenantID string) *Session {
	session := &Session{TenantID: tenantID, Failed: make(map[string]error)}
	for _, system := range r.order {
		session.order = append(session.order, system)
		c, err := r.factories[system](ctx, tenantID)
		if err != nil {
			session.Failed[system] = Unavailable(system, err)
			continue
		}
		session.Connectors = append(session.Connectors, c)
	}
	return session
}

// Static returns a factory that hands out the same connector to every tenant.
func Static(c Connector) Factory {
	return func(context.Context, string) (Connector, error) {
		return c, nil
	}
}

// Fixed is a Provider that opens the same connectors for every tenant.
type Fixed []Connector

func (f Fixed) Open(_ context.Context, tenantID string) *Session {
	return NewSession(tenantID, f...)
}

var (
	_ Provider = (*Registry)(nil)
	_ Provider = Fixed(nil)
)

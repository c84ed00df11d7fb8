package credentials

import (
	"context"
	"sync/atomic"
)

// Registry is the single source of truth for the currently active Manager.
// It is injected into every consumer (request builders, diagnostic tools)
// instead of being reached through a package-level variable.
//
// The slot is a single atomic pointer: readers never observe a torn value,
// and a Manager is fully constructed before it is published. There is no
// history; replacing the active manager drops the old one together with its
// cached token.
type Registry struct {
	active atomic.Pointer[Manager]
}

// NewRegistry creates a registry with the given initial manager.
func NewRegistry(initial *Manager) *Registry {
	r := &Registry{}
	if initial == nil {
		initial = NewManager(Config{Mode: ModeNone})
	}
	r.active.Store(initial)
	return r
}

// Active returns the currently active manager. Never nil.
func (r *Registry) Active() *Manager {
	return r.active.Load()
}

// SetActive atomically replaces the active manager. Every Active call after
// this returns observes the new instance; calls that already obtained the
// previous manager keep using it for the operation they started.
func (r *Registry) SetActive(manager *Manager) {
	if manager == nil {
		return
	}
	r.active.Store(manager)
}

// GetAuthHeaders resolves headers against the manager that is active at call
// time. Convenience for consumers that only need the request-path primitive.
func (r *Registry) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	return r.Active().GetAuthHeaders(ctx)
}

// Package storage implements the persistence core: a registry that selects
// the best usable backend, the structured record store for sources and
// episodes, the chunked blob store for downloaded media, and the small
// settings facet. Backends live in the subpackages bolt, sqlite and memory.
package storage

import (
	"log/slog"
	"sync"

	"github.com/mmcdole/podcatch/internal/domain"
)

// registryEntry pairs a backend with the priority it was registered under.
type registryEntry struct {
	backend  domain.Backend
	priority int
}

// Registry holds all registered backend implementations and selects the
// usable one with the highest priority at call time. It is an explicit
// instance owned by whoever owns storage lifecycle, so tests construct
// isolated registries.
type Registry struct {
	mu      sync.RWMutex
	entries []registryEntry
	logger  *slog.Logger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a backend under the given priority. Incompatible backends
// are dropped with a warning, not an error: registration happens during
// startup and an incompatible engine is an expected condition, not a fault.
func (r *Registry) Register(backend domain.Backend, priority int) {
	if !backend.Compatible() {
		r.logger.Warn("storage backend is incompatible and will be ignored",
			"backend", backend.Name())
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{backend: backend, priority: priority})
}

// Provide returns the usable backend with the highest priority. Usability
// is re-checked on every call because a backend can become unusable at
// runtime. Returns ErrNoBackend when the candidate set is empty; that
// condition is fatal for the caller and will not resolve without user
// action, so there is no retry.
func (r *Registry) Provide() (domain.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var selected *registryEntry
	for i := range r.entries {
		entry := &r.entries[i]
		if !entry.backend.Usable() {
			continue
		}
		if selected == nil || selected.priority < entry.priority {
			selected = entry
		}
	}

	if selected == nil {
		return nil, domain.ErrNoBackend
	}
	return selected.backend, nil
}

// Close closes every registered backend, returning the first error.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for _, entry := range r.entries {
		if err := entry.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

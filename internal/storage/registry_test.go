package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/log"
)

// stubBackend is a controllable backend for registry tests.
type stubBackend struct {
	name       string
	compatible bool
	usable     bool
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Compatible() bool { return s.compatible }
func (s *stubBackend) Usable() bool { return s.usable }
func (s *stubBackend) Open(context.Context) error { return nil }
func (s *stubBackend) Close() error { return nil }
func (s *stubBackend) Records() domain.RecordBackend { return nil }
func (s *stubBackend) Blobs() domain.BlobBackend { return nil }
func (s *stubBackend) Settings() domain.SettingsBackend { return nil }

func TestRegistrySelectsHighestPriority(t *testing.T) {
	r := NewRegistry(log.NullLogger())
	low := &stubBackend{name: "low", compatible: true, usable: true}
	high := &stubBackend{name: "high", compatible: true, usable: true}

	r.Register(low, 10)
	r.Register(high, 100)

	backend, err := r.Provide()
	require.NoError(t, err)
	assert.Equal(t, "high", backend.Name())
}

func TestRegistryDropsIncompatibleBackends(t *testing.T) {
	r := NewRegistry(log.NullLogger())
	r.Register(&stubBackend{name: "incompatible", compatible: false, usable: true}, 100)

	_, err := r.Provide()
	assert.ErrorIs(t, err, domain.ErrNoBackend)
}

func TestRegistryRechecksUsabilityPerCall(t *testing.T) {
	r := NewRegistry(log.NullLogger())
	preferred := &stubBackend{name: "preferred", compatible: true, usable: true}
	fallback := &stubBackend{name: "fallback", compatible: true, usable: true}

	r.Register(preferred, 100)
	r.Register(fallback, 10)

	backend, err := r.Provide()
	require.NoError(t, err)
	assert.Equal(t, "preferred", backend.Name())

	// The preferred backend stops being usable at runtime; the next call
	// must select the fallback.
	preferred.usable = false
	backend, err = r.Provide()
	require.NoError(t, err)
	assert.Equal(t, "fallback", backend.Name())
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry(log.NullLogger())
	_, err := r.Provide()
	assert.ErrorIs(t, err, domain.ErrNoBackend)
}

func TestRegistryNoUsableBackend(t *testing.T) {
	r := NewRegistry(log.NullLogger())
	r.Register(&stubBackend{name: "down", compatible: true, usable: false}, 100)

	_, err := r.Provide()
	assert.ErrorIs(t, err, domain.ErrNoBackend)
}

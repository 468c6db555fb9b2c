package storage

import (
	"context"
	"errors"

	"github.com/mmcdole/podcatch/internal/domain"
)

// Well-known settings keys.
const (
	SettingProxyURLPattern = "proxyUrlPattern"
	SettingLastPlayed      = "lastPlayed"
	SettingStorageQuota    = "storageQuota"
)

// Settings is the small scalar key/value facet shared by UI and services.
// It rides on the same backend selection as the record and blob stores but
// is neither indexed nor chunked.
type Settings struct {
	registry *Registry
}

// NewSettings creates the settings facet over the registry.
func NewSettings(registry *Registry) *Settings {
	return &Settings{registry: registry}
}

// Get returns the stored value, or fallback when the key is absent.
func (s *Settings) Get(ctx context.Context, key, fallback string) (string, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return "", err
	}

	value, err := backend.Settings().GetSetting(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a value under key.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	backend, err := s.registry.Provide()
	if err != nil {
		return err
	}
	return backend.Settings().PutSetting(ctx, key, value)
}

// Delete removes a key. Absent keys are not an error.
func (s *Settings) Delete(ctx context.Context, key string) error {
	backend, err := s.registry.Provide()
	if err != nil {
		return err
	}
	return backend.Settings().DeleteSetting(ctx, key)
}

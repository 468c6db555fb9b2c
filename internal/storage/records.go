package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/events"
)

// RecordStore is the key-addressed structured store for sources and
// episodes. It owns their lifecycle: point reads default on miss, writes
// upsert by primary key and publish a change event on commit, and every
// episode read path returns the canonical playlist order.
type RecordStore struct {
	registry *Registry
	notifier *events.Notifier
	logger   *slog.Logger
}

// NewRecordStore creates a record store over the given backend registry.
func NewRecordStore(registry *Registry, notifier *events.Notifier, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{registry: registry, notifier: notifier, logger: logger}
}

// GetSource reads one source. A missing key is not an error: the caller
// receives a freshly initialized source for the URI.
func (s *RecordStore) GetSource(ctx context.Context, uri string) (*domain.Source, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	source, err := backend.Records().GetSource(ctx, uri)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Debug("source not in storage, creating new one", "uri", uri)
		return domain.NewSource(uri), nil
	}
	if err != nil {
		return nil, err
	}
	if source.Link == "" {
		source.Link = source.URI
	}
	return source, nil
}

// PutSource upserts a source by URI and publishes write-source on commit.
func (s *RecordStore) PutSource(ctx context.Context, source *domain.Source) (*domain.Source, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	if err := backend.Records().PutSource(ctx, source); err != nil {
		return nil, err
	}
	s.notifier.Publish(events.WriteSource, source)
	return source, nil
}

// DeleteSource removes a source. It does not cascade to the source's
// episodes; removing those is a deliberate, separate user action.
func (s *RecordStore) DeleteSource(ctx context.Context, uri string) error {
	backend, err := s.registry.Provide()
	if err != nil {
		return err
	}

	source, err := s.GetSource(ctx, uri)
	if err != nil {
		return err
	}
	if err := backend.Records().DeleteSource(ctx, uri); err != nil {
		return err
	}
	s.notifier.Publish(events.DeleteSource, source)
	return nil
}

// Sources returns all subscribed sources.
func (s *RecordStore) Sources(ctx context.Context) ([]*domain.Source, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}
	return backend.Records().Sources(ctx)
}

// GetEpisode reads one episode. A missing key yields a new episode with
// default playback state, never an error.
func (s *RecordStore) GetEpisode(ctx context.Context, uri string) (*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	episode, err := backend.Records().GetEpisode(ctx, uri)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Debug("episode not in storage, creating new one", "uri", uri)
		return domain.NewEpisode(uri), nil
	}
	if err != nil {
		return nil, err
	}
	return episode, nil
}

// PutEpisode upserts an episode by URI and publishes write-episode on
// commit.
func (s *RecordStore) PutEpisode(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	if err := backend.Records().PutEpisode(ctx, episode); err != nil {
		return nil, err
	}
	s.notifier.Publish(events.WriteEpisode, episode)
	return episode, nil
}

// DeleteEpisode removes a single episode record.
func (s *RecordStore) DeleteEpisode(ctx context.Context, uri string) error {
	backend, err := s.registry.Provide()
	if err != nil {
		return err
	}
	return backend.Records().DeleteEpisode(ctx, uri)
}

// Episodes returns all episodes in playlist order.
func (s *RecordStore) Episodes(ctx context.Context) ([]*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	episodes, err := backend.Records().Episodes(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortEpisodes(episodes)
	return episodes, nil
}

// EpisodesBySource returns the episodes of one source, via the secondary
// index on the denormalized source title, in playlist order.
func (s *RecordStore) EpisodesBySource(ctx context.Context, sourceTitle string) ([]*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	episodes, err := backend.Records().EpisodesBySource(ctx, sourceTitle)
	if err != nil {
		return nil, err
	}
	domain.SortEpisodes(episodes)
	return episodes, nil
}

// EpisodesByPlayed returns episodes filtered by playback status, via the
// secondary index, in playlist order. EpisodesByPlayed(ctx, false) is the
// playlist query.
func (s *RecordStore) EpisodesByPlayed(ctx context.Context, played bool) ([]*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	episodes, err := backend.Records().EpisodesByPlayed(ctx, played)
	if err != nil {
		return nil, err
	}
	domain.SortEpisodes(episodes)
	return episodes, nil
}

package service

import (
	"context"
	"log/slog"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/storage"
)

// positionGranularity bounds write volume for position updates: the
// player reports every tick, storage sees at most one write per crossed
// boundary.
const positionGranularity = 10 // seconds

// PlaybackService persists listen state: playback positions, played flags
// and the handle minting for offline media.
type PlaybackService struct {
	records  *storage.RecordStore
	blobs    *storage.BlobStore
	settings *storage.Settings
	logger   *slog.Logger
}

// NewPlaybackService creates a playback service.
func NewPlaybackService(records *storage.RecordStore, blobs *storage.BlobStore, settings *storage.Settings, logger *slog.Logger) *PlaybackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackService{
		records:  records,
		blobs:    blobs,
		settings: settings,
		logger:   logger,
	}
}

// SavePosition records the playback position, throttled to the nearest
// 10-second boundary: positions within the same boundary as the stored one
// are dropped without a write.
func (s *PlaybackService) SavePosition(ctx context.Context, episode *domain.Episode, seconds int) (*domain.Episode, error) {
	rounded := seconds - seconds%positionGranularity
	if rounded == episode.Playback.CurrentTime {
		return episode, nil
	}

	episode.Playback.CurrentTime = rounded
	return s.records.PutEpisode(ctx, episode)
}

// TogglePlayed flips an episode's played status and rewinds it. Marking an
// episode played also drops its offline media: a finished episode no
// longer needs to occupy quota.
func (s *PlaybackService) TogglePlayed(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	episode.TogglePlayed()

	if episode.Playback.Played && episode.IsFileSavedOffline {
		return s.blobs.Delete(ctx, episode)
	}
	return s.records.PutEpisode(ctx, episode)
}

// MarkAllPlayed flags every unplayed episode as played in one sweep.
func (s *PlaybackService) MarkAllPlayed(ctx context.Context) error {
	episodes, err := s.records.EpisodesByPlayed(ctx, false)
	if err != nil {
		return err
	}
	for _, episode := range episodes {
		episode.Playback.Played = true
		if _, err := s.records.PutEpisode(ctx, episode); err != nil {
			return err
		}
	}
	return nil
}

// Open prepares an episode for playback: it re-queries the blob store for
// a fresh media handle (never trusting a handle from a previous run) and
// remembers the episode as last played.
func (s *PlaybackService) Open(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	episode, err := s.blobs.Open(ctx, episode)
	if err != nil {
		return nil, err
	}

	if err := s.settings.Set(ctx, storage.SettingLastPlayed, episode.URI); err != nil {
		s.logger.Warn("failed to remember last played episode", "uri", episode.URI, "error", err)
	}
	return episode, nil
}

// LastPlayed returns the episode the user last opened, or a default
// record when nothing was played yet.
func (s *PlaybackService) LastPlayed(ctx context.Context) (*domain.Episode, error) {
	uri, err := s.settings.Get(ctx, storage.SettingLastPlayed, "")
	if err != nil {
		return nil, err
	}
	if uri == "" {
		return nil, nil
	}
	return s.records.GetEpisode(ctx, uri)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/storage"
)

// fetcher abstracts the network collaborator (consumer-defined interface)
type fetcher interface {
	FetchXML(ctx context.Context, url string) ([]byte, error)
}

// feedParser abstracts the parser collaborator
type feedParser interface {
	Parse(feedURI string, data []byte) (*domain.Source, []*domain.Episode, error)
}

// LibraryService orchestrates subscriptions: fetching feeds, persisting
// the parsed records and answering the playlist queries.
type LibraryService struct {
	records *storage.RecordStore
	fetcher fetcher
	parser  feedParser
	logger  *slog.Logger
}

// NewLibraryService creates a library service.
func NewLibraryService(records *storage.RecordStore, fetcher fetcher, parser feedParser, logger *slog.Logger) *LibraryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryService{
		records: records,
		fetcher: fetcher,
		parser:  parser,
		logger:  logger,
	}
}

// Subscribe fetches and parses the feed at url and persists the source and
// its episodes. Safe to call for an already subscribed feed; it behaves
// like a refresh.
func (s *LibraryService) Subscribe(ctx context.Context, url string) (*domain.Source, error) {
	return s.refresh(ctx, url)
}

// Refresh re-fetches one subscribed source.
func (s *LibraryService) Refresh(ctx context.Context, source *domain.Source) error {
	_, err := s.refresh(ctx, source.URI)
	return err
}

// RefreshAll re-fetches every subscribed source. A failing feed is logged
// and skipped so one dead feed cannot block the rest; the first error is
// returned after the sweep.
func (s *LibraryService) RefreshAll(ctx context.Context) error {
	sources, err := s.records.Sources(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, source := range sources {
		if err := s.Refresh(ctx, source); err != nil {
			s.logger.Warn("refresh failed", "uri", source.URI, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *LibraryService) refresh(ctx context.Context, url string) (*domain.Source, error) {
	data, err := s.fetcher.FetchXML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %q: %w", url, err)
	}

	source, episodes, err := s.parser.Parse(url, data)
	if err != nil {
		return nil, err
	}

	if _, err := s.records.PutSource(ctx, source); err != nil {
		return nil, err
	}

	for _, episode := range episodes {
		if err := s.persistEpisode(ctx, episode); err != nil {
			return nil, err
		}
	}

	s.logger.Info("source refreshed", "uri", source.URI, "episodes", len(episodes))
	return source, nil
}

// persistEpisode upserts a parsed episode. Playback and offline state are
// never taken from the feed: whatever is already stored for the URI wins,
// so a refresh cannot reset listen progress or drop a download marker.
func (s *LibraryService) persistEpisode(ctx context.Context, episode *domain.Episode) error {
	existing, err := s.records.GetEpisode(ctx, episode.URI)
	if err != nil {
		return err
	}
	episode.Playback = existing.Playback
	episode.IsFileSavedOffline = existing.IsFileSavedOffline

	_, err = s.records.PutEpisode(ctx, episode)
	return err
}

// RemoveSource deletes a subscription. The source's episodes are kept:
// cascading deletion would silently discard listen state and downloaded
// media, so it stays a separate user decision.
func (s *LibraryService) RemoveSource(ctx context.Context, uri string) error {
	return s.records.DeleteSource(ctx, uri)
}

// Sources lists all subscriptions.
func (s *LibraryService) Sources(ctx context.Context) ([]*domain.Source, error) {
	return s.records.Sources(ctx)
}

// Episodes lists every known episode in playlist order.
func (s *LibraryService) Episodes(ctx context.Context) ([]*domain.Episode, error) {
	return s.records.Episodes(ctx)
}

// EpisodesOf lists one source's episodes in playlist order.
func (s *LibraryService) EpisodesOf(ctx context.Context, source *domain.Source) ([]*domain.Episode, error) {
	if source.Title == "" {
		return nil, errors.New("source has no title to filter by")
	}
	return s.records.EpisodesBySource(ctx, source.Title)
}

// Playlist returns the unplayed episodes in playlist order.
func (s *LibraryService) Playlist(ctx context.Context) ([]*domain.Episode, error) {
	return s.records.EpisodesByPlayed(ctx, false)
}

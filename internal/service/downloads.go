package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/storage"
	"github.com/mmcdole/podcatch/internal/web"
)

// ErrNoMedia indicates an episode has no playable enclosure to download.
var ErrNoMedia = errors.New("episode has no media enclosure")

// downloader abstracts the byte-fetching side of the network collaborator
type downloader interface {
	FetchBytes(ctx context.Context, url string, onProgress web.ProgressFunc) ([]byte, error)
}

// DownloadService drives the download flow: fetch the complete media file,
// hand it to the blob store, which chunks it and flips the episode's
// offline flag. A cancelled or failed fetch never reaches the store, so
// the store only ever sees complete buffers.
type DownloadService struct {
	fetcher downloader
	blobs   *storage.BlobStore
	logger  *slog.Logger
}

// NewDownloadService creates a download service.
func NewDownloadService(fetcher downloader, blobs *storage.BlobStore, logger *slog.Logger) *DownloadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadService{fetcher: fetcher, blobs: blobs, logger: logger}
}

// Download fetches an episode's media and saves it offline. onProgress may
// be nil.
func (s *DownloadService) Download(ctx context.Context, episode *domain.Episode, onProgress web.ProgressFunc) (*domain.Episode, error) {
	if episode.MediaURL == "" {
		return nil, fmt.Errorf("downloading %q: %w", episode.URI, ErrNoMedia)
	}

	s.logger.Info("downloading episode", "uri", episode.URI, "url", episode.MediaURL)
	data, err := s.fetcher.FetchBytes(ctx, episode.MediaURL, onProgress)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", episode.MediaURL, err)
	}

	return s.blobs.Save(ctx, episode, data, episode.MediaType)
}

// Delete removes an episode's offline media.
func (s *DownloadService) Delete(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	return s.blobs.Delete(ctx, episode)
}

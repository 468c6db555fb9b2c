package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmcdole/podcatch/internal/domain"
)

// ChunkSize is the fixed size of one blob chunk. Backends impose
// serialization-size ceilings on single values; splitting large audio files
// into uniform chunks keeps every write under that ceiling regardless of
// backend.
const ChunkSize = 1024 * 1024 // 1 MiB

// BlobStore is the key-addressed binary store for downloaded media, keyed
// by the file's origin URL. Writes split payloads into fixed-size chunks;
// reads reassemble them transparently and mint a fresh process-local handle.
type BlobStore struct {
	registry *Registry
	records  *RecordStore
	logger   *slog.Logger
}

// NewBlobStore creates a blob store. The record store is needed to keep an
// episode's offline fields consistent with the payload lifecycle.
func NewBlobStore(registry *Registry, records *RecordStore, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{registry: registry, records: records, logger: logger}
}

// Save persists a complete media payload for the episode and then flags the
// episode as saved offline through the record store. The two writes are
// separate transactions, deliberately ordered so a partial failure leaves
// the episode flagged un-downloaded rather than falsely downloaded.
func (s *BlobStore) Save(ctx context.Context, episode *domain.Episode, data []byte, mimeType string) (*domain.Episode, error) {
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}

	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("saving file to storage",
		"url", episode.MediaURL, "mimeType", mimeType, "bytes", len(data))

	if err := backend.Blobs().PutBlob(ctx, episode.MediaURL, split(data), mimeType); err != nil {
		return nil, fmt.Errorf("saving file %q: %w", episode.MediaURL, err)
	}

	episode.IsFileSavedOffline = true
	episode.MediaType = mimeType
	return s.records.PutEpisode(ctx, episode)
}

// Open reassembles the stored payload for the episode into a fresh
// temporary file and sets OfflineMediaURL to its path. The handle is never
// trusted across restarts; every open mints a new one.
//
// If the episode claims to be saved offline but the backend has no payload,
// Open self-heals: it clears the stale flag, persists the correction and
// returns the episode without a handle instead of failing playback.
func (s *BlobStore) Open(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	chunks, _, err := backend.Blobs().GetBlob(ctx, episode.MediaURL)
	if errors.Is(err, domain.ErrNotFound) {
		if !episode.IsFileSavedOffline {
			return episode, nil
		}
		s.logger.Warn("episode claims offline file but storage has none, clearing flag",
			"uri", episode.URI, "url", episode.MediaURL)
		episode.IsFileSavedOffline = false
		episode.OfflineMediaURL = ""
		return s.records.PutEpisode(ctx, episode)
	}
	if err != nil {
		return nil, fmt.Errorf("opening file %q: %w", episode.MediaURL, err)
	}

	handle, err := writeHandle(chunks)
	if err != nil {
		return nil, err
	}
	episode.OfflineMediaURL = handle
	return episode, nil
}

// Delete removes the episode's payload and always clears the offline
// fields afterward, even when no payload existed: a missing key during
// delete is success, not an error.
func (s *BlobStore) Delete(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	backend, err := s.registry.Provide()
	if err != nil {
		return nil, err
	}

	if err := backend.Blobs().DeleteBlob(ctx, episode.MediaURL); err != nil {
		return nil, fmt.Errorf("deleting file %q: %w", episode.MediaURL, err)
	}

	if episode.OfflineMediaURL != "" {
		os.Remove(episode.OfflineMediaURL)
	}
	episode.IsFileSavedOffline = false
	episode.OfflineMediaURL = ""
	return s.records.PutEpisode(ctx, episode)
}

// split slices data into ChunkSize pieces. The final chunk may be shorter;
// an empty payload yields no chunks.
func split(data []byte) [][]byte {
	chunks := make([][]byte, 0, (len(data)+ChunkSize-1)/ChunkSize)
	for i := 0; i < len(data); i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

// writeHandle concatenates chunks into a temp file and returns its path.
func writeHandle(chunks [][]byte) (string, error) {
	f, err := os.CreateTemp("", "podcatch-media-*")
	if err != nil {
		return "", fmt.Errorf("minting media handle: %w", err)
	}
	for _, chunk := range chunks {
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("minting media handle: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("minting media handle: %w", err)
	}
	return f.Name(), nil
}

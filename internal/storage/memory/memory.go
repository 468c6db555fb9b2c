// Package memory implements the storage backend contracts on in-process
// maps. It is always compatible and usable, registered at the lowest
// priority as a no-persistence fallback, and used for test isolation.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mmcdole/podcatch/internal/domain"
)

// Backend stores records as marshaled JSON so reads hand out copies, the
// same way values copied in and out of an on-disk store would behave.
type Backend struct {
	mu       sync.RWMutex
	sources  map[string][]byte
	episodes map[string][]byte
	blobs    map[string]blobEntry
	settings map[string]string
	open     bool
}

type blobEntry struct {
	chunks   [][]byte
	mimeType string
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		sources:  make(map[string][]byte),
		episodes: make(map[string][]byte),
		blobs:    make(map[string]blobEntry),
		settings: make(map[string]string),
	}
}

func (b *Backend) Name() string     { return "memory" }
func (b *Backend) Compatible() bool { return true }

func (b *Backend) Usable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.open
}

func (b *Backend) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

func (b *Backend) Records() domain.RecordBackend { return (*records)(b) }
func (b *Backend) Blobs() domain.BlobBackend { return (*blobs)(b) }
func (b *Backend) Settings() domain.SettingsBackend { return (*settings)(b) }

type records Backend

func (r *records) GetSource(ctx context.Context, uri string) (*domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.sources[uri]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var source domain.Source
	if err := json.Unmarshal(data, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *records) PutSource(ctx context.Context, source *domain.Source) error {
	data, err := json.Marshal(source)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.URI] = data
	return nil
}

func (r *records) DeleteSource(ctx context.Context, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, uri)
	return nil
}

func (r *records) Sources(ctx context.Context) ([]*domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]*domain.Source, 0, len(r.sources))
	for _, data := range r.sources {
		var source domain.Source
		if err := json.Unmarshal(data, &source); err != nil {
			return nil, err
		}
		sources = append(sources, &source)
	}
	return sources, nil
}

func (r *records) GetEpisode(ctx context.Context, uri string) (*domain.Episode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.episodes[uri]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return unmarshalEpisode(data)
}

func (r *records) PutEpisode(ctx context.Context, episode *domain.Episode) error {
	data, err := json.Marshal(episode)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.episodes[episode.URI] = data
	return nil
}

func (r *records) DeleteEpisode(ctx context.Context, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.episodes, uri)
	return nil
}

func (r *records) Episodes(ctx context.Context) ([]*domain.Episode, error) {
	return r.scan(func(*domain.Episode) bool { return true })
}

func (r *records) EpisodesBySource(ctx context.Context, sourceTitle string) ([]*domain.Episode, error) {
	return r.scan(func(e *domain.Episode) bool { return e.Source == sourceTitle })
}

func (r *records) EpisodesByPlayed(ctx context.Context, played bool) ([]*domain.Episode, error) {
	return r.scan(func(e *domain.Episode) bool { return e.Playback.Played == played })
}

func (r *records) scan(keep func(*domain.Episode) bool) ([]*domain.Episode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	episodes := make([]*domain.Episode, 0, len(r.episodes))
	for _, data := range r.episodes {
		episode, err := unmarshalEpisode(data)
		if err != nil {
			return nil, err
		}
		if keep(episode) {
			episodes = append(episodes, episode)
		}
	}
	return episodes, nil
}

func unmarshalEpisode(data []byte) (*domain.Episode, error) {
	var episode domain.Episode
	if err := json.Unmarshal(data, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

type blobs Backend

func (b *blobs) PutBlob(ctx context.Context, key string, chunks [][]byte, mimeType string) error {
	copied := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		copied[i] = append([]byte(nil), chunk...)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = blobEntry{chunks: copied, mimeType: mimeType}
	return nil
}

func (b *blobs) GetBlob(ctx context.Context, key string) ([][]byte, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.blobs[key]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	chunks := make([][]byte, len(entry.chunks))
	for i, chunk := range entry.chunks {
		chunks[i] = append([]byte(nil), chunk...)
	}
	return chunks, entry.mimeType, nil
}

func (b *blobs) DeleteBlob(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

type settings Backend

func (s *settings) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.settings[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

func (s *settings) PutSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *settings) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, key)
	return nil
}

// Package bolt implements the storage backend contracts on BoltDB. It is
// the preferred engine: a single-file structured KV store with real
// transactions, which fits the one-writer offline client model.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/podcatch/internal/domain"
)

// Bucket names
var (
	bucketMeta      = []byte("meta")
	bucketSources   = []byte("sources")
	bucketEpisodes  = []byte("episodes")
	bucketFiles     = []byte("files")
	bucketFilesMeta = []byte("files_meta")
	bucketSettings  = []byte("settings")

	// Secondary indexes over episodes. Keys are value + 0x00 + uri so a
	// prefix cursor walks exactly one index entry set.
	bucketEpisodesBySource = []byte("episodes_by_source")
	bucketEpisodesByPlayed = []byte("episodes_by_played")
)

// Backend implements domain.Backend using BoltDB.
type Backend struct {
	dataDir string
	db      *bolt.DB
	logger  *slog.Logger
}

// New creates a bolt backend rooted at dataDir. The backend is
// incompatible when no data directory is configured.
func New(dataDir string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{dataDir: dataDir, logger: logger}
}

func (b *Backend) Name() string     { return "bolt" }
func (b *Backend) Compatible() bool { return b.dataDir != "" }
func (b *Backend) Usable() bool     { return b.db != nil }

// Open opens (creating if needed) the database file and brings the schema
// up to the code's expected version. A lock held by another process maps to
// ErrBlocked; a failed upgrade maps to ErrMigration. Neither is retried.
func (b *Backend) Open(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	if err := os.MkdirAll(b.dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(b.dataDir, "podcatch.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return fmt.Errorf("opening %s: %w", path, domain.ErrBlocked)
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}

	if err := migrate(db, b.logger); err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", domain.ErrMigration, err)
	}

	b.db = db
	b.logger.Debug("bolt backend ready", "path", path)
	return nil
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Backend) Records() domain.RecordBackend    { return (*records)(b) }
func (b *Backend) Blobs() domain.BlobBackend        { return (*blobs)(b) }
func (b *Backend) Settings() domain.SettingsBackend { return (*settings)(b) }

// indexKey builds "value 0x00 uri". The separator keeps distinct values
// from prefix-colliding (a source titled "ab" never matches prefix "a").
func indexKey(value, uri string) []byte {
	key := make([]byte, 0, len(value)+1+len(uri))
	key = append(key, value...)
	key = append(key, 0)
	key = append(key, uri...)
	return key
}

func playedValue(played bool) string {
	if played {
		return "1"
	}
	return "0"
}

type records Backend

func (r *records) GetSource(ctx context.Context, uri string) (*domain.Source, error) {
	var source *domain.Source
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSources).Get([]byte(uri))
		if data == nil {
			return domain.ErrNotFound
		}
		source = &domain.Source{}
		return json.Unmarshal(data, source)
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (r *records) PutSource(ctx context.Context, source *domain.Source) error {
	data, err := json.Marshal(source)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSources).Put([]byte(source.URI), data)
	})
}

func (r *records) DeleteSource(ctx context.Context, uri string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSources).Delete([]byte(uri))
	})
}

func (r *records) Sources(ctx context.Context) ([]*domain.Source, error) {
	var sources []*domain.Source
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSources).ForEach(func(k, v []byte) error {
			var source domain.Source
			if err := json.Unmarshal(v, &source); err != nil {
				return err
			}
			sources = append(sources, &source)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *records) GetEpisode(ctx context.Context, uri string) (*domain.Episode, error) {
	var episode *domain.Episode
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEpisodes).Get([]byte(uri))
		if data == nil {
			return domain.ErrNotFound
		}
		episode = &domain.Episode{}
		return json.Unmarshal(data, episode)
	})
	if err != nil {
		return nil, err
	}
	return episode, nil
}

// PutEpisode writes the record and both index entries in one transaction,
// removing index entries for the previous version of the record first.
func (r *records) PutEpisode(ctx context.Context, episode *domain.Episode) error {
	data, err := json.Marshal(episode)
	if err != nil {
		return err
	}
	key := []byte(episode.URI)

	return r.db.Update(func(tx *bolt.Tx) error {
		episodes := tx.Bucket(bucketEpisodes)

		if old := episodes.Get(key); old != nil {
			if err := dropIndexEntries(tx, old, episode.URI); err != nil {
				return err
			}
		}
		if err := episodes.Put(key, data); err != nil {
			return err
		}

		bySource := tx.Bucket(bucketEpisodesBySource)
		if err := bySource.Put(indexKey(episode.Source, episode.URI), nil); err != nil {
			return err
		}
		byPlayed := tx.Bucket(bucketEpisodesByPlayed)
		return byPlayed.Put(indexKey(playedValue(episode.Playback.Played), episode.URI), nil)
	})
}

func (r *records) DeleteEpisode(ctx context.Context, uri string) error {
	key := []byte(uri)
	return r.db.Update(func(tx *bolt.Tx) error {
		episodes := tx.Bucket(bucketEpisodes)
		if old := episodes.Get(key); old != nil {
			if err := dropIndexEntries(tx, old, uri); err != nil {
				return err
			}
		}
		return episodes.Delete(key)
	})
}

// dropIndexEntries removes the index keys derived from a stored record.
func dropIndexEntries(tx *bolt.Tx, stored []byte, uri string) error {
	var old domain.Episode
	if err := json.Unmarshal(stored, &old); err != nil {
		return err
	}
	if err := tx.Bucket(bucketEpisodesBySource).Delete(indexKey(old.Source, uri)); err != nil {
		return err
	}
	return tx.Bucket(bucketEpisodesByPlayed).Delete(indexKey(playedValue(old.Playback.Played), uri))
}

func (r *records) Episodes(ctx context.Context) ([]*domain.Episode, error) {
	var episodes []*domain.Episode
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(k, v []byte) error {
			var episode domain.Episode
			if err := json.Unmarshal(v, &episode); err != nil {
				return err
			}
			episodes = append(episodes, &episode)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

func (r *records) EpisodesBySource(ctx context.Context, sourceTitle string) ([]*domain.Episode, error) {
	return r.readIndex(bucketEpisodesBySource, sourceTitle)
}

func (r *records) EpisodesByPlayed(ctx context.Context, played bool) ([]*domain.Episode, error) {
	return r.readIndex(bucketEpisodesByPlayed, playedValue(played))
}

// readIndex walks one index value's prefix and resolves each entry against
// the primary bucket inside the same view transaction.
func (r *records) readIndex(bucket []byte, value string) ([]*domain.Episode, error) {
	var episodes []*domain.Episode
	prefix := indexKey(value, "")

	err := r.db.View(func(tx *bolt.Tx) error {
		episodesBucket := tx.Bucket(bucketEpisodes)
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			uri := k[len(prefix):]
			data := episodesBucket.Get(uri)
			if data == nil {
				continue // dangling index entry
			}
			var episode domain.Episode
			if err := json.Unmarshal(data, &episode); err != nil {
				return err
			}
			episodes = append(episodes, &episode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

type blobs Backend

// chunkKey encodes a chunk's position as a big-endian sequence number so a
// bucket cursor yields chunks in write order.
func chunkKey(seq int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

func (b *blobs) PutBlob(ctx context.Context, key string, chunks [][]byte, mimeType string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)

		// Replace any previous payload wholesale.
		if files.Bucket([]byte(key)) != nil {
			if err := files.DeleteBucket([]byte(key)); err != nil {
				return err
			}
		}
		payload, err := files.CreateBucket([]byte(key))
		if err != nil {
			return err
		}
		for i, chunk := range chunks {
			if err := payload.Put(chunkKey(i), chunk); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketFilesMeta).Put([]byte(key), []byte(mimeType))
	})
}

func (b *blobs) GetBlob(ctx context.Context, key string) ([][]byte, string, error) {
	var chunks [][]byte
	var mimeType string

	err := b.db.View(func(tx *bolt.Tx) error {
		payload := tx.Bucket(bucketFiles).Bucket([]byte(key))
		if payload == nil {
			return domain.ErrNotFound
		}
		if meta := tx.Bucket(bucketFilesMeta).Get([]byte(key)); meta != nil {
			mimeType = string(meta)
		}
		return payload.ForEach(func(k, v []byte) error {
			chunks = append(chunks, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, "", err
	}
	return chunks, mimeType, nil
}

func (b *blobs) DeleteBlob(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		if files.Bucket([]byte(key)) != nil {
			if err := files.DeleteBucket([]byte(key)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketFilesMeta).Delete([]byte(key))
	})
}

type settings Backend

func (s *settings) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get([]byte(key))
		if data == nil {
			return domain.ErrNotFound
		}
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *settings) PutSetting(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), []byte(value))
	})
}

func (s *settings) DeleteSetting(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

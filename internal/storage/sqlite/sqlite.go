// Package sqlite implements the storage backend contracts on SQLite via
// the CGO-free modernc driver. Records are stored as JSON documents with
// the two indexed episode fields extracted into real columns, so the
// filtered reads are index scans while the record shape stays identical
// across backends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mmcdole/podcatch/internal/domain"
)

// Backend implements domain.Backend using SQLite.
type Backend struct {
	dataDir string
	db      *sql.DB
	logger  *slog.Logger
}

// New creates a sqlite backend rooted at dataDir. Incompatible when no
// data directory is configured.
func New(dataDir string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{dataDir: dataDir, logger: logger}
}

func (b *Backend) Name() string     { return "sqlite" }
func (b *Backend) Compatible() bool { return b.dataDir != "" }
func (b *Backend) Usable() bool     { return b.db != nil }

// Open opens the database file and runs the migration ladder. SQLite's
// busy handler covers same-process contention; a file locked beyond the
// busy timeout surfaces as ErrBlocked.
func (b *Backend) Open(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	if err := os.MkdirAll(b.dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(b.dataDir, "podcatch.sqlite")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection sidesteps
	// SQLITE_BUSY between this process's own transactions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if isLocked(err) {
			return fmt.Errorf("opening %s: %w", path, domain.ErrBlocked)
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}

	if err := migrate(ctx, db, b.logger); err != nil {
		db.Close()
		if isLocked(err) {
			return fmt.Errorf("opening %s: %w", path, domain.ErrBlocked)
		}
		return fmt.Errorf("%w: %v", domain.ErrMigration, err)
	}

	b.db = db
	b.logger.Debug("sqlite backend ready", "path", path)
	return nil
}

// isLocked reports whether err is SQLite's database-locked condition.
// Matched on the diagnostic text so this package does not depend on the
// driver's error codes.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
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

type records Backend

func (r *records) GetSource(ctx context.Context, uri string) (*domain.Source, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT record FROM sources WHERE uri = ?`, uri).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
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
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sources (uri, record) VALUES (?, ?)
		ON CONFLICT (uri) DO UPDATE SET record = excluded.record`,
		source.URI, data)
	return err
}

func (r *records) DeleteSource(ctx context.Context, uri string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE uri = ?`, uri)
	return err
}

func (r *records) Sources(ctx context.Context) ([]*domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT record FROM sources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.Source
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var source domain.Source
		if err := json.Unmarshal(data, &source); err != nil {
			return nil, err
		}
		sources = append(sources, &source)
	}
	return sources, rows.Err()
}

func (r *records) GetEpisode(ctx context.Context, uri string) (*domain.Episode, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT record FROM episodes WHERE uri = ?`, uri).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalEpisode(data)
}

func (r *records) PutEpisode(ctx context.Context, episode *domain.Episode) error {
	data, err := json.Marshal(episode)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO episodes (uri, source, played, record) VALUES (?, ?, ?, ?)
		ON CONFLICT (uri) DO UPDATE SET
			source = excluded.source,
			played = excluded.played,
			record = excluded.record`,
		episode.URI, episode.Source, boolToInt(episode.Playback.Played), data)
	return err
}

func (r *records) DeleteEpisode(ctx context.Context, uri string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM episodes WHERE uri = ?`, uri)
	return err
}

func (r *records) Episodes(ctx context.Context) ([]*domain.Episode, error) {
	return r.query(ctx, `SELECT record FROM episodes`)
}

func (r *records) EpisodesBySource(ctx context.Context, sourceTitle string) ([]*domain.Episode, error) {
	return r.query(ctx, `SELECT record FROM episodes WHERE source = ?`, sourceTitle)
}

func (r *records) EpisodesByPlayed(ctx context.Context, played bool) ([]*domain.Episode, error) {
	return r.query(ctx, `SELECT record FROM episodes WHERE played = ?`, boolToInt(played))
}

func (r *records) query(ctx context.Context, query string, args ...any) ([]*domain.Episode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []*domain.Episode
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		episode, err := unmarshalEpisode(data)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

func unmarshalEpisode(data []byte) (*domain.Episode, error) {
	var episode domain.Episode
	if err := json.Unmarshal(data, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type blobs Backend

func (b *blobs) PutBlob(ctx context.Context, key string, chunks [][]byte, mimeType string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_chunks WHERE url = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (url, mime) VALUES (?, ?)
		ON CONFLICT (url) DO UPDATE SET mime = excluded.mime`,
		key, mimeType); err != nil {
		return err
	}
	for i, chunk := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_chunks (url, seq, chunk) VALUES (?, ?, ?)`,
			key, i, chunk); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *blobs) GetBlob(ctx context.Context, key string) ([][]byte, string, error) {
	var mimeType string
	err := b.db.QueryRowContext(ctx,
		`SELECT mime FROM files WHERE url = ?`, key).Scan(&mimeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT chunk FROM file_chunks WHERE url = ? ORDER BY seq`, key)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var chunks [][]byte
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, "", err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, mimeType, rows.Err()
}

func (b *blobs) DeleteBlob(ctx context.Context, key string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_chunks WHERE url = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE url = ?`, key); err != nil {
		return err
	}
	return tx.Commit()
}

type settings Backend

func (s *settings) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *settings) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func (s *settings) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

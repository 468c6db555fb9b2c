package domain

import "context"

// Backend is a concrete storage engine satisfying the record, blob and
// settings contracts. Implementations report compatibility once (checked at
// registration) and usability per call (a backend can stop being usable at
// runtime, e.g. when its store fails to open or runs out of space).
type Backend interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Compatible reports whether the backend can work in the current
	// runtime environment at all. Checked once, at registration.
	Compatible() bool

	// Usable reports whether the backend can serve requests right now.
	// Re-checked on every Provide call.
	Usable() bool

	// Open prepares the backend for use and runs pending schema
	// migrations. Returns ErrBlocked when another connection holds the
	// store, or an error wrapping ErrMigration when the upgrade fails.
	Open(ctx context.Context) error
	Close() error

	Records() RecordBackend
	Blobs() BlobBackend
	Settings() SettingsBackend
}

// RecordBackend stores structured source and episode records. Point reads
// return ErrNotFound for absent keys; the record store layer above turns
// that into a default record.
type RecordBackend interface {
	GetSource(ctx context.Context, uri string) (*Source, error)
	PutSource(ctx context.Context, source *Source) error
	DeleteSource(ctx context.Context, uri string) error
	Sources(ctx context.Context) ([]*Source, error)

	GetEpisode(ctx context.Context, uri string) (*Episode, error)
	PutEpisode(ctx context.Context, episode *Episode) error
	DeleteEpisode(ctx context.Context, uri string) error
	Episodes(ctx context.Context) ([]*Episode, error)

	// EpisodesBySource reads via the secondary index on the denormalized
	// source title; EpisodesByPlayed via the index on playback status.
	// Neither performs a full scan. Results are unordered; callers sort.
	EpisodesBySource(ctx context.Context, sourceTitle string) ([]*Episode, error)
	EpisodesByPlayed(ctx context.Context, played bool) ([]*Episode, error)
}

// BlobBackend stores binary payloads as an ordered chunk sequence plus a
// MIME type, keyed by the file's origin URL. Chunking happens above this
// interface; backends persist the sequence however suits them.
type BlobBackend interface {
	PutBlob(ctx context.Context, key string, chunks [][]byte, mimeType string) error
	// GetBlob returns the ordered chunks and MIME type, or ErrNotFound.
	GetBlob(ctx context.Context, key string) ([][]byte, string, error)
	// DeleteBlob is idempotent: deleting an absent key succeeds.
	DeleteBlob(ctx context.Context, key string) error
}

// SettingsBackend is the small scalar key/value facet for configuration
// values (proxy template, quota, last-played URI). Unindexed, unchunked.
type SettingsBackend interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

package bolt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/log"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend := New(t.TempDir(), log.NullLogger())
	require.NoError(t, backend.Open(context.Background()))
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestCompatibility(t *testing.T) {
	assert.False(t, New("", log.NullLogger()).Compatible())
	assert.True(t, New(t.TempDir(), log.NullLogger()).Compatible())
}

func TestUsableOnlyAfterOpen(t *testing.T) {
	backend := New(t.TempDir(), log.NullLogger())
	assert.False(t, backend.Usable())

	require.NoError(t, backend.Open(context.Background()))
	assert.True(t, backend.Usable())

	require.NoError(t, backend.Close())
	assert.False(t, backend.Usable())
}

func TestGetSourceNotFound(t *testing.T) {
	backend := newTestBackend(t)
	_, err := backend.Records().GetSource(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourcePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend := New(dir, log.NullLogger())
	require.NoError(t, backend.Open(ctx))
	source := &domain.Source{URI: "https://example.com/feed.xml", Title: "Example Cast"}
	require.NoError(t, backend.Records().PutSource(ctx, source))
	require.NoError(t, backend.Close())

	backend = New(dir, log.NullLogger())
	require.NoError(t, backend.Open(ctx))
	defer backend.Close()

	got, err := backend.Records().GetSource(ctx, source.URI)
	require.NoError(t, err)
	assert.Equal(t, source, got)
}

func TestEpisodeIndexMaintenance(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	records := backend.Records()

	episode := &domain.Episode{
		URI:     "https://example.com/ep1",
		Title:   "Episode One",
		Source:  "Cast A",
		Updated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, records.PutEpisode(ctx, episode))

	byA, err := records.EpisodesBySource(ctx, "Cast A")
	require.NoError(t, err)
	require.Len(t, byA, 1)

	unplayed, err := records.EpisodesByPlayed(ctx, false)
	require.NoError(t, err)
	require.Len(t, unplayed, 1)

	// Moving the episode to another source and marking it played must
	// relocate both index entries, not accumulate stale ones.
	episode.Source = "Cast B"
	episode.Playback.Played = true
	require.NoError(t, records.PutEpisode(ctx, episode))

	byA, err = records.EpisodesBySource(ctx, "Cast A")
	require.NoError(t, err)
	assert.Empty(t, byA)

	byB, err := records.EpisodesBySource(ctx, "Cast B")
	require.NoError(t, err)
	require.Len(t, byB, 1)
	assert.Equal(t, "Episode One", byB[0].Title)

	unplayed, err = records.EpisodesByPlayed(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, unplayed)

	played, err := records.EpisodesByPlayed(ctx, true)
	require.NoError(t, err)
	assert.Len(t, played, 1)
}

func TestDeleteEpisodeDropsIndexEntries(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	records := backend.Records()

	episode := &domain.Episode{URI: "ep1", Source: "Cast A"}
	require.NoError(t, records.PutEpisode(ctx, episode))
	require.NoError(t, records.DeleteEpisode(ctx, "ep1"))

	bySource, err := records.EpisodesBySource(ctx, "Cast A")
	require.NoError(t, err)
	assert.Empty(t, bySource)
}

func TestIndexPrefixDoesNotCollide(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	records := backend.Records()

	// "a" must not match episodes of the source titled "ab".
	require.NoError(t, records.PutEpisode(ctx, &domain.Episode{URI: "ep1", Source: "ab"}))

	episodes, err := records.EpisodesBySource(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, episodes)
}

func TestBlobRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	blobs := backend.Blobs()

	chunks := [][]byte{[]byte("first chunk"), []byte("second chunk"), []byte("third")}
	require.NoError(t, blobs.PutBlob(ctx, "https://example.com/ep1.mp3", chunks, "audio/mpeg"))

	got, mimeType, err := blobs.GetBlob(ctx, "https://example.com/ep1.mp3")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
	assert.Equal(t, "audio/mpeg", mimeType)
}

func TestBlobReplaceDropsOldChunks(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	blobs := backend.Blobs()

	key := "https://example.com/ep1.mp3"
	require.NoError(t, blobs.PutBlob(ctx, key, [][]byte{[]byte("one"), []byte("two")}, "audio/mpeg"))
	require.NoError(t, blobs.PutBlob(ctx, key, [][]byte{[]byte("replacement")}, "audio/ogg"))

	got, mimeType, err := blobs.GetBlob(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("replacement"), got[0])
	assert.Equal(t, "audio/ogg", mimeType)
}

func TestBlobNotFoundAndIdempotentDelete(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	blobs := backend.Blobs()

	_, _, err := blobs.GetBlob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, blobs.DeleteBlob(ctx, "missing"))

	require.NoError(t, blobs.PutBlob(ctx, "key", [][]byte{[]byte("data")}, "audio/mpeg"))
	require.NoError(t, blobs.DeleteBlob(ctx, "key"))
	require.NoError(t, blobs.DeleteBlob(ctx, "key"))

	_, _, err = blobs.GetBlob(ctx, "key")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettingsRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	settings := backend.Settings()

	_, err := settings.GetSetting(ctx, "proxyUrlPattern")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, settings.PutSetting(ctx, "proxyUrlPattern", "https://proxy/$url$"))
	value, err := settings.GetSetting(ctx, "proxyUrlPattern")
	require.NoError(t, err)
	assert.Equal(t, "https://proxy/$url$", value)

	require.NoError(t, settings.DeleteSetting(ctx, "proxyUrlPattern"))
	_, err = settings.GetSetting(ctx, "proxyUrlPattern")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

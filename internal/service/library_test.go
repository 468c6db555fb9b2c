package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/events"
	"github.com/mmcdole/podcatch/internal/log"
	"github.com/mmcdole/podcatch/internal/storage"
	"github.com/mmcdole/podcatch/internal/storage/memory"
	"github.com/mmcdole/podcatch/internal/web"
)

func newTestStores(t *testing.T) (*storage.RecordStore, *storage.BlobStore, *storage.Settings, *events.Notifier) {
	t.Helper()

	backend := memory.New()
	require.NoError(t, backend.Open(context.Background()))

	registry := storage.NewRegistry(log.NullLogger())
	registry.Register(backend, 10)

	notifier := events.NewNotifier(log.NullLogger())
	records := storage.NewRecordStore(registry, notifier, log.NullLogger())
	blobs := storage.NewBlobStore(registry, records, log.NullLogger())
	settings := storage.NewSettings(registry)
	return records, blobs, settings, notifier
}

// stubFetcher serves canned feed bodies by URL.
type stubFetcher struct {
	feeds map[string][]byte
}

func (f *stubFetcher) FetchXML(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.feeds[url]
	if !ok {
		return nil, fmt.Errorf("unreachable feed %q", url)
	}
	return data, nil
}

func (f *stubFetcher) FetchBytes(ctx context.Context, url string, onProgress web.ProgressFunc) ([]byte, error) {
	return f.FetchXML(ctx, url)
}

// stubParser returns canned parse results keyed by feed URI.
type stubParser struct {
	parse func(feedURI string, data []byte) (*domain.Source, []*domain.Episode, error)
}

func (p *stubParser) Parse(feedURI string, data []byte) (*domain.Source, []*domain.Episode, error) {
	return p.parse(feedURI, data)
}

func simpleParser(title string, episodes ...*domain.Episode) *stubParser {
	return &stubParser{parse: func(feedURI string, data []byte) (*domain.Source, []*domain.Episode, error) {
		source := domain.NewSource(feedURI)
		source.Title = title
		return source, episodes, nil
	}}
}

func TestSubscribePersistsSourceAndEpisodes(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()

	fetcher := &stubFetcher{feeds: map[string][]byte{"https://example.com/feed.xml": []byte("<rss/>")}}
	parser := simpleParser("Example Cast",
		&domain.Episode{URI: "ep1", Title: "Episode One", Source: "Example Cast"},
		&domain.Episode{URI: "ep2", Title: "Episode Two", Source: "Example Cast"},
	)
	library := NewLibraryService(records, fetcher, parser, log.NullLogger())

	source, err := library.Subscribe(ctx, "https://example.com/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "Example Cast", source.Title)

	sources, err := library.Sources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)

	episodes, err := library.Episodes(ctx)
	require.NoError(t, err)
	assert.Len(t, episodes, 2)
}

func TestRefreshPreservesListenState(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()

	// The user already listened to this episode and saved it offline.
	stored := &domain.Episode{
		URI:                "ep1",
		Title:              "Old Title",
		Playback:           domain.Playback{Played: true, CurrentTime: 120},
		IsFileSavedOffline: true,
	}
	_, err := records.PutEpisode(ctx, stored)
	require.NoError(t, err)

	// The feed reappears with the same episode at default state.
	fetcher := &stubFetcher{feeds: map[string][]byte{"https://example.com/feed.xml": []byte("<rss/>")}}
	parser := simpleParser("Example Cast",
		&domain.Episode{URI: "ep1", Title: "New Title", Source: "Example Cast"},
	)
	library := NewLibraryService(records, fetcher, parser, log.NullLogger())
	require.NoError(t, library.Refresh(ctx, &domain.Source{URI: "https://example.com/feed.xml"}))

	got, err := records.GetEpisode(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title, "feed metadata is refreshed")
	assert.True(t, got.Playback.Played, "listen state survives a refresh")
	assert.Equal(t, 120, got.Playback.CurrentTime)
	assert.True(t, got.IsFileSavedOffline, "download marker survives a refresh")
}

func TestRefreshAllSkipsFailingFeeds(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()

	for _, uri := range []string{"https://good.example/feed.xml", "https://dead.example/feed.xml"} {
		_, err := records.PutSource(ctx, &domain.Source{URI: uri, Title: uri})
		require.NoError(t, err)
	}

	// Only the first feed is reachable.
	fetcher := &stubFetcher{feeds: map[string][]byte{"https://good.example/feed.xml": []byte("<rss/>")}}
	parser := simpleParser("Good Cast", &domain.Episode{URI: "ep1", Source: "Good Cast"})
	library := NewLibraryService(records, fetcher, parser, log.NullLogger())

	err := library.RefreshAll(ctx)
	assert.Error(t, err, "the dead feed's error is reported")

	episodes, err := records.Episodes(ctx)
	require.NoError(t, err)
	assert.Len(t, episodes, 1, "the reachable feed was still refreshed")
}

func TestRemoveSourceKeepsEpisodes(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()

	_, err := records.PutSource(ctx, &domain.Source{URI: "https://example.com/feed.xml", Title: "Example Cast"})
	require.NoError(t, err)
	_, err = records.PutEpisode(ctx, &domain.Episode{URI: "ep1", Source: "Example Cast"})
	require.NoError(t, err)

	library := NewLibraryService(records, &stubFetcher{}, simpleParser(""), log.NullLogger())
	require.NoError(t, library.RemoveSource(ctx, "https://example.com/feed.xml"))

	sources, err := library.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	episodes, err := library.Episodes(ctx)
	require.NoError(t, err)
	assert.Len(t, episodes, 1)
}

func TestEpisodesOfRequiresTitle(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	library := NewLibraryService(records, &stubFetcher{}, simpleParser(""), log.NullLogger())

	_, err := library.EpisodesOf(context.Background(), &domain.Source{URI: "u"})
	assert.Error(t, err)
}

func TestSubscribeFetchFailure(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	library := NewLibraryService(records, &stubFetcher{}, simpleParser(""), log.NullLogger())

	_, err := library.Subscribe(context.Background(), "https://dead.example/feed.xml")
	assert.Error(t, err)

	sources, err := library.Sources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sources, "a failed fetch must not create a subscription")
}

func TestSubscribeParseFailure(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	fetcher := &stubFetcher{feeds: map[string][]byte{"https://example.com/feed.xml": []byte("garbage")}}
	parser := &stubParser{parse: func(string, []byte) (*domain.Source, []*domain.Episode, error) {
		return nil, nil, errors.New("not a feed")
	}}
	library := NewLibraryService(records, fetcher, parser, log.NullLogger())

	_, err := library.Subscribe(context.Background(), "https://example.com/feed.xml")
	assert.Error(t, err)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/log"
)

func TestSearchEmptyQuery(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	search := NewSearchService(records, log.NullLogger())

	results, err := search.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMatchesTitleAndSource(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()
	search := NewSearchService(records, log.NullLogger())

	for _, e := range []*domain.Episode{
		{URI: "ep1", Title: "Deep Dive on Storage", Source: "Example Cast"},
		{URI: "ep2", Title: "Weekly News", Source: "Other Show"},
	} {
		_, err := records.PutEpisode(ctx, e)
		require.NoError(t, err)
	}

	// Case-insensitive title match.
	results, err := search.Search(ctx, "STORAGE")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ep1", results[0].URI)

	// The denormalized source title is searched too.
	results, err = search.Search(ctx, "other show")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ep2", results[0].URI)
}

func TestSearchRanksCloserMatchesFirst(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()
	search := NewSearchService(records, log.NullLogger())

	for _, e := range []*domain.Episode{
		{URI: "long", Title: "Gopher Odyssey Special", Source: "A"},
		{URI: "short", Title: "Go", Source: "A"},
	} {
		_, err := records.PutEpisode(ctx, e)
		require.NoError(t, err)
	}

	results, err := search.Search(ctx, "go")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "short", results[0].URI)
	assert.Equal(t, "long", results[1].URI)
}

func TestSearchNoMatches(t *testing.T) {
	records, _, _, _ := newTestStores(t)
	ctx := context.Background()
	search := NewSearchService(records, log.NullLogger())

	_, err := records.PutEpisode(ctx, &domain.Episode{URI: "ep1", Title: "Something"})
	require.NoError(t, err)

	results, err := search.Search(ctx, "zzzzqqqq")
	require.NoError(t, err)
	assert.Empty(t, results)
}

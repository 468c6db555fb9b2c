package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/podcatch/internal/domain"
	"github.com/mmcdole/podcatch/internal/storage"
)

// SearchService ranks episodes against a free-text query. It reads through
// the record store on every call; the library is small enough that no
// separate index is kept.
type SearchService struct {
	records *storage.RecordStore
	logger  *slog.Logger
}

// NewSearchService creates a search service.
func NewSearchService(records *storage.RecordStore, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{records: records, logger: logger}
}

// Search fuzzy-matches episodes by title and source title, best match
// first. An empty query returns nothing.
func (s *SearchService) Search(ctx context.Context, query string) ([]*domain.Episode, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	episodes, err := s.records.Episodes(ctx)
	if err != nil {
		return nil, err
	}

	haystack := make([]string, len(episodes))
	for i, episode := range episodes {
		haystack[i] = strings.ToLower(episode.Title + " " + episode.Source)
	}

	matches := fuzzy.RankFindFold(query, haystack)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	results := make([]*domain.Episode, 0, len(matches))
	for _, match := range matches {
		results = append(results, episodes[match.OriginalIndex])
	}

	s.logger.Debug("search complete", "query", query, "results", len(results))
	return results, nil
}

// Package feed turns raw syndication documents into source and episode
// records. The storage core persists whatever comes out of here; feed
// semantics are not validated beyond what gofeed enforces.
package feed

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mmcdole/podcatch/internal/domain"
)

// Parser wraps gofeed for RSS/Atom parsing.
type Parser struct {
	gofeedParser *gofeed.Parser
}

// NewParser creates a feed parser.
func NewParser() *Parser {
	return &Parser{gofeedParser: gofeed.NewParser()}
}

// Parse reads a feed document fetched from feedURI and returns the source
// record plus one episode record per item. The source keeps feedURI as its
// identity even when the feed self-references a different URL.
func (p *Parser) Parse(feedURI string, data []byte) (*domain.Source, []*domain.Episode, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing feed %q: %w", feedURI, err)
	}

	source := domain.NewSource(feedURI)
	source.Title = parsed.Title
	source.Description = parsed.Description
	source.Language = parsed.Language
	if parsed.Link != "" {
		source.Link = parsed.Link
	}
	if parsed.Copyright != "" {
		source.License = parsed.Copyright
	}
	if parsed.Image != nil {
		source.Image = parsed.Image.URL
	}

	episodes := make([]*domain.Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		episode := p.parseItem(source, item)
		if episode == nil {
			continue
		}
		episodes = append(episodes, episode)
	}
	return source, episodes, nil
}

// parseItem maps one feed item to an episode. The item link is the primary
// identity, falling back to the GUID; items with neither are skipped.
func (p *Parser) parseItem(source *domain.Source, item *gofeed.Item) *domain.Episode {
	uri := item.Link
	if uri == "" {
		uri = item.GUID
	}
	if uri == "" {
		return nil
	}

	episode := domain.NewEpisode(uri)
	episode.Title = item.Title
	episode.Source = source.Title

	switch {
	case item.UpdatedParsed != nil:
		episode.Updated = *item.UpdatedParsed
	case item.PublishedParsed != nil:
		episode.Updated = *item.PublishedParsed
	}

	// First playable enclosure wins; episodes without one stay listed but
	// cannot be played or downloaded.
	for _, enclosure := range item.Enclosures {
		if enclosure.URL == "" {
			continue
		}
		episode.MediaURL = enclosure.URL
		episode.MediaType = enclosure.Type
		break
	}

	if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
		episode.Duration = parseDuration(item.ITunesExt.Duration)
	}
	return episode
}

// parseDuration handles the itunes:duration formats: plain seconds,
// "mm:ss" and "hh:mm:ss". Unparseable values yield zero.
func parseDuration(raw string) time.Duration {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) > 3 {
		return 0
	}

	var seconds int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	return time.Duration(seconds) * time.Second
}

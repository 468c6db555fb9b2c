package domain

import (
	"sort"
	"strings"
	"time"
)

// Source represents one subscribed feed. The URI is the stable identity:
// it never changes even if the feed's self-referencing link moves.
type Source struct {
	URI         string `json:"uri"`
	Link        string `json:"link,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
	Language    string `json:"language,omitempty"`
	Image       string `json:"image,omitempty"`
}

// NewSource returns an empty source for the given feed URI.
func NewSource(uri string) *Source {
	return &Source{URI: uri, Link: uri}
}

// Playback tracks listen state for a single episode.
type Playback struct {
	Played      bool `json:"played"`
	CurrentTime int  `json:"currentTime"` // seconds
}

// Jumppoint is a chapter marker within an episode.
type Jumppoint struct {
	Time  float64 `json:"time"` // seconds from start
	Title string  `json:"title"`
	URI   string  `json:"uri,omitempty"`
	Image string  `json:"image,omitempty"`
}

// Episode represents one podcast item.
//
// OfflineMediaURL is a process-local handle minted on every open; it is
// never persisted and never trusted across restarts.
type Episode struct {
	URI       string        `json:"uri"`
	Title     string        `json:"title,omitempty"`
	Source    string        `json:"source,omitempty"` // denormalized source title
	Updated   time.Time     `json:"updated"`
	MediaURL  string        `json:"mediaUrl,omitempty"`
	MediaType string        `json:"mediaType,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`

	Playback Playback `json:"playback"`

	IsFileSavedOffline bool   `json:"isFileSavedOffline"`
	OfflineMediaURL    string `json:"-"`

	Jumppoints []Jumppoint `json:"jumppoints,omitempty"`
}

// NewEpisode returns an empty episode for the given URI with default
// playback state.
func NewEpisode(uri string) *Episode {
	return &Episode{
		URI:      uri,
		Playback: Playback{Played: false, CurrentTime: 0},
	}
}

// TogglePlayed flips the played flag and rewinds the position.
func (e *Episode) TogglePlayed() {
	e.Playback.Played = !e.Playback.Played
	e.Playback.CurrentTime = 0
}

// CompareEpisodes orders two episodes by last-updated ascending, falling
// back to a case-insensitive title comparison. Every read path shares this
// order so no two callers ever observe a different playlist sequence.
func CompareEpisodes(a, b *Episode) int {
	if a.Updated.Before(b.Updated) {
		return -1
	}
	if a.Updated.After(b.Updated) {
		return 1
	}
	return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
}

// SortEpisodes sorts episodes in the canonical playlist order.
func SortEpisodes(episodes []*Episode) {
	sort.SliceStable(episodes, func(i, j int) bool {
		return CompareEpisodes(episodes[i], episodes[j]) < 0
	})
}

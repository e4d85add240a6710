package models

import "strings"

// PreviewUnavailable marks a track whose preview audio is absent in the catalog.
const PreviewUnavailable = "unavailable"

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// Track is a catalog search result. Identity is the catalog ID.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artist     string   `json:"artist"`
	Artists    []string `json:"artists,omitempty"`
	Album      string   `json:"album"`
	PreviewURL string   `json:"preview_url"`
	URL        string   `json:"url"`
	Explicit   bool     `json:"explicit"`
	Popularity int      `json:"popularity"`
}

// Key returns the deduplication key: the catalog ID, or the canonical URL when the ID is missing.
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.URL
}

// HasPreview reports whether the track links to preview audio.
func (t Track) HasPreview() bool {
	return t.PreviewURL != "" && t.PreviewURL != PreviewUnavailable
}

// ArtistNames joins all credited artists, falling back to the primary artist.
func (t Track) ArtistNames() string {
	if len(t.Artists) == 0 {
		return t.Artist
	}
	return strings.Join(t.Artists, ", ")
}

// TrackList is an ordered, deduplicated sequence of tracks.
type TrackList []Track

// IDs returns the track keys in order.
func (l TrackList) IDs() []string {
	ids := make([]string, len(l))
	for i, t := range l {
		ids[i] = t.Key()
	}
	return ids
}

// ExportRecord is the flat, position-numbered projection of a [Track] used by exports.
type ExportRecord struct {
	Position   int    `json:"position"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	PreviewURL string `json:"preview_url"`
	URL        string `json:"url"`
}

// Records projects the list to export records numbered from 1.
func (l TrackList) Records() []ExportRecord {
	records := make([]ExportRecord, len(l))
	for i, t := range l {
		preview := t.PreviewURL
		if preview == "" {
			preview = PreviewUnavailable
		}
		records[i] = ExportRecord{
			Position:   i + 1,
			ID:         t.ID,
			Name:       t.Name,
			Artist:     t.Artist,
			Album:      t.Album,
			PreviewURL: preview,
			URL:        t.URL,
		}
	}
	return records
}

// CatalogQuery is a single search request issued by the planner.
type CatalogQuery struct {
	Query  string
	Market string
	Limit  int
}

// NewCatalogQuery builds a query with the limit defaulted and clamped to the catalog cap.
func NewCatalogQuery(q, market string, limit int) CatalogQuery {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return CatalogQuery{Query: q, Market: market, Limit: limit}
}

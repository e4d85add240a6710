package testing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

// StrategyJSON is a complete, valid strategy payload.
const StrategyJSON = `{
  "mood_summary": "Tired but hopeful after a long week",
  "keywords": ["late night", "soft", "warm", "unwind", "city lights"],
  "seed_genres": ["indie", "lo-fi", "city-pop"],
  "search_queries": ["late night indie", "chill lo-fi beats", "soft city pop"],
  "playlist_theme": "Slow Friday Drive",
  "reason": "Gentle tempos to wind down"
}`

// Strategy returns a strategy with the given queries, keywords and genres.
func Strategy(queries, keywords, genres []string) models.Strategy {
	return models.Strategy{
		MoodSummary:   "test mood",
		Keywords:      keywords,
		SeedGenres:    genres,
		SearchQueries: queries,
		PlaylistTheme: "Test Theme",
		Reason:        "test reason",
	}
}

// Tracks builds n tracks with IDs prefix-1..prefix-n and descending popularity starting at 100.
func Tracks(prefix string, n int) []models.Track {
	out := make([]models.Track, n)
	for i := range out {
		out[i] = models.Track{
			ID:         fmt.Sprintf("%s-%d", prefix, i+1),
			Name:       fmt.Sprintf("%s song %d", prefix, i+1),
			Artist:     prefix + " artist",
			Album:      prefix + " album",
			URL:        fmt.Sprintf("https://open.spotify.com/track/%s-%d", prefix, i+1),
			PreviewURL: models.PreviewUnavailable,
			Popularity: 100 - i,
		}
	}
	return out
}

// FakeCatalog serves canned results keyed by normalized query text and records every query.
type FakeCatalog struct {
	mu      sync.Mutex
	Results map[string][]models.Track
	Errors  map[string]error
	Queries []models.CatalogQuery
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{Results: map[string][]models.Track{}, Errors: map[string]error{}}
}

// On registers results for query.
func (f *FakeCatalog) On(query string, tracks ...models.Track) *FakeCatalog {
	f.Results[shared.NormalizeQuery(query)] = tracks
	return f
}

// Fail registers an error for query. A nil err registers a 500 [shared.CatalogRequestError].
func (f *FakeCatalog) Fail(query string, err error) *FakeCatalog {
	if err == nil {
		err = &shared.CatalogRequestError{Query: query, Status: 500, Err: errors.New("internal server error")}
	}
	f.Errors[shared.NormalizeQuery(query)] = err
	return f
}

func (f *FakeCatalog) Search(ctx context.Context, q models.CatalogQuery) ([]models.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Queries = append(f.Queries, q)
	key := shared.NormalizeQuery(q.Query)
	if err, ok := f.Errors[key]; ok {
		return nil, err
	}
	return append([]models.Track(nil), f.Results[key]...), nil
}

// Issued returns the query strings in the order they were searched.
func (f *FakeCatalog) Issued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.Queries))
	for i, q := range f.Queries {
		out[i] = q.Query
	}
	return out
}

// IssuedString joins [FakeCatalog.Issued] with " | " for readable failure messages.
func (f *FakeCatalog) IssuedString() string {
	return strings.Join(f.Issued(), " | ")
}

// FakeGenerator returns a fixed strategy or error.
type FakeGenerator struct {
	mu       sync.Mutex
	Strategy models.Strategy
	Err      error
	calls    int
}

func (f *FakeGenerator) Generate(ctx context.Context, intent models.UserIntent, modelID string, maxRetries int) (models.Strategy, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.Strategy{}, err
	}
	if f.Err != nil {
		return models.Strategy{}, f.Err
	}
	return f.Strategy, nil
}

// Calls returns the number of Generate calls.
func (f *FakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

// CachedTrack is a catalog track as last seen by any run.
type CachedTrack struct {
	models.Track
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// TrackRepository is the catalog track cache.
//
// Tracks are keyed by [models.Track.Key]. Every run upserts its tracks, refreshing popularity and last_seen_at.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert inserts track or refreshes the cached copy.
func (r *TrackRepository) Upsert(track models.Track) error {
	return upsertTrack(r.db, track, time.Now())
}

// Get retrieves a cached track by key
func (r *TrackRepository) Get(key string) (*CachedTrack, error) {
	query := `
		SELECT key, catalog_id, name, artist, artists, album, preview_url, url, explicit, popularity, first_seen_at, last_seen_at
		FROM tracks
		WHERE key = ?
	`

	return scanTrack(r.db.QueryRow(query, key))
}

// List retrieves cached tracks, most recently seen first.
//
// Supported criteria: "artist" (string, exact), "explicit" (bool), "limit" (int, default 20, max 200).
func (r *TrackRepository) List(criteria map[string]any) ([]*CachedTrack, error) {
	query := `
		SELECT key, catalog_id, name, artist, artists, album, preview_url, url, explicit, popularity, first_seen_at, last_seen_at
		FROM tracks
		WHERE 1 = 1
	`

	args := []any{}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND artist = ?"
		args = append(args, artist)
	}

	if explicit, ok := criteria["explicit"].(bool); ok {
		query += " AND explicit = ?"
		args = append(args, explicit)
	}

	limit := DefaultListLimit
	if l, ok := criteria["limit"].(int); ok && l > 0 {
		limit = min(l, MaxListLimit)
	}
	query += " ORDER BY last_seen_at DESC, popularity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*CachedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// Count returns the number of cached tracks.
func (r *TrackRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

// execer is satisfied by both [sql.DB] and [sql.Tx].
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertTrack(db execer, track models.Track, seenAt time.Time) error {
	key := track.Key()
	if key == "" {
		return fmt.Errorf("%w: track has neither an ID nor a URL", shared.ErrInvalidInput)
	}

	artists := track.Artists
	if artists == nil {
		artists = []string{}
	}
	artistsJSON, err := json.Marshal(artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	query := `
		INSERT INTO tracks (key, catalog_id, name, artist, artists, album, preview_url, url, explicit, popularity, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			artists = excluded.artists,
			album = excluded.album,
			preview_url = excluded.preview_url,
			url = excluded.url,
			explicit = excluded.explicit,
			popularity = excluded.popularity,
			last_seen_at = excluded.last_seen_at
	`

	_, err = db.Exec(query,
		key,
		track.ID,
		track.Name,
		track.Artist,
		string(artistsJSON),
		track.Album,
		track.PreviewURL,
		track.URL,
		track.Explicit,
		track.Popularity,
		seenAt,
		seenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track %s: %w", key, err)
	}
	return nil
}

func scanTrack(row scanner) (*CachedTrack, error) {
	var (
		key         string
		t           models.Track
		artistsJSON string
		firstSeenAt time.Time
		lastSeenAt  time.Time
	)

	err := row.Scan(&key, &t.ID, &t.Name, &t.Artist, &artistsJSON, &t.Album, &t.PreviewURL, &t.URL, &t.Explicit, &t.Popularity, &firstSeenAt, &lastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	if err := json.Unmarshal([]byte(artistsJSON), &t.Artists); err != nil {
		return nil, fmt.Errorf("failed to decode artists for track %s: %w", key, err)
	}
	if len(t.Artists) == 0 {
		t.Artists = nil
	}
	if t.ID == "" && t.URL == "" {
		t.URL = key
	}

	return &CachedTrack{Track: t, FirstSeenAt: firstSeenAt, LastSeenAt: lastSeenAt}, nil
}

package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// RunRepository implements models.Repository[*models.Run] for recommendation history.
//
// A run stores its intent and strategy as JSON and its tracks as ordered rows in run_tracks.
// Tracks themselves live in the shared tracks table, which is upserted on every create.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts run with a generated ID and sequence, upserting each of its tracks.
func (r *RunRepository) Create(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	intentJSON, err := json.Marshal(run.Intent())
	if err != nil {
		return fmt.Errorf("failed to encode intent: %w", err)
	}
	strategyJSON, err := json.Marshal(run.Strategy())
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (id, sequence, model, market, track_count, theme, intent, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		run.ID(),
		run.Sequence(),
		run.ModelID(),
		run.Intent().Market,
		len(run.Tracks()),
		run.Strategy().PlaylistTheme,
		string(intentJSON),
		string(strategyJSON),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, track := range run.Tracks() {
		if err := upsertTrack(tx, track, run.CreatedAt()); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO run_tracks (run_id, track_key, position) VALUES (?, ?, ?)",
			run.ID(), track.Key(), i+1,
		); err != nil {
			return fmt.Errorf("failed to insert run track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Get retrieves a run and its ordered tracks by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `
		SELECT id, sequence, model, intent, strategy, created_at, updated_at, deleted_at
		FROM runs
		WHERE id = ? AND deleted_at IS NULL
	`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	return run, r.loadTracks(run)
}

// GetBySequence retrieves a run by its sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.Run, error) {
	query := `
		SELECT id, sequence, model, intent, strategy, created_at, updated_at, deleted_at
		FROM runs
		WHERE sequence = ? AND deleted_at IS NULL
	`

	run, err := scanRun(r.db.QueryRow(query, sequence))
	if err != nil {
		return nil, err
	}
	return run, r.loadTracks(run)
}

// Find resolves a reference typed by a user: a sequence number ("#3" or "3") or a run ID.
func (r *RunRepository) Find(ref string) (*models.Run, error) {
	ref = strings.TrimSpace(ref)
	if seq, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil {
		return r.GetBySequence(seq)
	}
	return r.Get(ref)
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE runs
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}

	return nil
}

// List retrieves runs newest first, excluding soft-deleted runs.
//
// Supported criteria: "limit" (int, default 20, max 200), "market" (string), "model" (string).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `
		SELECT id, sequence, model, intent, strategy, created_at, updated_at, deleted_at
		FROM runs
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if market, ok := criteria["market"].(string); ok && market != "" {
		query += " AND market = ?"
		args = append(args, strings.ToUpper(market))
	}

	if model, ok := criteria["model"].(string); ok && model != "" {
		query += " AND model = ?"
		args = append(args, model)
	}

	limit := DefaultListLimit
	if l, ok := criteria["limit"].(int); ok && l > 0 {
		limit = min(l, MaxListLimit)
	}
	query += " ORDER BY sequence DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	// Tracks are loaded after the cursor is closed so a single-connection pool is not held twice.
	for _, run := range runs {
		if err := r.loadTracks(run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (r *RunRepository) loadTracks(run *models.Run) error {
	query := `
		SELECT t.key, t.catalog_id, t.name, t.artist, t.artists, t.album, t.preview_url, t.url, t.explicit, t.popularity, t.first_seen_at, t.last_seen_at
		FROM run_tracks rt
		JOIN tracks t ON t.key = rt.track_key
		WHERE rt.run_id = ?
		ORDER BY rt.position ASC
	`

	rows, err := r.db.Query(query, run.ID())
	if err != nil {
		return fmt.Errorf("failed to query run tracks: %w", err)
	}
	defer rows.Close()

	tracks := models.TrackList{}
	for rows.Next() {
		cached, err := scanTrack(rows)
		if err != nil {
			return err
		}
		tracks = append(tracks, cached.Track)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	run.SetTracks(tracks)
	return nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		id           string
		sequence     int
		model        string
		intentJSON   string
		strategyJSON string
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &model, &intentJSON, &strategyJSON, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var intent models.UserIntent
	if err := json.Unmarshal([]byte(intentJSON), &intent); err != nil {
		return nil, fmt.Errorf("failed to decode intent for run %s: %w", id, err)
	}
	var strategy models.Strategy
	if err := json.Unmarshal([]byte(strategyJSON), &strategy); err != nil {
		return nil, fmt.Errorf("failed to decode strategy for run %s: %w", id, err)
	}

	run := models.NewRun(sequence, model, intent, strategy, nil)
	run.SetID(id)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}
	return run, nil
}

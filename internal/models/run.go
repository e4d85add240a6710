package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/moodtape/internal/shared"
)

var _ Model = (*Run)(nil)

// Run is a persisted recommendation: the intent, the generated strategy and the resolved tracks.
type Run struct {
	id        string
	sequence  int
	modelID   string
	intent    UserIntent
	strategy  Strategy
	tracks    TrackList
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewRun creates an unsaved run. The ID is assigned by the repository.
func NewRun(sequence int, modelID string, intent UserIntent, strategy Strategy, tracks TrackList) *Run {
	now := time.Now()
	return &Run{
		sequence:  sequence,
		modelID:   modelID,
		intent:    intent,
		strategy:  strategy,
		tracks:    tracks,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *Run) ID() string                { return r.id }
func (r *Run) Sequence() int             { return r.sequence }
func (r *Run) ModelID() string           { return r.modelID }
func (r *Run) Intent() UserIntent        { return r.intent }
func (r *Run) Strategy() Strategy        { return r.strategy }
func (r *Run) Tracks() TrackList         { return r.tracks }
func (r *Run) CreatedAt() time.Time      { return r.createdAt }
func (r *Run) UpdatedAt() time.Time      { return r.updatedAt }
func (r *Run) DeletedAt() *time.Time     { return r.deletedAt }
func (r *Run) SetID(id string)           { r.id = id }
func (r *Run) SetSequence(seq int)       { r.sequence = seq }
func (r *Run) SetTracks(t TrackList)     { r.tracks = t }
func (r *Run) SetCreatedAt(t time.Time)  { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time)  { r.updatedAt = t }
func (r *Run) SetDeletedAt(t *time.Time) { r.deletedAt = t }

// Validate checks that the run has an ID and a well-formed strategy.
func (r *Run) Validate() error {
	if r.id == "" {
		return fmt.Errorf("%w: run ID is required", shared.ErrInvalidInput)
	}
	if err := r.strategy.Validate(); err != nil {
		return err
	}
	if len(r.tracks) > MaxTrackCount {
		return fmt.Errorf("%w: run holds %d tracks, more than %d", shared.ErrInvalidInput, len(r.tracks), MaxTrackCount)
	}
	return nil
}

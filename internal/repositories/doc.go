// Package repositories implements SQLite persistence for recommendation history.
//
// Key Implementations:
//   - [RunRepository] : runs with their intent, strategy and ordered tracks; soft deletes via deleted_at
//   - [TrackRepository] : catalog track cache keyed by track key, refreshed on every run
//
// [RunRepository] satisfies the pipeline's Recorder interface, so wiring history into a recommendation is a
// single option on the pipeline.
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

// Package models defines the domain types shared by the moodtape pipeline.
//
// Request types:
//   - [UserIntent] : mood, activity, genre/energy/tone hints plus track count, market and explicit policy
//   - [Strategy] : the validated search strategy returned by the generation backend
//   - [CatalogQuery] : one search string with its market and result limit
//
// Result types:
//   - [Track] : a catalog search result, identified by its catalog ID
//   - [TrackList] : ordered, deduplicated tracks; [TrackList.Records] gives the export projection
//
// Persistent entities implement [Model]:
//   - [Run] : a recorded recommendation with its intent, strategy and tracks
//
// [ParseStrategy] is the only constructor for strategies coming from a backend. It rejects
// anything other than a single JSON object with all six schema fields present and typed.
package models

// Package tasks turns a mood description into a ranked track list with real-time progress reporting.
//
// # Core Operations
//
//  1. [QueryPlanner.Resolve] : strategy → tracks
//     - Runs the strategy's search queries in order until enough eligible tracks are found
//     - Escalates to synthesized fallback queries when the primary results fall short
//     - Deduplicates by track key, filters explicit tracks, ranks and truncates
//
//  2. [Pipeline.Recommend] : intent → strategy → tracks
//     - Validates the intent and generates a strategy through [services.Generator]
//     - Resolves tracks, records the run through the optional [Recorder]
//     - Stores the result in the shared [ResultSlot]
//
//  3. [Pipeline.Batch] : many intents → exports + manifest
//     - Worker pool with a rate limiter, one independent pipeline run per intent
//     - Partial failures are reported in the manifest
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default so a slow reader never stalls a request.
package tasks

// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through three views:
//  1. [FormView] : mood, activity, genres, tone, energy, track count, market and the explicit toggle
//  2. [GeneratingView] : a spinner with the latest pipeline progress messages
//  3. [ResultView] : the strategy summary and a scrollable, filterable track list
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the pipeline; the final result follows on a second channel once the
// progress channel closes.
//
// In the result view, s saves a JSON export and r returns to the form with the previous values.
// Help is rendered with charmbracelet/bubbles/help.
//
// [RenderTrackTable] and [RenderStrategy] are shared with the CLI for non-interactive output.
package ui

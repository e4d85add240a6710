package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodtape/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgRecommendationDone
	MsgExportSaved
)

type recommendationDone struct {
	result *tasks.Result
	err    error
}

type exportSaved struct {
	path string
	err  error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// recommendationDoneMsg is the constructor for [MsgRecommendationDone]
func recommendationDoneMsg(result *tasks.Result, err error) Msg {
	return Msg{kind: MsgRecommendationDone, data: recommendationDone{result, err}}
}

// exportSavedMsg is the constructor for [MsgExportSaved]
func exportSavedMsg(path string, err error) Msg {
	return Msg{kind: MsgExportSaved, data: exportSaved{path, err}}
}

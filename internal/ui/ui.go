package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
)

const maxProgressLines = 6

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FormView ViewState = iota
	GeneratingView
	ResultView
)

// Recommender runs the full pipeline for one intent.
type Recommender interface {
	Recommend(ctx context.Context, intent models.UserIntent, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error)
}

// ModelOpts configures [NewModel].
type ModelOpts struct {
	Defaults  models.UserIntent // initial form values
	ExportDir string            // where the save key writes JSON exports
	Logger    *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	recommender Recommender
	exportDir   string
	logger      *log.Logger
	width       int
	height      int
	form        form
	defaults    models.UserIntent
	spinner     spinner.Model
	progress    []string
	progressCh  chan tasks.ProgressUpdate
	doneCh      chan recommendationDone
	cancel      context.CancelFunc
	trackList   list.Model
	result      *tasks.Result
	status      string
	help        help.Model
	keys        keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, recommender Recommender, opts ModelOpts) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	exportDir := opts.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:         ctx,
		view:        FormView,
		recommender: recommender,
		exportDir:   exportDir,
		logger:      logger,
		form:        newForm(opts.Defaults),
		defaults:    opts.Defaults,
		spinner:     s,
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// Init starts the cursor blink for the focused input.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == ResultView {
			m.trackList.SetSize(m.listSize())
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			m.stop()
			return m, tea.Quit
		}
		switch m.view {
		case FormView:
			return m.handleFormKeys(msg)
		case GeneratingView:
			return m.handleGeneratingKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != GeneratingView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = append(m.progress, update.Message)
		if len(m.progress) > maxProgressLines {
			m.progress = m.progress[len(m.progress)-maxProgressLines:]
		}
		return m, m.waitForProgress()

	case MsgRecommendationDone:
		done := msg.data.(recommendationDone)
		m.progressCh, m.doneCh = nil, nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		if errors.Is(done.err, context.Canceled) {
			m.view = FormView
			return m, nil
		}
		if done.err != nil {
			m.logger.Error("recommendation failed", "error", done.err)
			m.form.err = done.err
			m.view = FormView
			return m, nil
		}
		m.showResult(done.result)
		return m, nil

	case MsgExportSaved:
		saved := msg.data.(exportSaved)
		if saved.err != nil {
			m.logger.Error("export failed", "error", saved.err)
			m.status = styles.err.Render("Save failed: " + shared.UserMessage(saved.err))
		} else {
			m.status = styles.ok.Render("Saved " + saved.path)
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FormView:
		return m.renderForm()
	case GeneratingView:
		return m.renderGenerating()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.next):
		m.form.next()
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.form.prev()
		return m, nil
	case key.Matches(msg, m.keys.toggle) && m.form.focus == fieldExplicit:
		m.form.toggleExplicit()
		return m, nil
	case key.Matches(msg, m.keys.submit):
		intent, err := m.form.intent()
		if err != nil {
			m.form.err = err
			return m, nil
		}
		m.form.err = nil
		return m, m.startRecommendation(intent)
	}

	return m, m.form.update(msg)
}

func (m *Model) handleGeneratingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && m.cancel != nil {
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case msg.String() == "q":
		return m, tea.Quit
	case key.Matches(msg, m.keys.save):
		return m, m.saveExport()
	case key.Matches(msg, m.keys.restart):
		intent := m.defaults
		if m.result != nil {
			intent = m.result.Intent
		}
		m.form = newForm(intent)
		m.result = nil
		m.status = ""
		m.view = FormView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) startRecommendation(intent models.UserIntent) tea.Cmd {
	if m.recommender == nil {
		m.form.err = shared.ErrServiceUnavailable
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.view = GeneratingView
	m.progress = nil
	m.progressCh = make(chan tasks.ProgressUpdate, 32)
	m.doneCh = make(chan recommendationDone, 1)

	progress, done := m.progressCh, m.doneCh
	go func() {
		result, err := m.recommender.Recommend(ctx, intent, progress)
		close(progress)
		done <- recommendationDone{result, err}
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

// waitForProgress relays one progress update, or the final result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressCh, m.doneCh
	return func() tea.Msg {
		if progress == nil {
			return nil
		}
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		d := <-done
		return recommendationDoneMsg(d.result, d.err)
	}
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) showResult(result *tasks.Result) {
	m.result = result
	m.status = ""
	m.view = ResultView

	m.trackList = list.New(trackItems(result.Tracks), list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = result.Strategy.PlaylistTheme
	m.trackList.SetShowHelp(false)
	m.trackList.SetSize(m.listSize())
}

func (m *Model) listSize() (int, int) {
	w, h := m.width-4, m.height-12
	if w < 20 {
		w = 80
	}
	if h < 5 {
		h = 20
	}
	return w, h
}

func (m *Model) saveExport() tea.Cmd {
	result := m.result
	dir := m.exportDir
	return func() tea.Msg {
		if result == nil {
			return exportSavedMsg("", shared.ErrNoResult)
		}
		path := filepath.Join(dir, formatter.Filename(result.Strategy.PlaylistTheme, formatter.FormatJSON))
		err := formatter.WriteExport(path, formatter.FormatJSON, result.Strategy, result.Tracks)
		return exportSavedMsg(path, err)
	}
}

func (m *Model) renderForm() string {
	title := styles.title.Render("moodtape")
	helpKeys := []key.Binding{m.keys.next, m.keys.prev, m.keys.toggle, m.keys.submit, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, m.form.view(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderGenerating() string {
	title := styles.title.Render("Building your playlist")

	var b strings.Builder
	for _, line := range m.progress {
		fmt.Fprintf(&b, "  %s\n", line)
	}

	helpKeys := []key.Binding{m.keys.cancel, m.keys.quit}
	return fmt.Sprintf("%s\n%s Working...\n\n%s\n%s", title, m.spinner.View(), b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderResult() string {
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to start over, q to quit")
	}

	summary := RenderStrategy(m.result.Strategy)
	if len(m.result.Tracks) < m.result.Intent.TrackCount {
		summary += "\n" + styles.warn.Render(fmt.Sprintf("Only %d of %d tracks found", len(m.result.Tracks), m.result.Intent.TrackCount))
	}

	helpKeys := []key.Binding{m.keys.save, m.keys.restart, m.keys.quit}
	out := fmt.Sprintf("%s\n\n%s\n\n%s", summary, m.trackList.View(), m.help.ShortHelpView(helpKeys))
	if m.status != "" {
		out += "\n" + m.status
	}
	return out
}

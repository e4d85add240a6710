package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
	tu "github.com/desertthunder/moodtape/internal/testing"
)

type fakeRecommender struct {
	result *tasks.Result
	err    error
	intent models.UserIntent
}

func (f *fakeRecommender) Recommend(ctx context.Context, intent models.UserIntent, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error) {
	f.intent = intent
	progress <- tasks.ProgressUpdate{Phase: tasks.Generate, Message: "Generating strategy"}
	progress <- tasks.ProgressUpdate{Phase: tasks.Search, Message: "Searching"}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testResult(t *testing.T) *tasks.Result {
	t.Helper()
	strategy, err := models.ParseStrategy(tu.StrategyJSON)
	if err != nil {
		t.Fatalf("fixture strategy: %v", err)
	}
	intent := models.NewUserIntent()
	intent.Mood = "tired"
	return &tasks.Result{Intent: intent, Strategy: strategy, Tracks: models.TrackList(tu.Tracks("a", 5))}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func typeText(m *Model, text string) {
	for _, r := range text {
		m.Update(keyMsg(string(r)))
	}
}

// drain runs the progress relay until the final message arrives.
func drain(t *testing.T, m *Model) {
	t.Helper()
	for range 10 {
		msg := m.waitForProgress()()
		if msg == nil {
			t.Fatal("relay returned no message")
		}
		m.Update(msg)
		if m.view != GeneratingView {
			return
		}
	}
	t.Fatal("recommendation never finished")
}

func TestForm(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f := newForm(models.UserIntent{Mood: "rainy"})
		intent, err := f.intent()
		if err != nil {
			t.Fatalf("intent failed: %v", err)
		}
		if intent.Energy != models.DefaultEnergy || intent.TrackCount != models.DefaultTrackCount || intent.Market != models.DefaultMarket {
			t.Errorf("expected defaults, got %+v", intent)
		}
		if len(intent.Genres) != 0 {
			t.Errorf("expected no genres, got %v", intent.Genres)
		}
	})

	t.Run("parses fields", func(t *testing.T) {
		f := newForm(models.UserIntent{})
		f.inputs[fieldMood].SetValue("  sunny  ")
		f.inputs[fieldGenres].SetValue("Jazz, , lo-fi")
		f.inputs[fieldEnergy].SetValue("8")
		f.inputs[fieldTrackCount].SetValue("20")
		f.inputs[fieldMarket].SetValue("us")
		f.toggleExplicit()

		intent, err := f.intent()
		if err != nil {
			t.Fatalf("intent failed: %v", err)
		}
		if intent.Mood != "sunny" || intent.Energy != 8 || intent.TrackCount != 20 || intent.Market != "US" || !intent.AllowExplicit {
			t.Errorf("unexpected intent %+v", intent)
		}
		if strings.Join(intent.Genres, ",") != "jazz,lo-fi" {
			t.Errorf("unexpected genres %v", intent.Genres)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct {
			name  string
			field int
			value string
		}{
			{"non-numeric energy", fieldEnergy, "hi"},
			{"energy out of range", fieldEnergy, "11"},
			{"too few tracks", fieldTrackCount, "2"},
			{"bad market", fieldMarket, "1A"},
			{"empty mood", fieldMood, ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newForm(models.UserIntent{Mood: "rainy"})
				f.inputs[tt.field].SetValue(tt.value)
				if _, err := f.intent(); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("focus wraps", func(t *testing.T) {
		f := newForm(models.UserIntent{})
		f.prev()
		if f.focus != fieldExplicit {
			t.Errorf("expected focus on the explicit toggle, got %d", f.focus)
		}
		f.next()
		if f.focus != fieldMood {
			t.Errorf("expected focus to wrap to mood, got %d", f.focus)
		}
	})
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("form to result", func(t *testing.T) {
		rec := &fakeRecommender{result: testResult(t)}
		m := NewModel(ctx, rec, ModelOpts{})

		typeText(m, "quiet rain")
		for range fieldExplicit {
			m.Update(keyMsg("tab"))
		}
		m.Update(keyMsg("space"))
		m.Update(keyMsg("enter"))

		if m.view != GeneratingView {
			t.Fatalf("expected generating view, got %d", m.view)
		}
		drain(t, m)

		if m.view != ResultView {
			t.Fatalf("expected result view, got %d", m.view)
		}
		if rec.intent.Mood != "quiet rain" || !rec.intent.AllowExplicit {
			t.Errorf("unexpected intent sent: %+v", rec.intent)
		}
		if !strings.Contains(m.View(), "Slow Friday Drive") {
			t.Error("expected the theme in the result view")
		}
		if len(m.progress) != 2 {
			t.Errorf("expected 2 progress lines, got %d", len(m.progress))
		}
	})

	t.Run("invalid form stays on the form", func(t *testing.T) {
		m := NewModel(ctx, &fakeRecommender{}, ModelOpts{})
		m.Update(keyMsg("enter"))

		if m.view != FormView {
			t.Errorf("expected form view, got %d", m.view)
		}
		if m.form.err == nil {
			t.Error("expected a validation error")
		}
	})

	t.Run("failure returns to the form", func(t *testing.T) {
		rec := &fakeRecommender{err: &shared.StrategyGenerationError{Attempts: 3, Err: errors.New("bad json")}}
		m := NewModel(ctx, rec, ModelOpts{Defaults: models.UserIntent{Mood: "rainy"}})
		m.Update(keyMsg("enter"))
		drain(t, m)

		if m.view != FormView {
			t.Fatalf("expected form view, got %d", m.view)
		}
		if !strings.Contains(m.View(), "Try rephrasing") {
			t.Errorf("expected the user message in the form, got %q", m.View())
		}
	})

	t.Run("save and restart", func(t *testing.T) {
		dir := t.TempDir()
		m := NewModel(ctx, &fakeRecommender{result: testResult(t)}, ModelOpts{ExportDir: dir, Defaults: models.UserIntent{Mood: "rainy"}})
		m.Update(keyMsg("enter"))
		drain(t, m)

		_, cmd := m.Update(keyMsg("s"))
		if cmd == nil {
			t.Fatal("expected a save command")
		}
		m.Update(cmd())

		path := filepath.Join(dir, "slow-friday-drive.json")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected export at %s: %v", path, err)
		}
		if !strings.Contains(m.View(), "Saved") {
			t.Error("expected a saved status line")
		}

		m.Update(keyMsg("r"))
		if m.view != FormView {
			t.Fatalf("expected form view after restart, got %d", m.view)
		}
		if m.form.inputs[fieldMood].Value() != "tired" {
			t.Errorf("expected the previous mood to be kept, got %q", m.form.inputs[fieldMood].Value())
		}
	})
}

func TestRenderTrackTable(t *testing.T) {
	tracks := models.TrackList(tu.Tracks("a", 2))
	tracks[1].PreviewURL = "https://p.scdn.co/mp3-preview/x"

	out := RenderTrackTable(tracks)
	for _, want := range []string{"Title", "a song 1", "a song 2", "a artist", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
}

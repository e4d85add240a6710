package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	fieldMood = iota
	fieldActivity
	fieldGenres
	fieldTone
	fieldEnergy
	fieldTrackCount
	fieldMarket
	fieldExplicit
	fieldCount
)

var fieldLabels = [fieldCount]string{"Mood", "Activity", "Genres", "Tone", "Energy", "Tracks", "Market", "Explicit"}

// form collects a [models.UserIntent]. The explicit toggle is the last focus stop and has no text input.
type form struct {
	inputs   [fieldExplicit]textinput.Model
	explicit bool
	focus    int
	err      error
}

func newForm(defaults models.UserIntent) form {
	defaults = defaults.WithDefaults()

	var f form
	placeholders := [fieldExplicit]string{
		"tired but hopeful after a long week",
		"driving home at night",
		strings.Join(models.Genres[:3], ", "),
		strings.Join(models.Tones, ", "),
		fmt.Sprintf("%d-%d", models.MinEnergy, models.MaxEnergy),
		fmt.Sprintf("%d-%d", models.MinTrackCount, models.MaxTrackCount),
		"KR",
	}
	values := [fieldExplicit]string{
		defaults.Mood,
		defaults.Activity,
		strings.Join(defaults.Genres, ", "),
		defaults.Tone,
		strconv.Itoa(defaults.Energy),
		strconv.Itoa(defaults.TrackCount),
		defaults.Market,
	}

	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.SetValue(values[i])
		in.Prompt = ""
		in.CharLimit = 200
		f.inputs[i] = in
	}
	f.inputs[fieldEnergy].CharLimit = 2
	f.inputs[fieldTrackCount].CharLimit = 2
	f.inputs[fieldMarket].CharLimit = 2
	f.explicit = defaults.AllowExplicit
	f.inputs[fieldMood].Focus()
	return f
}

func (f *form) setFocus(i int) {
	f.focus = (i + fieldCount) % fieldCount
	for j := range f.inputs {
		if j == f.focus {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f *form) toggleExplicit() { f.explicit = !f.explicit }

// update forwards msg to the focused text input.
func (f *form) update(msg tea.Msg) tea.Cmd {
	if f.focus >= fieldExplicit {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// intent builds a validated intent from the current values.
func (f form) intent() (models.UserIntent, error) {
	energy, err := intField(f.inputs[fieldEnergy].Value(), "energy")
	if err != nil {
		return models.UserIntent{}, err
	}
	count, err := intField(f.inputs[fieldTrackCount].Value(), "track count")
	if err != nil {
		return models.UserIntent{}, err
	}

	intent := models.UserIntent{
		Mood:          f.inputs[fieldMood].Value(),
		Activity:      f.inputs[fieldActivity].Value(),
		Genres:        strings.Split(f.inputs[fieldGenres].Value(), ","),
		Tone:          f.inputs[fieldTone].Value(),
		Energy:        energy,
		TrackCount:    count,
		Market:        f.inputs[fieldMarket].Value(),
		AllowExplicit: f.explicit,
	}
	intent = intent.Normalize().WithDefaults()
	return intent, intent.Validate()
}

func intField(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", shared.ErrInvalidInput, name, raw)
	}
	return n, nil
}

func (f form) view() string {
	var b strings.Builder
	for i := range fieldCount {
		label := styles.label.Render(fieldLabels[i])
		if i == f.focus {
			label = styles.focus.Render("> " + fieldLabels[i])
		}

		var value string
		if i == fieldExplicit {
			value = "[ ] allow explicit tracks"
			if f.explicit {
				value = "[x] allow explicit tracks"
			}
		} else {
			value = f.inputs[i].View()
		}
		fmt.Fprintf(&b, "%s %s\n", label, value)
	}
	if f.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(shared.UserMessage(f.err)))
	}
	return b.String()
}

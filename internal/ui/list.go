package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/moodtape/internal/models"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	position int
	track    models.Track
}

func (i trackItem) FilterValue() string { return i.track.Name + " " + i.track.ArtistNames() }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.position, i.track.Name) }
func (i trackItem) Description() string {
	desc := i.track.ArtistNames()
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.Explicit {
		desc += " • explicit"
	}
	return desc
}

func trackItems(tracks models.TrackList) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{position: i + 1, track: t}
	}
	return items
}

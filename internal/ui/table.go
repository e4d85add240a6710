package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/moodtape/internal/models"
)

// RenderTrackTable renders tracks as a bordered table for CLI output.
func RenderTrackTable(tracks models.TrackList) string {
	rows := make([][]string, len(tracks))
	for i, t := range tracks {
		preview := "-"
		if t.HasPreview() {
			preview = "yes"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			t.Name,
			t.ArtistNames(),
			t.Album,
			strconv.Itoa(t.Popularity),
			preview,
			t.URL,
		}
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.border).
		Headers("#", "Title", "Artist", "Album", "Pop", "Preview", "Link").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

// RenderStrategy renders the strategy summary shown above a track table.
func RenderStrategy(s models.Strategy) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.title.Render(s.PlaylistTheme),
		styles.label.UnsetWidth().Render("Mood: ")+s.MoodSummary,
		styles.label.UnsetWidth().Render("Why:  ")+s.Reason,
		styles.help.Render(joinTags(s.SeedGenres)),
	)
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += "#" + t
	}
	return out
}

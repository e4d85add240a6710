// package formatter renders a strategy and its tracks as downloadable exports (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Formats lists the supported export formats.
var Formats = []string{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// Document is the JSON export: the strategy plus the numbered track records.
type Document struct {
	Strategy models.Strategy       `json:"strategy"`
	Tracks   []models.ExportRecord `json:"tracks"`
}

// NewDocument projects tracks to export records.
func NewDocument(s models.Strategy, tracks models.TrackList) Document {
	return Document{Strategy: s, Tracks: tracks.Records()}
}

// ParseFormat normalizes a format name. "md" and "text" are accepted as aliases; empty means JSON.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatText, "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (want one of %s)", shared.ErrInvalidFlag, s, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension for format, without the dot.
func Extension(format string) string {
	switch format {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return "json"
	}
}

// ContentType returns the HTTP media type for format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// ExportJSON renders the indented JSON document.
func ExportJSON(s models.Strategy, tracks models.TrackList) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(s, tracks), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportCSV renders the track records with columns: position, id, name, artist, album, preview_url, url
func ExportCSV(tracks models.TrackList) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"position", "id", "name", "artist", "album", "preview_url", "url"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range tracks.Records() {
		record := []string{
			strconv.Itoa(r.Position),
			r.ID,
			r.Name,
			r.Artist,
			r.Album,
			r.PreviewURL,
			r.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportMarkdown renders the theme as a heading, the summary and reason, then a numbered, linked track list.
func ExportMarkdown(s models.Strategy, tracks models.TrackList) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", s.PlaylistTheme)
	fmt.Fprintf(&buf, "**Mood**: %s\n\n", s.MoodSummary)
	fmt.Fprintf(&buf, "**Why**: %s\n\n", s.Reason)
	if len(s.SeedGenres) > 0 {
		fmt.Fprintf(&buf, "**Genres**: %s\n\n", strings.Join(s.SeedGenres, ", "))
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(tracks))

	buf.WriteString("## Tracks\n\n")
	for _, r := range tracks.Records() {
		title := r.Name
		if r.URL != "" {
			title = fmt.Sprintf("[%s](%s)", r.Name, r.URL)
		}
		albumPart := ""
		if r.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", r.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s\n", r.Position, r.Artist, title, albumPart)
	}

	return buf.Bytes(), nil
}

// ExportText renders a plain text listing.
func ExportText(s models.Strategy, tracks models.TrackList) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", s.PlaylistTheme)
	fmt.Fprintf(&buf, "Mood: %s\n", s.MoodSummary)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))

	for _, r := range tracks.Records() {
		fmt.Fprintf(&buf, "%d. %s - %s\n", r.Position, r.Artist, r.Name)
		if r.URL != "" {
			fmt.Fprintf(&buf, "   %s\n", r.URL)
		}
	}

	return buf.Bytes(), nil
}

// Export renders s and tracks in format.
func Export(format string, s models.Strategy, tracks models.TrackList) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return ExportCSV(tracks)
	case FormatMarkdown:
		return ExportMarkdown(s, tracks)
	case FormatText:
		return ExportText(s, tracks)
	default:
		return ExportJSON(s, tracks)
	}
}

// WriteExport renders and writes an export to path, creating the parent directory.
func WriteExport(path, format string, s models.Strategy, tracks models.TrackList) error {
	data, err := Export(format, s, tracks)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return nil
}

// Filename builds a file name from a playlist theme, e.g. "Slow Friday Drive" → "slow-friday-drive.md".
// An empty slug falls back to "moodtape".
func Filename(theme, format string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(theme) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "moodtape"
	}
	return slug + "." + Extension(format)
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

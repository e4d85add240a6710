package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	th "github.com/desertthunder/moodtape/internal/testing"
)

func fixture() (models.Strategy, models.TrackList) {
	s, _ := models.ParseStrategy(th.StrategyJSON)
	tracks := models.TrackList{
		{
			ID:         "track1",
			Name:       "Song One",
			Artist:     "Artist One",
			Album:      "Album One",
			PreviewURL: "https://p.scdn.co/mp3-preview/1",
			URL:        "https://open.spotify.com/track/track1",
		},
		{
			ID:     "track2",
			Name:   "Song, Two",
			Artist: "Artist Two",
			URL:    "https://open.spotify.com/track/track2",
		},
	}
	return s, tracks
}

func TestExporters(t *testing.T) {
	s, tracks := fixture()

	t.Run("ExportJSON", func(t *testing.T) {
		data, err := ExportJSON(s, tracks)
		if err != nil {
			t.Fatalf("ExportJSON failed: %v", err)
		}

		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("export is not valid JSON: %v", err)
		}
		if _, ok := doc["strategy"]; !ok {
			t.Error("export missing strategy key")
		}

		var records []map[string]any
		if err := json.Unmarshal(doc["tracks"], &records); err != nil {
			t.Fatalf("tracks is not a list of records: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}

		for _, key := range []string{"position", "id", "name", "artist", "album", "preview_url", "url"} {
			if _, ok := records[0][key]; !ok {
				t.Errorf("record missing %s", key)
			}
		}
		if records[1]["preview_url"] != models.PreviewUnavailable {
			t.Errorf("expected preview sentinel, got %v", records[1]["preview_url"])
		}
		if records[1]["position"].(float64) != 2 {
			t.Errorf("expected position 2, got %v", records[1]["position"])
		}
	})

	t.Run("ExportCSV", func(t *testing.T) {
		data, err := ExportCSV(tracks)
		if err != nil {
			t.Fatalf("ExportCSV failed: %v", err)
		}

		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected header + 2 rows, got %d", len(rows))
		}
		if strings.Join(rows[0], ",") != "position,id,name,artist,album,preview_url,url" {
			t.Errorf("unexpected headers: %v", rows[0])
		}
		if rows[2][2] != "Song, Two" {
			t.Errorf("expected quoted name to survive, got %q", rows[2][2])
		}
	})

	t.Run("ExportMarkdown", func(t *testing.T) {
		data, err := ExportMarkdown(s, tracks)
		if err != nil {
			t.Fatalf("ExportMarkdown failed: %v", err)
		}
		output := string(data)

		if !strings.HasPrefix(output, "# Slow Friday Drive\n") {
			t.Errorf("markdown should start with the theme heading, got: %s", output)
		}
		if !strings.Contains(output, "1. Artist One - [Song One](https://open.spotify.com/track/track1) (Album One)") {
			t.Errorf("markdown missing linked track line, got: %s", output)
		}
		if !strings.Contains(output, "**Why**: Gentle tempos to wind down") {
			t.Error("markdown missing reason")
		}
	})

	t.Run("ExportText", func(t *testing.T) {
		data, err := ExportText(s, tracks)
		if err != nil {
			t.Fatalf("ExportText failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "Playlist: Slow Friday Drive") {
			t.Error("text missing playlist line")
		}
		if !strings.Contains(output, "2. Artist Two - Song, Two") {
			t.Errorf("text missing track line, got: %s", output)
		}
	})

	t.Run("Empty track list", func(t *testing.T) {
		data, err := ExportJSON(s, models.TrackList{})
		if err != nil {
			t.Fatalf("ExportJSON failed: %v", err)
		}
		if !strings.Contains(string(data), `"tracks": []`) {
			t.Errorf("expected empty tracks array, got: %s", data)
		}
	})
}

func TestFormats(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"text", FormatText, false},
		{"txt", FormatText, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("expected ErrInvalidFlag, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("Export dispatch", func(t *testing.T) {
		s, tracks := fixture()
		data, err := Export("csv", s, tracks)
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if !strings.HasPrefix(string(data), "position,") {
			t.Errorf("expected CSV output, got: %s", data)
		}

		if _, err := Export("xml", s, tracks); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("Filename", func(t *testing.T) {
		if got := Filename("Slow Friday Drive!", FormatMarkdown); got != "slow-friday-drive.md" {
			t.Errorf("unexpected filename %q", got)
		}
		if got := Filename("  ", FormatJSON); got != "moodtape.json" {
			t.Errorf("unexpected fallback filename %q", got)
		}
		if got := Filename("새벽 Drive", FormatText); got != "drive.txt" {
			t.Errorf("unexpected filename %q", got)
		}
	})
}

func TestWriteExport(t *testing.T) {
	s, tracks := fixture()

	t.Run("creates parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "out.csv")
		if err := WriteExport(path, FormatCSV, s, tracks); err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertFileExists(t, path)

		content := th.MustReadFile(t, path)
		if !strings.Contains(content, "track2") {
			t.Error("written export missing track2")
		}
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.xml")
		if err := WriteExport(path, "xml", s, tracks); err == nil {
			t.Error("expected error for unknown format")
		}
		if _, err := os.Stat(path); err == nil {
			t.Error("no file should be written for an unknown format")
		}
	})

	t.Run("WriteManifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		if err := WriteManifest(map[string]int{"total": 2}, path); err != nil {
			t.Fatalf("WriteManifest failed: %v", err)
		}
		if !strings.Contains(th.MustReadFile(t, path), `"total": 2`) {
			t.Error("manifest missing total")
		}
	})
}

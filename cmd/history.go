package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/repositories"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/ui"
	"github.com/urfave/cli/v3"
)

// runSummary is the JSON shape of one row of `history list`.
type runSummary struct {
	ID         string `json:"id"`
	Sequence   int    `json:"sequence"`
	Theme      string `json:"theme"`
	Mood       string `json:"mood"`
	Market     string `json:"market"`
	Model      string `json:"model"`
	TrackCount int    `json:"track_count"`
	CreatedAt  string `json:"created_at"`
}

func summarize(run *models.Run) runSummary {
	mood := run.Intent().Mood
	if mood == "" {
		mood = run.Intent().Activity
	}
	return runSummary{
		ID:         run.ID(),
		Sequence:   run.Sequence(),
		Theme:      run.Strategy().PlaylistTheme,
		Mood:       mood,
		Market:     run.Intent().Market,
		Model:      run.ModelID(),
		TrackCount: len(run.Tracks()),
		CreatedAt:  run.CreatedAt().Local().Format("2006-01-02 15:04"),
	}
}

func runRef(cmd *cli.Command) (string, error) {
	ref := strings.TrimSpace(cmd.StringArg("run"))
	if ref == "" {
		return "", fmt.Errorf("%w: run ID or sequence number", shared.ErrMissingArgument)
	}
	return ref, nil
}

// HistoryList lists recent runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	runs, err := r.Runs()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if market := cmd.String("market"); market != "" {
		criteria["market"] = market
	}

	list, err := runs.List(criteria)
	if err != nil {
		return err
	}

	summaries := make([]runSummary, len(list))
	for i, run := range list {
		summaries[i] = summarize(run)
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}
	if len(summaries) == 0 {
		return r.writePlain("No saved runs.\n")
	}

	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{fmt.Sprintf("#%d", s.Sequence), s.Theme, s.Mood, s.Market, fmt.Sprint(s.TrackCount), s.CreatedAt}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Run", "Theme", "Mood", "Market", "Tracks", "Created").
		Rows(rows...)
	return r.writePlain("%s\n", t.Render())
}

// HistoryShow prints one run.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	run, err := r.findRun(cmd)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if format != formatTable {
		if format, err = formatter.ParseFormat(format); err != nil {
			return err
		}
	}

	if format == formatTable {
		s := summarize(run)
		r.writePlain("Run #%d (%s) on %s, model %s\n\n", s.Sequence, s.ID, s.CreatedAt, s.Model)
	}
	return r.renderPlaylist(format, run.Strategy(), run.Tracks(), run.Intent().TrackCount, "")
}

// HistoryExport writes one run to a file, or stdout without --output.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	run, err := r.findRun(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	path := cmd.String("output")
	if path == "" {
		return r.renderPlaylist(format, run.Strategy(), run.Tracks(), 0, "")
	}

	if err := formatter.WriteExport(path, format, run.Strategy(), run.Tracks()); err != nil {
		return err
	}
	return r.writePlain("Exported run #%d to %s\n", run.Sequence(), path)
}

// HistoryDelete soft-deletes one run.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	run, err := r.findRun(cmd)
	if err != nil {
		return err
	}

	runs, err := r.Runs()
	if err != nil {
		return err
	}
	if err := runs.Delete(run.ID()); err != nil {
		return err
	}
	return r.writePlain("Deleted run #%d\n", run.Sequence())
}

// HistoryTracks lists the catalog track cache.
func (r *Runner) HistoryTracks(ctx context.Context, cmd *cli.Command) error {
	db, err := r.Database()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if artist := cmd.String("artist"); artist != "" {
		criteria["artist"] = artist
	}

	cached, err := repositories.NewTrackRepository(db).List(criteria)
	if err != nil {
		return err
	}

	tracks := make(models.TrackList, len(cached))
	for i, c := range cached {
		tracks[i] = c.Track
	}
	return r.writePlain("%s\n", ui.RenderTrackTable(tracks))
}

func (r *Runner) findRun(cmd *cli.Command) (*models.Run, error) {
	ref, err := runRef(cmd)
	if err != nil {
		return nil, err
	}
	runs, err := r.Runs()
	if err != nil {
		return nil, err
	}
	return runs.Find(ref)
}

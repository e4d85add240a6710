package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
	"github.com/desertthunder/moodtape/internal/ui"
	"github.com/urfave/cli/v3"
)

// intentFromCommand builds an intent from flags, falling back to the config for count, market and explicit.
func (r *Runner) intentFromCommand(cmd *cli.Command) models.UserIntent {
	intent := models.NewUserIntent()
	intent.Mood = cmd.String("mood")
	intent.Activity = cmd.String("activity")
	intent.Genres = cmd.StringSlice("genre")
	intent.Tone = cmd.String("tone")
	intent.Energy = cmd.Int("energy")

	intent.TrackCount = r.config.Planner.TrackCount
	if cmd.IsSet("count") {
		intent.TrackCount = cmd.Int("count")
	}
	intent.Market = r.config.Catalog.Market
	if cmd.IsSet("market") {
		intent.Market = cmd.String("market")
	}
	intent.AllowExplicit = r.config.Planner.AllowExplicit
	if cmd.IsSet("explicit") {
		intent.AllowExplicit = cmd.Bool("explicit")
	}
	return intent
}

func (r *Runner) applyModelFlag(cmd *cli.Command) {
	if model := cmd.String("model"); model != "" {
		r.config.Generator.Model = model
	}
}

// Recommend runs the full pipeline and prints or writes the playlist.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if format != formatTable {
		parsed, err := formatter.ParseFormat(format)
		if err != nil {
			return err
		}
		format = parsed
	}

	intent := r.intentFromCommand(cmd)
	r.applyModelFlag(cmd)

	pipeline, err := r.Pipeline(!cmd.Bool("no-history"))
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	result, err := pipeline.Recommend(ctx, intent, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if format == formatTable {
			format = formatter.FormatJSON
		}
		if err := formatter.WriteExport(path, format, result.Strategy, result.Tracks); err != nil {
			return err
		}
		r.logger.Info("export written", "path", path, "format", format, "tracks", len(result.Tracks))
		return nil
	}

	return r.renderPlaylist(format, result.Strategy, result.Tracks, result.Intent.TrackCount, result.RunID)
}

// renderPlaylist writes a strategy and its tracks to the runner output.
func (r *Runner) renderPlaylist(format string, s models.Strategy, tracks models.TrackList, target int, runID string) error {
	if format != formatTable {
		data, err := formatter.Export(format, s, tracks)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	if err := r.writePlain("%s\n\n%s\n", ui.RenderStrategy(s), ui.RenderTrackTable(tracks)); err != nil {
		return err
	}
	if target > 0 && len(tracks) < target {
		r.writePlain("Only %d of %d tracks found.\n", len(tracks), target)
	}
	if runID != "" {
		r.writePlain("Saved as run %s\n", runID)
	}
	return nil
}

// Strategy generates and prints a strategy only.
func (r *Runner) Strategy(ctx context.Context, cmd *cli.Command) error {
	intent := r.intentFromCommand(cmd)
	r.applyModelFlag(cmd)

	gen, err := r.Generator()
	if err != nil {
		return err
	}

	pipeline := tasks.NewPipeline(gen, nil, r.logger, tasks.WithModel(r.config.Generator.Model, r.config.Generator.MaxRetries))
	strategy, err := pipeline.Strategy(ctx, intent)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(strategy, true)
	}

	r.writePlain("%s\n\n", ui.RenderStrategy(strategy))
	r.writePlain("Keywords: %s\n", strings.Join(strategy.Keywords, ", "))
	r.writePlain("Queries:\n")
	for i, q := range strategy.SearchQueries {
		r.writePlain("  %d. %s\n", i+1, q)
	}
	r.writePlain("Fallbacks:\n")
	for _, q := range tasks.FallbackQueries(strategy) {
		r.writePlain("  - %s\n", q)
	}
	return nil
}

// Search runs a single catalog query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	catalog, err := r.Catalog()
	if err != nil {
		return err
	}

	market := r.config.Catalog.Market
	if cmd.IsSet("market") {
		market = strings.ToUpper(cmd.String("market"))
	}

	tracks, err := catalog.Search(ctx, models.NewCatalogQuery(query, market, cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}
	return r.writePlain("%s\n%d result(s) for %q in %s\n", ui.RenderTrackTable(tracks), len(tracks), query, market)
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Batch runs every intent in a TOML file through the pipeline and writes exports plus a manifest.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.StringArg("file"))
	if path == "" {
		return fmt.Errorf("%w: batch file", shared.ErrMissingArgument)
	}

	jobs, err := tasks.LoadBatchFile(path)
	if err != nil {
		return err
	}

	pipeline, err := r.Pipeline(true)
	if err != nil {
		return err
	}

	opts := tasks.BatchOpts{
		Format:     cmd.String("format"),
		OutputDir:  r.config.Batch.OutputDir,
		NumWorkers: r.config.Batch.Workers,
		RateLimit:  r.config.Batch.RateLimit,
	}
	if cmd.IsSet("output-dir") {
		opts.OutputDir = cmd.String("output-dir")
	}
	if cmd.IsSet("workers") {
		opts.NumWorkers = cmd.Int("workers")
	}
	if cmd.IsSet("rate") {
		opts.RateLimit = cmd.Float("rate")
	}

	r.logger.Info("starting batch", "file", path, "intents", len(jobs), "workers", opts.NumWorkers)

	progress := make(chan tasks.ProgressUpdate, len(jobs)+2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "step", update.Step, "total", update.Total)
		}
	}()

	result, err := pipeline.Batch(ctx, progress, jobs, opts)
	close(progress)
	<-done
	if result == nil {
		return err
	}

	for _, item := range result.Results {
		if item.Success {
			r.writePlain("✓ %-24s %2d tracks  %s\n", item.Name, item.TrackCount, strings.Join(item.Files, ", "))
		} else {
			r.writePlain("✗ %-24s %s\n", item.Name, item.Error)
		}
	}
	r.writePlain("\n%d of %d succeeded. Manifest: %s\n", result.Succeeded, result.Total, result.ManifestPath)
	return err
}

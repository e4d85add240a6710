package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive playlist form.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, f, err := shared.NewFileLogger("./tmp/moodtape-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer f.Close()
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	pipeline, err := r.Pipeline(true)
	if err != nil {
		return err
	}

	defaults := models.NewUserIntent()
	defaults.TrackCount = r.config.Planner.TrackCount
	defaults.Market = r.config.Catalog.Market
	defaults.AllowExplicit = r.config.Planner.AllowExplicit

	model := ui.NewModel(ctx, pipeline, ui.ModelOpts{
		Defaults:  defaults,
		ExportDir: cmd.String("export-dir"),
		Logger:    fileLogger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

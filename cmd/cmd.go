// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/urfave/cli/v3"
)

const formatTable = "table"

// intentFlags are shared by every command that builds a [models.UserIntent].
func intentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mood",
			Aliases: []string{"m"},
			Usage:   "Free-text description of how you feel",
		},
		&cli.StringFlag{
			Name:    "activity",
			Aliases: []string{"a"},
			Usage:   "What you are doing (e.g. studying, driving home)",
		},
		&cli.StringSliceFlag{
			Name:    "genre",
			Aliases: []string{"g"},
			Usage:   "Preferred genre, repeatable (" + strings.Join(models.Genres, ", ") + ")",
		},
		&cli.StringFlag{
			Name:  "tone",
			Usage: "Emotional tone (" + strings.Join(models.Tones, ", ") + ")",
			Value: models.DefaultTone,
		},
		&cli.IntFlag{
			Name:    "energy",
			Aliases: []string{"e"},
			Usage:   "Energy level from 1 to 10",
			Value:   models.DefaultEnergy,
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of tracks, 5 to 30 (default: planner.track_count)",
		},
		&cli.StringFlag{
			Name:  "market",
			Usage: "Two-letter market code (default: catalog.market)",
		},
		&cli.BoolFlag{
			Name:  "explicit",
			Usage: "Allow explicit tracks (default: planner.allow_explicit)",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Override generator.model",
		},
	}
}

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: " + formatTable + ", " + strings.Join(formatter.Formats, ", "),
		Value:   value,
	}
}

func outputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the export to this file instead of stdout",
	}
}

// recommendCommand runs the full pipeline
func recommendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "recommend",
		Aliases: []string{"rec"},
		Usage:   "Generate a playlist for a mood",
		Flags: append(intentFlags(),
			formatFlag(formatTable),
			outputFlag(),
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not save the run",
			},
		),
		Action: r.Recommend,
	}
}

// strategyCommand only asks the generator
func strategyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "strategy",
		Usage: "Generate and print a search strategy without searching the catalog",
		Flags: append(intentFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Strategy,
	}
}

// searchCommand issues a single catalog query
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run one catalog search (debugging aid)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "market",
				Usage: "Two-letter market code (default: catalog.market)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum results, up to 50",
				Value: models.DefaultSearchLimit,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Search,
	}
}

// historyCommand manages saved runs
func historyCommand(r *Runner) *cli.Command {
	ref := func() []cli.Argument {
		return []cli.Argument{&cli.StringArg{Name: "run", UsageText: "run ID or sequence number (e.g. 3 or #3)"}}
	}

	return &cli.Command{
		Name:    "history",
		Aliases: []string{"hist"},
		Usage:   "Browse saved runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "market",
						Usage: "Only runs for this market",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:      "show",
				Usage:     "Show one run",
				Arguments: ref(),
				Flags:     []cli.Flag{formatFlag(formatTable)},
				Action:    r.HistoryShow,
			},
			{
				Name:      "export",
				Usage:     "Export one run to a file",
				Arguments: ref(),
				Flags: []cli.Flag{
					formatFlag(formatter.FormatJSON),
					outputFlag(),
				},
				Action: r.HistoryExport,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete one run",
				Arguments: ref(),
				Action:    r.HistoryDelete,
			},
			{
				Name:  "tracks",
				Usage: "List cached catalog tracks seen in runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Only tracks by this primary artist",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks",
						Value: 20,
					},
				},
				Action: r.HistoryTracks,
			},
		},
	}
}

// batchCommand runs many intents from a TOML file
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Generate playlists for every [[intent]] in a TOML file",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			formatFlag(formatter.FormatJSON),
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for exports and manifest.json (default: batch.output_dir)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent pipelines, 1 to 8 (default: batch.workers)",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Intents started per second (default: batch.rate_limit)",
			},
		},
		Action: r.Batch,
	}
}

// serveCommand starts the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (default: server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (default: server.port)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the health page in a browser",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for the interactive form.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive playlist form",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "export-dir",
				Usage: "Where the save key writes JSON exports",
				Value: ".",
			},
		},
		Action: r.TUI,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a starter config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"c"},
						Usage:   "Where to write the file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

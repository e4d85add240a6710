package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv(); err != nil {
		logger.Warn("could not load .env", "error", err)
	}

	configPath := defaultConfigPath
	if p, ok := os.LookupEnv("MOODTAPE_CONFIG"); ok && p != "" {
		configPath = p
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			var perr toml.ParseError
			if errors.As(err, &perr) {
				// ParseError text can quote the offending value, which may be a credential.
				logger.Fatal("could not parse configuration", "path", configPath, "line", perr.Position.Line, "key", perr.LastKey)
			}
			logger.Fatal("could not load configuration", "path", configPath, "error", err)
		}
		config = loaded
	}
	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		logger.Fatal(err.Error())
	}

	if level, err := log.ParseLevel(config.Log.Level); err == nil {
		shared.SetLogLevel(logger, level)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:    "moodtape",
		Usage:   "Turn a mood into a Spotify playlist",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	runner.Close()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			os.Exit(130)
		}
		logger.Fatal(config.Scrub(errorMessage(err)))
	}
}

// errorMessage picks the text for a fatal error.
//
// Upstream failures carry provider responses, so only the generic message is printed for them.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrStrategyGeneration),
		errors.Is(err, shared.ErrCatalogAuth),
		errors.Is(err, shared.ErrCatalogRequest),
		errors.Is(err, shared.ErrTimeout):
		return shared.UserMessage(err)
	default:
		return err.Error()
	}
}

package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/repositories"
	"github.com/desertthunder/moodtape/internal/services"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The generator, catalog and database are built from the config on first use unless injected through [RunnerOpts].
type Runner struct {
	config     *shared.Config
	configPath string
	generator  services.Generator
	catalog    services.Catalog
	db         *sql.DB
	metrics    *metrics.Metrics
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Generator  services.Generator
	Catalog    services.Catalog
	DB         *sql.DB
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		generator:  opts.Generator,
		catalog:    opts.Catalog,
		db:         opts.DB,
		metrics:    opts.Metrics,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database handle if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		recommendCommand, strategyCommand, searchCommand, historyCommand, batchCommand, serveCommand, tuiCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Generator returns the injected generator or builds one for the configured backend.
func (r *Runner) Generator() (services.Generator, error) {
	if r.generator != nil {
		return r.generator, nil
	}
	if err := r.config.RequireGenerator(); err != nil {
		return nil, err
	}

	gen := r.config.Generator
	var completer services.Completer
	switch gen.Backend {
	case shared.BackendOllama:
		completer = services.NewOllamaCompleter(r.config.Credentials.Ollama.Host, r.httpClient)
	default:
		c, err := services.NewOpenAICompleter(r.config.Credentials.OpenAI.APIKey, r.config.Credentials.OpenAI.BaseURL, r.httpClient)
		if err != nil {
			return nil, err
		}
		completer = c
	}

	r.generator = services.NewStrategyGenerator(completer, shared.WithLogger(r.logger, "backend", completer.Name()),
		services.WithRetryDelay(gen.RetryDelay()),
		services.WithAttemptTimeout(gen.Timeout()),
		services.WithGeneratorMetrics(r.metrics),
	)
	return r.generator, nil
}

// Catalog returns the injected catalog or builds the Spotify client from the config.
func (r *Runner) Catalog() (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}
	if err := r.config.RequireCatalog(); err != nil {
		return nil, err
	}

	cat := r.config.Catalog
	c, err := services.NewSpotifyCatalog(services.SpotifyConfig{
		ClientID:      r.config.Credentials.Spotify.ClientID,
		ClientSecret:  r.config.Credentials.Spotify.ClientSecret,
		TokenURL:      cat.TokenURL,
		BaseURL:       cat.BaseURL,
		SearchTimeout: cat.Timeout(),
		RateLimit:     cat.RateLimit,
		Retry:         true,
	}, shared.WithLogger(r.logger, "component", "catalog"), r.metrics)
	if err != nil {
		return nil, err
	}
	r.catalog = c
	return r.catalog, nil
}

// Database returns the injected handle or opens the configured database, which applies pending migrations.
func (r *Runner) Database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return r.db, nil
}

// Runs returns the run history repository.
func (r *Runner) Runs() (*repositories.RunRepository, error) {
	db, err := r.Database()
	if err != nil {
		return nil, err
	}
	return repositories.NewRunRepository(db), nil
}

// Planner builds a query planner over the catalog using the planner section of the config.
func (r *Runner) Planner() (*tasks.QueryPlanner, error) {
	catalog, err := r.Catalog()
	if err != nil {
		return nil, err
	}

	pc := r.config.Planner
	policy, err := tasks.ParseRankPolicy(pc.Ranking)
	if err != nil {
		return nil, err
	}

	return tasks.NewQueryPlanner(catalog, shared.WithLogger(r.logger, "component", "planner"),
		tasks.WithRankPolicy(policy),
		tasks.WithOverfetchFactor(pc.OverfetchFactor),
		tasks.WithCollapseSimilarity(pc.CollapseSimilarity),
		tasks.WithSearchLimit(r.config.Catalog.Limit),
		tasks.WithPlannerMetrics(r.metrics),
	), nil
}

// Pipeline wires generator, planner and, when record is set, run history.
func (r *Runner) Pipeline(record bool) (*tasks.Pipeline, error) {
	gen, err := r.Generator()
	if err != nil {
		return nil, err
	}
	planner, err := r.Planner()
	if err != nil {
		return nil, err
	}

	opts := []tasks.PipelineOption{tasks.WithModel(r.config.Generator.Model, r.config.Generator.MaxRetries)}
	if record {
		runs, err := r.Runs()
		if err != nil {
			r.logger.Warn("run history unavailable, continuing without it", "error", err)
		} else {
			opts = append(opts, tasks.WithRecorder(runs))
		}
	}

	return tasks.NewPipeline(gen, planner, shared.WithLogger(r.logger, "component", "pipeline"), opts...), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

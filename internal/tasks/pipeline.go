package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/services"
	"github.com/desertthunder/moodtape/internal/shared"
)

// DefaultMaxRetries gives three generation attempts.
const DefaultMaxRetries = 2

// Recorder persists a finished run and assigns its ID.
//
// repositories.RunRepository satisfies it.
type Recorder interface {
	Create(run *models.Run) error
}

// Result is one completed recommendation.
type Result struct {
	RunID     string            `json:"run_id,omitempty"`
	ModelID   string            `json:"model"`
	Intent    models.UserIntent `json:"intent"`
	Strategy  models.Strategy   `json:"strategy"`
	Tracks    models.TrackList  `json:"tracks"`
	CreatedAt time.Time         `json:"created_at"`
}

// ResultSlot holds the most recent result. Each store replaces the previous one.
type ResultSlot struct {
	mu     sync.RWMutex
	latest *Result
}

func (s *ResultSlot) Store(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

// Latest returns the last stored result, or false when nothing has been stored.
func (s *ResultSlot) Latest() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Pipeline runs intent → strategy → tracks for one request at a time per call.
// A single Pipeline is safe for concurrent use as long as its generator and catalog are.
type Pipeline struct {
	generator  services.Generator
	planner    *QueryPlanner
	recorder   Recorder
	slot       *ResultSlot
	logger     *log.Logger
	modelID    string
	maxRetries int
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithRecorder saves every successful result to history.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithResultSlot shares a latest-result slot, e.g. with the HTTP server.
func WithResultSlot(s *ResultSlot) PipelineOption {
	return func(p *Pipeline) {
		if s != nil {
			p.slot = s
		}
	}
}

// WithModel sets the generation model and retry budget.
func WithModel(modelID string, maxRetries int) PipelineOption {
	return func(p *Pipeline) {
		p.modelID = modelID
		p.maxRetries = maxRetries
	}
}

// NewPipeline creates a pipeline from a generator and a planner.
func NewPipeline(generator services.Generator, planner *QueryPlanner, logger *log.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &Pipeline{
		generator:  generator,
		planner:    planner,
		slot:       &ResultSlot{},
		logger:     logger,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Slot returns the pipeline's latest-result slot.
func (p *Pipeline) Slot() *ResultSlot { return p.slot }

// Model returns the configured generation model.
func (p *Pipeline) Model() string { return p.modelID }

// Strategy normalizes and validates intent, then generates a strategy without searching the catalog.
func (p *Pipeline) Strategy(ctx context.Context, intent models.UserIntent) (models.Strategy, error) {
	intent, err := prepareIntent(intent)
	if err != nil {
		return models.Strategy{}, err
	}
	if p.generator == nil {
		return models.Strategy{}, fmt.Errorf("%w: generator not initialized", shared.ErrServiceUnavailable)
	}
	return p.generator.Generate(ctx, intent, p.modelID, p.maxRetries)
}

// Recommend runs the full pipeline for intent and stores the result in the slot.
//
// A recorder failure is logged and does not fail the request.
func (p *Pipeline) Recommend(ctx context.Context, intent models.UserIntent, progress chan<- ProgressUpdate) (*Result, error) {
	intent, err := prepareIntent(intent)
	if err != nil {
		return nil, err
	}
	if p.generator == nil || p.planner == nil {
		return nil, fmt.Errorf("%w: pipeline not initialized", shared.ErrServiceUnavailable)
	}

	logger := shared.WithLogger(p.logger, "model", p.modelID, "market", intent.Market)

	sendProgress(progress, generatingUpdate(p.modelID))
	strategy, err := p.generator.Generate(ctx, intent, p.modelID, p.maxRetries)
	if err != nil {
		logger.Error("strategy generation failed", "error", err)
		return nil, err
	}
	sendProgress(progress, strategyUpdate(strategy))
	logger.Info("strategy generated", "theme", strategy.PlaylistTheme, "queries", len(strategy.SearchQueries))

	tracks, err := p.planner.ResolveWithProgress(ctx, strategy, intent.Market, intent.TrackCount, intent.AllowExplicit, progress)
	if err != nil {
		logger.Error("track resolution failed", "error", err)
		return nil, err
	}

	res := &Result{
		ModelID:   p.modelID,
		Intent:    intent,
		Strategy:  strategy,
		Tracks:    tracks,
		CreatedAt: time.Now().UTC(),
	}

	if p.recorder != nil {
		run := models.NewRun(0, p.modelID, intent, strategy, tracks)
		if err := p.recorder.Create(run); err != nil {
			logger.Warn("failed to record run", "error", err)
		} else {
			res.RunID = run.ID()
			res.CreatedAt = run.CreatedAt()
			sendProgress(progress, recordUpdate(run.ID()))
		}
	}

	p.slot.Store(res)
	sendProgress(progress, doneUpdate(res))
	return res, nil
}

func prepareIntent(intent models.UserIntent) (models.UserIntent, error) {
	intent = intent.Normalize().WithDefaults()
	if err := intent.Validate(); err != nil {
		return intent, err
	}
	return intent, nil
}

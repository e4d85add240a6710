package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultAttemptTimeout = 45 * time.Second
)

// StrategyGenerator asks a [Completer] for a strategy and validates the reply.
type StrategyGenerator struct {
	completer      Completer
	logger         *log.Logger
	metrics        *metrics.Metrics
	retryDelay     time.Duration
	attemptTimeout time.Duration
}

// GeneratorOption configures a [StrategyGenerator].
type GeneratorOption func(*StrategyGenerator)

// WithRetryDelay sets the base delay of the linear backoff. Attempt n waits n×d before retrying.
func WithRetryDelay(d time.Duration) GeneratorOption {
	return func(g *StrategyGenerator) { g.retryDelay = d }
}

// WithAttemptTimeout bounds each attempt. Values above 45s are capped.
func WithAttemptTimeout(d time.Duration) GeneratorOption {
	return func(g *StrategyGenerator) {
		if d > 0 && d <= DefaultAttemptTimeout {
			g.attemptTimeout = d
		}
	}
}

// WithGeneratorMetrics records attempt outcomes.
func WithGeneratorMetrics(m *metrics.Metrics) GeneratorOption {
	return func(g *StrategyGenerator) { g.metrics = m }
}

// NewStrategyGenerator creates a generator. A nil logger discards output.
func NewStrategyGenerator(c Completer, logger *log.Logger, opts ...GeneratorOption) *StrategyGenerator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	g := &StrategyGenerator{
		completer:      c,
		logger:         logger,
		retryDelay:     DefaultRetryDelay,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate makes up to maxRetries+1 attempts. A negative maxRetries is treated as 0.
//
// Malformed replies and transport failures are retried after attempt×retryDelay.
// A rejected API key is returned at once. Cancelling ctx stops the loop and returns ctx.Err().
func (g *StrategyGenerator) Generate(ctx context.Context, intent models.UserIntent, modelID string, maxRetries int) (models.Strategy, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	attempts := maxRetries + 1

	req := CompletionRequest{
		Model:  modelID,
		System: BuildSystemPrompt(),
		User:   BuildUserPrompt(intent),
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := g.wait(ctx, attempt-1); err != nil {
				return models.Strategy{}, err
			}
		}

		strategy, err := g.attempt(ctx, req)
		if err == nil {
			g.metrics.GenerationAttempt(metrics.OutcomeOK)
			g.logger.Debug("strategy generated", "attempt", attempt, "backend", g.completer.Name(), "theme", strategy.PlaylistTheme)
			return strategy, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Strategy{}, ctxErr
		}

		lastErr = err
		if errors.Is(err, models.ErrInvalidStrategy) {
			g.metrics.GenerationAttempt(metrics.OutcomeInvalid)
		} else {
			g.metrics.GenerationAttempt(metrics.OutcomeError)
		}
		g.logger.Warn("generation attempt failed", "attempt", attempt, "of", attempts, "backend", g.completer.Name(), "error", err)

		if errors.Is(err, shared.ErrInvalidCredentials) {
			return models.Strategy{}, &shared.StrategyGenerationError{Attempts: attempt, Err: err}
		}
	}

	return models.Strategy{}, &shared.StrategyGenerationError{Attempts: attempts, Err: lastErr}
}

func (g *StrategyGenerator) attempt(ctx context.Context, req CompletionRequest) (models.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	raw, err := g.completer.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Strategy{}, fmt.Errorf("%w: generation attempt exceeded %s", shared.ErrTimeout, g.attemptTimeout)
		}
		return models.Strategy{}, err
	}
	return models.ParseStrategy(raw)
}

func (g *StrategyGenerator) wait(ctx context.Context, step int) error {
	delay := time.Duration(step) * g.retryDelay
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/services"
	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	// DefaultOverfetchFactor bounds the primary phase at factor × target eligible tracks.
	DefaultOverfetchFactor = 3

	maxGenreFallbacks   = 3
	maxKeywordFallbacks = 5
	comboGenres         = 2
	comboKeywords       = 3
	catchAllQuery       = "top hits"
)

// RankPolicy orders the merged track list before truncation.
type RankPolicy int

const (
	// RankPopularity sorts by popularity, highest first. Ties keep discovery order.
	RankPopularity RankPolicy = iota
	// RankDiscovery keeps the order in which tracks were first seen.
	RankDiscovery
)

func (p RankPolicy) String() string {
	switch p {
	case RankDiscovery:
		return shared.RankingDiscovery
	default:
		return shared.RankingPopularity
	}
}

// ParseRankPolicy maps a config value to a [RankPolicy]. Empty means popularity.
func ParseRankPolicy(s string) (RankPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", shared.RankingPopularity:
		return RankPopularity, nil
	case shared.RankingDiscovery:
		return RankDiscovery, nil
	default:
		return RankPopularity, fmt.Errorf("%w: unknown ranking %q", shared.ErrInvalidConfig, s)
	}
}

func (p RankPolicy) apply(tracks []models.Track) []models.Track {
	out := append([]models.Track(nil), tracks...)
	if p == RankPopularity {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Popularity > out[j].Popularity
		})
	}
	return out
}

// QueryPlanner turns a strategy into catalog searches and merges the results into a ranked track list.
type QueryPlanner struct {
	catalog    services.Catalog
	logger     *log.Logger
	metrics    *metrics.Metrics
	rank       RankPolicy
	overfetch  int
	similarity float64
	limit      int
}

// PlannerOption configures a [QueryPlanner].
type PlannerOption func(*QueryPlanner)

// WithRankPolicy selects how resolved tracks are ordered before truncation. The default is [RankPopularity].
func WithRankPolicy(p RankPolicy) PlannerOption {
	return func(q *QueryPlanner) { q.rank = p }
}

// WithOverfetchFactor sets the primary phase bound. Values below 1 are ignored.
func WithOverfetchFactor(n int) PlannerOption {
	return func(q *QueryPlanner) {
		if n >= 1 {
			q.overfetch = n
		}
	}
}

// WithCollapseSimilarity skips primary queries whose Jaro-Winkler similarity to an already issued
// primary query is at least threshold. 0 disables the check.
func WithCollapseSimilarity(threshold float64) PlannerOption {
	return func(q *QueryPlanner) {
		if threshold >= 0 && threshold <= 1 {
			q.similarity = threshold
		}
	}
}

// WithSearchLimit sets the per-query result limit.
func WithSearchLimit(n int) PlannerOption {
	return func(q *QueryPlanner) { q.limit = n }
}

// WithPlannerMetrics records resolved track counts and fallback queries on m.
func WithPlannerMetrics(m *metrics.Metrics) PlannerOption {
	return func(q *QueryPlanner) { q.metrics = m }
}

// NewQueryPlanner creates a planner over catalog.
func NewQueryPlanner(catalog services.Catalog, logger *log.Logger, opts ...PlannerOption) *QueryPlanner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &QueryPlanner{
		catalog:   catalog,
		logger:    logger,
		rank:      RankPopularity,
		overfetch: DefaultOverfetchFactor,
		limit:     models.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RankPolicy reports the configured ranking.
func (p *QueryPlanner) RankPolicy() RankPolicy { return p.rank }

// Resolve runs the strategy's queries against the catalog and returns at most targetCount unique tracks.
func (p *QueryPlanner) Resolve(ctx context.Context, strategy models.Strategy, market string, targetCount int, allowExplicit bool) (models.TrackList, error) {
	return p.ResolveWithProgress(ctx, strategy, market, targetCount, allowExplicit, nil)
}

// ResolveWithProgress is [QueryPlanner.Resolve] with progress updates for each issued query.
//
// Primary queries run in order until the eligible count reaches the overfetch bound. Fallback queries
// run only when the primary phase leaves fewer than targetCount eligible tracks, and stop as soon as
// the target is reached. A failed query is skipped unless it is an auth failure or the context ends.
func (p *QueryPlanner) ResolveWithProgress(
	ctx context.Context,
	strategy models.Strategy,
	market string,
	targetCount int,
	allowExplicit bool,
	progress chan<- ProgressUpdate,
) (models.TrackList, error) {
	if p.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not initialized", shared.ErrServiceUnavailable)
	}
	if targetCount < 1 {
		return nil, fmt.Errorf("%w: target count must be positive, got %d", shared.ErrInvalidInput, targetCount)
	}

	r := newResolution(allowExplicit)
	bound := p.overfetch * targetCount

	primaries := strategy.SearchQueries
	for i, q := range primaries {
		if r.eligible >= bound {
			break
		}
		if r.issuedBefore(q) {
			p.logger.Debug("skipping repeated query", "query", q)
			continue
		}
		if match, ok := r.nearDuplicate(q, p.similarity); ok {
			p.logger.Debug("skipping near-duplicate query", "query", q, "similar_to", match)
			continue
		}
		r.markPrimary(q)

		if err := p.search(ctx, r, q, market); err != nil {
			return nil, err
		}
		sendProgress(progress, searchUpdate(i+1, len(primaries), q, r.eligible))
	}

	if r.eligible < targetCount {
		fallbacks := FallbackQueries(strategy)
		p.logger.Debug("primary phase short", "eligible", r.eligible, "target", targetCount, "fallbacks", len(fallbacks))

		for i, q := range fallbacks {
			if r.eligible >= targetCount {
				break
			}
			if r.issuedBefore(q) {
				continue
			}
			r.mark(q)

			p.metrics.FallbackQuery()
			if err := p.search(ctx, r, q, market); err != nil {
				return nil, err
			}
			sendProgress(progress, fallbackUpdate(i+1, len(fallbacks), q, r.eligible))
		}
	}

	usable := r.usable()
	if len(usable) == 0 && r.lastErr != nil {
		return nil, r.lastErr
	}

	ranked := p.rank.apply(usable)
	if len(ranked) > targetCount {
		ranked = ranked[:targetCount]
	}

	p.metrics.ResolvedTracks(len(ranked))
	sendProgress(progress, rankUpdate(p.rank, len(ranked), targetCount))
	p.logger.Info("resolved tracks",
		"queries", len(r.issued), "unique", len(r.tracks), "eligible", r.eligible,
		"returned", len(ranked), "failed_queries", r.failures)
	return models.TrackList(ranked), nil
}

// search issues one query and merges its results. Only fatal errors are returned.
func (p *QueryPlanner) search(ctx context.Context, r *resolution, q, market string) error {
	tracks, err := p.catalog.Search(ctx, models.NewCatalogQuery(q, market, p.limit))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, shared.ErrCatalogAuth) {
			return err
		}

		var reqErr *shared.CatalogRequestError
		if !errors.As(err, &reqErr) {
			err = &shared.CatalogRequestError{Query: q, Err: err}
		}
		r.failures++
		r.lastErr = err
		p.logger.Warn("catalog query failed", "query", q, "error", err)
		return nil
	}

	added := r.merge(tracks)
	p.logger.Debug("catalog search", "query", q, "items", len(tracks), "new", added)
	return nil
}

// FallbackQueries synthesizes the escalation queries for a strategy in the order they are tried:
// genre-only, single keyword, keyword-genre combinations, then a catch-all.
func FallbackQueries(s models.Strategy) []string {
	var out []string

	for i, g := range s.SeedGenres {
		if i == maxGenreFallbacks {
			break
		}
		out = append(out, genreQuery(g))
	}

	for i, kw := range s.Keywords {
		if i == maxKeywordFallbacks {
			break
		}
		out = append(out, kw)
	}

	for i, g := range s.SeedGenres {
		if i == comboGenres {
			break
		}
		for j, kw := range s.Keywords {
			if j == comboKeywords {
				break
			}
			out = append(out, kw+" "+genreQuery(g))
		}
	}

	return append(out, catchAllQuery)
}

func genreQuery(g string) string {
	return fmt.Sprintf("genre:%q", g)
}

// resolution is the per-call merge state. It is never shared between calls.
type resolution struct {
	allowExplicit bool

	seen     map[string]bool
	tracks   []models.Track
	eligible int

	issued   map[string]bool
	primary  []string
	failures int
	lastErr  error
}

func newResolution(allowExplicit bool) *resolution {
	return &resolution{
		allowExplicit: allowExplicit,
		seen:          map[string]bool{},
		issued:        map[string]bool{},
	}
}

func (r *resolution) issuedBefore(q string) bool {
	return r.issued[shared.NormalizeQuery(q)]
}

func (r *resolution) mark(q string) {
	r.issued[shared.NormalizeQuery(q)] = true
}

func (r *resolution) markPrimary(q string) {
	r.mark(q)
	r.primary = append(r.primary, shared.NormalizeQuery(q))
}

// nearDuplicate returns the issued primary query that q is too similar to.
func (r *resolution) nearDuplicate(q string, threshold float64) (string, bool) {
	if threshold <= 0 {
		return "", false
	}
	norm := shared.NormalizeQuery(q)
	for _, prev := range r.primary {
		if strutil.Similarity(norm, prev, strmetrics.NewJaroWinkler()) >= threshold {
			return prev, true
		}
	}
	return "", false
}

// merge appends unseen tracks in order and returns how many were new.
// Explicit tracks claim their key even when they will be filtered out.
func (r *resolution) merge(tracks []models.Track) int {
	added := 0
	for _, t := range tracks {
		key := t.Key()
		if key == "" || r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.tracks = append(r.tracks, t)
		added++
		if r.allowExplicit || !t.Explicit {
			r.eligible++
		}
	}
	return added
}

func (r *resolution) usable() []models.Track {
	if r.allowExplicit {
		return r.tracks
	}
	out := make([]models.Track, 0, r.eligible)
	for _, t := range r.tracks {
		if !t.Explicit {
			out = append(out, t)
		}
	}
	return out
}

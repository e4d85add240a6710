// Spotify catalog search over the client-credentials grant
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1/"

	// TokenExpiryMargin is how long before expiry a cached token is replaced.
	TokenExpiryMargin = 30 * time.Second

	DefaultSearchTimeout = 30 * time.Second
	tokenRequestTimeout  = 30 * time.Second
)

// TokenState describes the cached access token.
type TokenState int

const (
	TokenNone TokenState = iota
	TokenValid
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "none"
	}
}

// SpotifyConfig configures a [SpotifyCatalog].
type SpotifyConfig struct {
	ClientID     shared.Secret
	ClientSecret shared.Secret

	TokenURL string // defaults to the Spotify accounts service
	BaseURL  string // defaults to the Web API; must end in a slash

	SearchTimeout time.Duration // capped at 30s
	RateLimit     float64       // searches per second; 0 means unlimited

	// Retry lets the client wait out 429 responses using Retry-After.
	Retry bool

	// Transport is the base round tripper for both the token and search requests.
	Transport http.RoundTripper
}

// SpotifyCatalog implements [Catalog] against the Spotify Web API.
type SpotifyCatalog struct {
	client    *spotify.Client
	exchanger *exchanger
	limiter   *rate.Limiter
	timeout   time.Duration
	secrets   []shared.Secret
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// NewSpotifyCatalog wires the token cache, the authenticated HTTP client and the search client.
func NewSpotifyCatalog(cfg SpotifyConfig, logger *log.Logger, m *metrics.Metrics) (*SpotifyCatalog, error) {
	if !cfg.ClientID.IsSet() || !cfg.ClientSecret.IsSet() {
		return nil, fmt.Errorf("%w: Spotify client ID and secret", shared.ErrMissingCredentials)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = spotifyBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.SearchTimeout <= 0 || cfg.SearchTimeout > DefaultSearchTimeout {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID.Value(),
		ClientSecret: cfg.ClientSecret.Value(),
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: base,
		Timeout:   tokenRequestTimeout,
	})

	c := &SpotifyCatalog{
		limiter: newLimiter(cfg.RateLimit),
		timeout: cfg.SearchTimeout,
		secrets: []shared.Secret{cfg.ClientID, cfg.ClientSecret},
		logger:  logger,
		metrics: m,
	}
	c.exchanger = &exchanger{
		source:   clientCredentialsSource{cfg: cc, ctx: tokenCtx},
		callback: c.onExchange,
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSourceWithExpiry(nil, c.exchanger, TokenExpiryMargin),
			Base:   rejectTransport{base: base},
		},
	}
	c.client = spotify.New(httpClient, spotify.WithBaseURL(cfg.BaseURL), spotify.WithRetry(cfg.Retry))
	return c, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// onExchange logs and counts a token exchange. The token itself is never logged.
func (c *SpotifyCatalog) onExchange(token *oauth2.Token) {
	c.metrics.TokenExchange()
	c.logger.Debug("catalog token exchanged", "expires", token.Expiry.Format(time.RFC3339))
}

// TokenState reports whether a token is cached and still outside the expiry margin.
func (c *SpotifyCatalog) TokenState() TokenState {
	return c.exchanger.State(time.Now())
}

// Search runs one track search. It waits on the rate limiter, then bounds the request by the search timeout.
func (c *SpotifyCatalog) Search(ctx context.Context, q models.CatalogQuery) ([]models.Track, error) {
	q = models.NewCatalogQuery(q.Query, q.Market, q.Limit)

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &shared.CatalogRequestError{Query: q.Query, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []spotify.RequestOption{spotify.Limit(q.Limit)}
	if q.Market != "" {
		opts = append(opts, spotify.Market(q.Market))
	}

	res, err := c.client.Search(ctx, q.Query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		mapped := c.mapError(q.Query, err)
		var authErr *shared.CatalogAuthError
		if errors.As(mapped, &authErr) {
			c.metrics.Search(metrics.OutcomeAuthError)
		} else {
			c.metrics.Search(metrics.OutcomeError)
		}
		return nil, mapped
	}

	c.metrics.Search(metrics.OutcomeOK)
	if res == nil || res.Tracks == nil {
		return []models.Track{}, nil
	}
	return convertTracks(res.Tracks.Tracks), nil
}

// mapError classifies a search failure and strips the client credentials from its text.
func (c *SpotifyCatalog) mapError(query string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &shared.CatalogAuthError{Status: status, Err: c.scrub(fmt.Errorf("token exchange rejected"))}
	}

	if status, ok := spotifyStatus(err); ok {
		if status == http.StatusUnauthorized {
			return &shared.CatalogAuthError{Status: status, Err: c.scrub(err)}
		}
		return &shared.CatalogRequestError{Query: query, Status: status, Err: c.scrub(err)}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &shared.CatalogRequestError{Query: query, Err: fmt.Errorf("%w: %v", shared.ErrTimeout, err)}
	}
	return &shared.CatalogRequestError{Query: query, Err: c.scrub(err)}
}

func spotifyStatus(err error) (int, bool) {
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return rejected.status, true
	}
	var val spotify.Error
	if errors.As(err, &val) && val.Status != 0 {
		return val.Status, true
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil && ptr.Status != 0 {
		return ptr.Status, true
	}
	return 0, false
}

func (c *SpotifyCatalog) scrub(err error) error {
	msg := err.Error()
	for _, s := range c.secrets {
		msg = s.Scrub(msg)
	}
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

// convertTracks maps search items to tracks, dropping items that have neither an ID nor a URL.
func convertTracks(items []spotify.FullTrack) []models.Track {
	tracks := make([]models.Track, 0, len(items))
	for _, item := range items {
		id := string(item.ID)
		url := item.ExternalURLs["spotify"]
		if id == "" && url == "" {
			continue
		}

		artists := make([]string, 0, len(item.Artists))
		for _, a := range item.Artists {
			if a.Name != "" {
				artists = append(artists, a.Name)
			}
		}
		primary := ""
		if len(artists) > 0 {
			primary = artists[0]
		}

		preview := item.PreviewURL
		if preview == "" {
			preview = models.PreviewUnavailable
		}

		tracks = append(tracks, models.Track{
			ID:         id,
			Name:       item.Name,
			Artist:     primary,
			Artists:    artists,
			Album:      item.Album.Name,
			PreviewURL: preview,
			URL:        url,
			Explicit:   item.Explicit,
			Popularity: int(item.Popularity),
		})
	}
	return tracks
}

// rejectedError is returned by [rejectTransport] in place of a 401 response.
type rejectedError struct {
	status int
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("catalog rejected the access token (status %d)", e.status)
}

// rejectTransport turns 401 responses into errors so they are recognised even when the
// response carries no decodable error body.
type rejectTransport struct {
	base http.RoundTripper
}

func (t rejectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &rejectedError{status: resp.StatusCode}
	}
	return resp, nil
}

// clientCredentialsSource performs a fresh exchange on every call.
//
// clientcredentials.Config.TokenSource is not used since it adds its own reuse layer with a
// shorter expiry margin than [TokenExpiryMargin].
type clientCredentialsSource struct {
	cfg *clientcredentials.Config
	ctx context.Context
}

func (s clientCredentialsSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(s.ctx)
}

// exchanger wraps a token source, remembers the last token and reports each exchange to callback.
// A panicking callback does not fail the exchange.
type exchanger struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last *oauth2.Token
}

func (e *exchanger) Token() (*oauth2.Token, error) {
	token, err := e.source.Token()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	changed := e.last == nil || e.last.AccessToken != token.AccessToken
	e.last = token
	e.mu.Unlock()

	if changed {
		e.notify(token)
	}
	return token, nil
}

func (e *exchanger) notify(token *oauth2.Token) {
	if e.callback == nil {
		return
	}
	defer func() { _ = recover() }()
	e.callback(token)
}

// State reports the token state at now.
func (e *exchanger) State(now time.Time) TokenState {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.last == nil:
		return TokenNone
	case e.last.Expiry.IsZero() || now.Add(TokenExpiryMargin).Before(e.last.Expiry):
		return TokenValid
	default:
		return TokenExpired
	}
}

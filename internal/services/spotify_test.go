package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/oauth2"
)

const (
	testClientID     = shared.Secret("test-client-id")
	testClientSecret = shared.Secret("test-client-secret-value")
)

const searchBody = `{"tracks":{"href":"","limit":20,"offset":0,"total":4,"items":[
  {"id":"t1","name":"Rain","artists":[{"name":"Alpha"},{"name":"Beta"}],"album":{"name":"Weather"},"explicit":false,
   "preview_url":"https://p.scdn.co/mp3-preview/t1","external_urls":{"spotify":"https://open.spotify.com/track/t1"},"popularity":70},
  {"id":"t2","name":"Storm","artists":[],"album":{"name":"Weather"},"explicit":true,
   "preview_url":null,"external_urls":{"spotify":"https://open.spotify.com/track/t2"}},
  {"id":"","name":"Orphan","artists":[{"name":"Nobody"}],"album":{"name":""},"explicit":false,
   "preview_url":null,"external_urls":{}},
  {"id":"","name":"Linked","artists":[{"name":"Gamma"}],"album":{"name":"Side"},"explicit":false,
   "preview_url":"","external_urls":{"spotify":"https://open.spotify.com/track/linked"},"popularity":12}
]}}`

// fakeSpotify serves the token and search endpoints and counts exchanges.
type fakeSpotify struct {
	*httptest.Server

	exchanges   atomic.Int32
	expiresIn   int
	tokenStatus int

	mu           sync.Mutex
	searchStatus int
	searchBody   string
	lastQuery    map[string]string
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{expiresIn: 3600, searchStatus: http.StatusOK, searchBody: searchBody}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if r.Method != http.MethodPost || !ok || id != testClientID.Value() || secret != testClientSecret.Value() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		if f.tokenStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			w.Write([]byte(`{"error":"invalid_client","error_description":"Invalid client secret"}`))
			return
		}
		n := f.exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, f.expiresIn)
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		f.mu.Lock()
		f.lastQuery = map[string]string{}
		for k := range r.URL.Query() {
			f.lastQuery[k] = r.URL.Query().Get(k)
		}
		status, body := f.searchStatus, f.searchBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpotify) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchStatus, f.searchBody = status, body
}

func (f *fakeSpotify) query(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[key]
}

func (f *fakeSpotify) catalog(t *testing.T, m *metrics.Metrics) *SpotifyCatalog {
	t.Helper()
	c, err := NewSpotifyCatalog(SpotifyConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		TokenURL:     f.URL + "/api/token",
		BaseURL:      f.URL + "/v1/",
		Transport:    f.Client().Transport,
	}, nil, m)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	return c
}

func TestSpotifyCatalog(t *testing.T) {
	ctx := context.Background()
	query := models.NewCatalogQuery("rainy day jazz", "KR", 5)

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewSpotifyCatalog(SpotifyConfig{ClientID: testClientID}, nil, nil)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("two searches share one exchange", func(t *testing.T) {
		f := newFakeSpotify(t)
		m := metrics.New()
		c := f.catalog(t, m)

		if c.TokenState() != TokenNone {
			t.Errorf("expected no token before the first search, got %s", c.TokenState())
		}

		for i := 0; i < 2; i++ {
			if _, err := c.Search(ctx, query); err != nil {
				t.Fatalf("search %d failed: %v", i, err)
			}
		}

		if got := f.exchanges.Load(); got != 1 {
			t.Errorf("expected 1 exchange, got %d", got)
		}
		if c.TokenState() != TokenValid {
			t.Errorf("expected valid token, got %s", c.TokenState())
		}
		if got := testutil.ToFloat64(m.TokenExchanges()); got != 1 {
			t.Errorf("expected 1 exchange recorded, got %v", got)
		}
		if got := testutil.ToFloat64(m.Searches(metrics.OutcomeOK)); got != 2 {
			t.Errorf("expected 2 searches recorded, got %v", got)
		}
	})

	t.Run("token inside the expiry margin is replaced", func(t *testing.T) {
		f := newFakeSpotify(t)
		f.expiresIn = 10
		c := f.catalog(t, nil)

		for i := 0; i < 2; i++ {
			if _, err := c.Search(ctx, query); err != nil {
				t.Fatalf("search %d failed: %v", i, err)
			}
		}

		if got := f.exchanges.Load(); got != 2 {
			t.Errorf("expected 2 exchanges, got %d", got)
		}
		if c.TokenState() != TokenExpired {
			t.Errorf("expected expired token, got %s", c.TokenState())
		}
	})

	t.Run("concurrent searches coalesce the exchange", func(t *testing.T) {
		f := newFakeSpotify(t)
		c := f.catalog(t, nil)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.Search(ctx, query); err != nil {
					t.Errorf("search failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := f.exchanges.Load(); got != 1 {
			t.Errorf("expected 1 exchange, got %d", got)
		}
	})

	t.Run("forwards query, market and limit", func(t *testing.T) {
		f := newFakeSpotify(t)
		c := f.catalog(t, nil)

		if _, err := c.Search(ctx, query); err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if f.query("q") != "rainy day jazz" || f.query("type") != "track" || f.query("market") != "KR" || f.query("limit") != "5" {
			t.Errorf("unexpected search parameters %v", f.lastQuery)
		}
	})

	t.Run("parses items defensively", func(t *testing.T) {
		f := newFakeSpotify(t)
		c := f.catalog(t, nil)

		tracks, err := c.Search(ctx, query)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("expected 3 tracks after dropping the orphan, got %d", len(tracks))
		}

		first := tracks[0]
		if first.ID != "t1" || first.Artist != "Alpha" || first.ArtistNames() != "Alpha, Beta" || first.Album != "Weather" || first.Popularity != 70 {
			t.Errorf("unexpected first track %+v", first)
		}
		if !first.HasPreview() {
			t.Error("expected first track to have a preview")
		}

		second := tracks[1]
		if second.PreviewURL != models.PreviewUnavailable {
			t.Errorf("expected preview sentinel, got %q", second.PreviewURL)
		}
		if second.Artist != "" || !second.Explicit || second.Popularity != 0 {
			t.Errorf("unexpected second track %+v", second)
		}

		if tracks[2].Key() != "https://open.spotify.com/track/linked" {
			t.Errorf("expected URL key for ID-less track, got %q", tracks[2].Key())
		}
	})

	t.Run("empty result", func(t *testing.T) {
		f := newFakeSpotify(t)
		f.respond(http.StatusOK, `{"tracks":{"items":[],"total":0}}`)
		c := f.catalog(t, nil)

		tracks, err := c.Search(ctx, query)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(tracks) != 0 {
			t.Errorf("expected no tracks, got %d", len(tracks))
		}
	})

	t.Run("search 401 is an auth error", func(t *testing.T) {
		f := newFakeSpotify(t)
		f.respond(http.StatusUnauthorized, `{"error":{"status":401,"message":"Invalid access token"}}`)
		m := metrics.New()
		c := f.catalog(t, m)

		_, err := c.Search(ctx, query)
		var authErr *shared.CatalogAuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected CatalogAuthError, got %v", err)
		}
		if authErr.Status != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", authErr.Status)
		}
		if got := testutil.ToFloat64(m.Searches(metrics.OutcomeAuthError)); got != 1 {
			t.Errorf("expected auth failure recorded, got %v", got)
		}
	})

	t.Run("search 500 is a request error", func(t *testing.T) {
		f := newFakeSpotify(t)
		f.respond(http.StatusInternalServerError, `{"error":{"status":500,"message":"Server error"}}`)
		c := f.catalog(t, nil)

		_, err := c.Search(ctx, query)
		var reqErr *shared.CatalogRequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("expected CatalogRequestError, got %v", err)
		}
		if reqErr.Status != http.StatusInternalServerError || reqErr.Query != "rainy day jazz" {
			t.Errorf("unexpected request error %+v", reqErr)
		}
	})

	t.Run("rejected client credentials", func(t *testing.T) {
		f := newFakeSpotify(t)
		f.tokenStatus = http.StatusBadRequest
		c := f.catalog(t, nil)

		_, err := c.Search(ctx, query)
		var authErr *shared.CatalogAuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected CatalogAuthError, got %v", err)
		}
		for _, s := range []shared.Secret{testClientID, testClientSecret} {
			if strings.Contains(err.Error(), s.Value()) {
				t.Errorf("error leaked a credential: %v", err)
			}
		}
		if c.TokenState() != TokenNone {
			t.Errorf("expected no token after a failed exchange, got %s", c.TokenState())
		}
	})

	t.Run("unreachable catalog", func(t *testing.T) {
		f := newFakeSpotify(t)
		c := f.catalog(t, nil)
		f.Close()

		_, err := c.Search(ctx, query)
		if err == nil {
			t.Fatal("expected error")
		}
		var authErr *shared.CatalogAuthError
		if errors.As(err, &authErr) {
			t.Errorf("transport failure should not be an auth error: %v", err)
		}
		if !errors.Is(err, shared.ErrCatalogRequest) {
			t.Errorf("expected ErrCatalogRequest, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFakeSpotify(t)
		c := f.catalog(t, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := c.Search(cctx, query); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestExchanger(t *testing.T) {
	t.Run("calls callback on first token fetch", func(t *testing.T) {
		var captured *oauth2.Token
		e := &exchanger{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
			callback: func(token *oauth2.Token) { captured = token },
		}

		token, err := e.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if captured == nil || captured.AccessToken != "test_token" {
			t.Errorf("expected callback with test_token, got %v", captured)
		}
		if token.AccessToken != "test_token" {
			t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
		}
	})

	t.Run("calls callback only when the token changes", func(t *testing.T) {
		calls := 0
		src := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		e := &exchanger{source: src, callback: func(*oauth2.Token) { calls++ }}

		e.Token()
		e.Token()
		if calls != 1 {
			t.Errorf("expected callback called once, got %d", calls)
		}

		src.token = &oauth2.Token{AccessToken: "token2"}
		e.Token()
		if calls != 2 {
			t.Errorf("expected callback called twice, got %d", calls)
		}
	})

	t.Run("handles nil callback", func(t *testing.T) {
		e := &exchanger{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "x"}}}
		if _, err := e.Token(); err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		e := &exchanger{
			source:   &mockTokenSource{err: errors.New("token source error")},
			callback: func(*oauth2.Token) { t.Error("callback should not be called on error") },
		}

		token, err := e.Token()
		if err == nil || !strings.Contains(err.Error(), "token source error") {
			t.Fatalf("expected source error, got %v", err)
		}
		if token != nil {
			t.Error("expected nil token on error")
		}
	})

	t.Run("contains callback panic", func(t *testing.T) {
		e := &exchanger{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "x"}},
			callback: func(*oauth2.Token) { panic("callback panic") },
		}
		if _, err := e.Token(); err != nil {
			t.Errorf("expected token despite panicking callback, got %v", err)
		}
	})

	t.Run("State", func(t *testing.T) {
		now := time.Now()
		e := &exchanger{}
		if e.State(now) != TokenNone {
			t.Error("expected none")
		}

		e.last = &oauth2.Token{AccessToken: "x", Expiry: now.Add(time.Hour)}
		if e.State(now) != TokenValid {
			t.Error("expected valid")
		}

		e.last.Expiry = now.Add(20 * time.Second)
		if e.State(now) != TokenExpired {
			t.Error("expected expired inside the margin")
		}
	})
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

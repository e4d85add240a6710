package tasks

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/shared"
	tu "github.com/desertthunder/moodtape/internal/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func explicit(tracks []models.Track, n int) []models.Track {
	for i := 0; i < n && i < len(tracks); i++ {
		tracks[i].Explicit = true
	}
	return tracks
}

func assertUnique(t *testing.T, tracks models.TrackList) {
	t.Helper()
	seen := map[string]bool{}
	for _, tr := range tracks {
		if seen[tr.Key()] {
			t.Errorf("duplicate track %s in output", tr.Key())
		}
		seen[tr.Key()] = true
	}
}

func TestQueryPlanner(t *testing.T) {
	ctx := context.Background()

	t.Run("three queries of four tracks fill a target of ten without fallback", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", tu.Tracks("a", 4)...).
			On("q2", tu.Tracks("b", 4)...).
			On("q3", tu.Tracks("c", 4)...)
		m := metrics.New()
		planner := NewQueryPlanner(catalog, nil, WithPlannerMetrics(m))

		strategy := tu.Strategy([]string{"q1", "q2", "q3"}, []string{"soft"}, []string{"indie"})
		tracks, err := planner.Resolve(ctx, strategy, "KR", 10, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		if len(tracks) != 10 {
			t.Errorf("expected 10 tracks, got %d", len(tracks))
		}
		if got := catalog.Issued(); len(got) != 3 {
			t.Errorf("expected only the 3 primary queries, got %s", catalog.IssuedString())
		}
		if got := testutil.ToFloat64(m.FallbackQueries()); got != 0 {
			t.Errorf("expected no fallback queries, got %v", got)
		}
		assertUnique(t, tracks)

		want := []string{"a-1", "b-1", "c-1", "a-2", "b-2", "c-2", "a-3", "b-3", "c-3", "a-4"}
		if !reflect.DeepEqual(tracks.IDs(), want) {
			t.Errorf("unexpected popularity order\n got: %v\nwant: %v", tracks.IDs(), want)
		}
	})

	t.Run("explicit tracks are filtered and trigger fallback", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", explicit(tu.Tracks("a", 4), 3)...).
			On("q2", explicit(tu.Tracks("b", 4), 2)...)
		m := metrics.New()
		planner := NewQueryPlanner(catalog, nil, WithPlannerMetrics(m))

		strategy := tu.Strategy([]string{"q1", "q2"}, []string{"soft"}, []string{"indie"})
		tracks, err := planner.Resolve(ctx, strategy, "KR", 5, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		if len(tracks) > 5 {
			t.Errorf("expected at most 5 tracks, got %d", len(tracks))
		}
		if len(tracks) != 3 {
			t.Errorf("expected the 3 clean tracks, got %d", len(tracks))
		}
		for _, tr := range tracks {
			if tr.Explicit {
				t.Errorf("explicit track %s in output", tr.ID)
			}
		}

		issued := catalog.Issued()
		if len(issued) <= 2 {
			t.Fatalf("expected fallback queries after the primaries, got %s", catalog.IssuedString())
		}
		if issued[2] != `genre:"indie"` {
			t.Errorf("expected genre fallback first, got %q", issued[2])
		}
		if got := testutil.ToFloat64(m.FallbackQueries()); got != float64(len(issued)-2) {
			t.Errorf("expected %d fallback queries counted, got %v", len(issued)-2, got)
		}
	})

	t.Run("explicit tracks allowed", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().On("q1", explicit(tu.Tracks("a", 6), 6)...)
		planner := NewQueryPlanner(catalog, nil)

		tracks, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "KR", 5, true)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(tracks) != 5 {
			t.Errorf("expected 5 tracks, got %d", len(tracks))
		}
		if len(catalog.Issued()) != 1 {
			t.Errorf("expected no fallback, got %s", catalog.IssuedString())
		}
	})

	t.Run("empty search queries go straight to fallback in order", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		planner := NewQueryPlanner(catalog, nil)

		strategy := tu.Strategy(nil,
			[]string{"k1", "k2", "k3", "k4", "k5", "k6"},
			[]string{"indie", "lo-fi", "city-pop", "jazz"})
		tracks, err := planner.Resolve(ctx, strategy, "KR", 5, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(tracks) != 0 {
			t.Errorf("expected no tracks, got %d", len(tracks))
		}

		want := []string{
			`genre:"indie"`, `genre:"lo-fi"`, `genre:"city-pop"`,
			"k1", "k2", "k3", "k4", "k5",
			`k1 genre:"indie"`, `k2 genre:"indie"`, `k3 genre:"indie"`,
			`k1 genre:"lo-fi"`, `k2 genre:"lo-fi"`, `k3 genre:"lo-fi"`,
			"top hits",
		}
		if got := catalog.Issued(); !reflect.DeepEqual(got, want) {
			t.Errorf("unexpected fallback order\n got: %v\nwant: %v", got, want)
		}
	})

	t.Run("fallback stops once the target is reached", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", tu.Tracks("a", 2)...).
			On(`genre:"indie"`, tu.Tracks("g", 5)...)
		planner := NewQueryPlanner(catalog, nil)

		strategy := tu.Strategy([]string{"q1"}, []string{"soft"}, []string{"indie", "jazz"})
		tracks, err := planner.Resolve(ctx, strategy, "KR", 5, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(tracks) != 5 {
			t.Errorf("expected 5 tracks, got %d", len(tracks))
		}
		if got := catalog.Issued(); !reflect.DeepEqual(got, []string{"q1", `genre:"indie"`}) {
			t.Errorf("expected one fallback query, got %s", catalog.IssuedString())
		}
	})

	t.Run("primary phase stops at the overfetch bound", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", tu.Tracks("a", 4)...).
			On("q2", tu.Tracks("b", 4)...).
			On("q3", tu.Tracks("c", 4)...)
		planner := NewQueryPlanner(catalog, nil)

		_, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2", "q3"}, []string{"k"}, []string{"g"}), "KR", 2, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if got := catalog.Issued(); len(got) != 2 {
			t.Errorf("expected 2 queries before reaching 3x target, got %s", catalog.IssuedString())
		}
	})

	t.Run("overfetch factor is configurable", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", tu.Tracks("a", 4)...).
			On("q2", tu.Tracks("b", 4)...)
		planner := NewQueryPlanner(catalog, nil, WithOverfetchFactor(1))

		if _, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2"}, []string{"k"}, []string{"g"}), "KR", 4, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if got := catalog.Issued(); len(got) != 1 {
			t.Errorf("expected a single query, got %s", catalog.IssuedString())
		}
	})

	t.Run("rank policies", func(t *testing.T) {
		low := models.Track{ID: "low", URL: "u/low", Popularity: 10}
		high := models.Track{ID: "high", URL: "u/high", Popularity: 90}
		tie := models.Track{ID: "tie", URL: "u/tie", Popularity: 10}

		tests := []struct {
			name   string
			policy RankPolicy
			want   []string
		}{
			{"popularity", RankPopularity, []string{"high", "low", "tie"}},
			{"discovery", RankDiscovery, []string{"low", "tie", "high"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				catalog := tu.NewFakeCatalog().
					On("q1", low, tie).
					On("q2", high)
				planner := NewQueryPlanner(catalog, nil, WithRankPolicy(tt.policy))

				tracks, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2"}, []string{"k"}, []string{"g"}), "KR", 3, false)
				if err != nil {
					t.Fatalf("Resolve failed: %v", err)
				}
				if !reflect.DeepEqual(tracks.IDs(), tt.want) {
					t.Errorf("got %v, want %v", tracks.IDs(), tt.want)
				}
			})
		}
	})

	t.Run("identical fixtures give identical ordering", func(t *testing.T) {
		strategy := tu.Strategy([]string{"q1", "q2"}, []string{"k1", "k2"}, []string{"indie"})
		build := func() *tu.FakeCatalog {
			return tu.NewFakeCatalog().
				On("q1", tu.Tracks("a", 3)...).
				On("q2", append(tu.Tracks("a", 2), tu.Tracks("b", 3)...)...).
				On("k1", tu.Tracks("c", 2)...)
		}

		first, err := NewQueryPlanner(build(), nil).Resolve(ctx, strategy, "KR", 8, false)
		if err != nil {
			t.Fatalf("first Resolve failed: %v", err)
		}
		second, err := NewQueryPlanner(build(), nil).Resolve(ctx, strategy, "KR", 8, false)
		if err != nil {
			t.Fatalf("second Resolve failed: %v", err)
		}
		if !reflect.DeepEqual(first.IDs(), second.IDs()) {
			t.Errorf("orderings differ\n first: %v\nsecond: %v", first.IDs(), second.IDs())
		}
		assertUnique(t, first)
	})

	t.Run("each resolve uses a fresh dedupe set", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().On("q1", tu.Tracks("a", 5)...)
		planner := NewQueryPlanner(catalog, nil)
		strategy := tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"})

		for i := 0; i < 2; i++ {
			tracks, err := planner.Resolve(ctx, strategy, "KR", 5, false)
			if err != nil {
				t.Fatalf("Resolve %d failed: %v", i, err)
			}
			if len(tracks) != 5 {
				t.Errorf("Resolve %d: expected 5 tracks, got %d", i, len(tracks))
			}
		}
	})

	t.Run("explicit tracks still claim their identity", func(t *testing.T) {
		dirty := models.Track{ID: "x", Name: "dirty", Explicit: true}
		clean := models.Track{ID: "x", Name: "clean"}
		catalog := tu.NewFakeCatalog().
			On("q1", dirty).
			On("q2", clean, models.Track{ID: "y"})
		planner := NewQueryPlanner(catalog, nil)

		tracks, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !reflect.DeepEqual(tracks.IDs(), []string{"y"}) {
			t.Errorf("expected only y, got %v", tracks.IDs())
		}
	})

	t.Run("tracks without an ID are keyed by URL", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", models.Track{URL: "https://open.spotify.com/track/z"}, models.Track{URL: "https://open.spotify.com/track/z"})
		planner := NewQueryPlanner(catalog, nil, WithRankPolicy(RankDiscovery))

		tracks, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(tracks) != 1 {
			t.Errorf("expected URL-keyed duplicate to collapse, got %d", len(tracks))
		}
	})

	t.Run("repeated queries are issued once", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().On("late night", tu.Tracks("a", 1)...)
		planner := NewQueryPlanner(catalog, nil)

		strategy := tu.Strategy([]string{"Late Night", "late   night", "LATE NIGHT"}, []string{"late night"}, []string{"g"})
		if _, err := planner.Resolve(ctx, strategy, "KR", 5, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		count := 0
		for _, q := range catalog.Issued() {
			if shared.NormalizeQuery(q) == "late night" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected one late night search, got %d (%s)", count, catalog.IssuedString())
		}
	})

	t.Run("near-duplicate primary queries are collapsed", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("chill lo-fi beats", tu.Tracks("a", 1)...).
			On("rainy jazz", tu.Tracks("b", 1)...)
		planner := NewQueryPlanner(catalog, nil, WithCollapseSimilarity(0.95))

		strategy := tu.Strategy([]string{"chill lo-fi beats", "chill lo-fi beat", "rainy jazz"}, []string{"k"}, []string{"g"})
		if _, err := planner.Resolve(ctx, strategy, "KR", 1, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		got := catalog.Issued()
		if !reflect.DeepEqual(got, []string{"chill lo-fi beats", "rainy jazz"}) {
			t.Errorf("expected near-duplicate to be skipped, got %s", catalog.IssuedString())
		}
	})

	t.Run("near-duplicate check is off by default", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		planner := NewQueryPlanner(catalog, nil)

		strategy := tu.Strategy([]string{"chill lo-fi beats", "chill lo-fi beat"}, []string{"k"}, []string{"g"})
		if _, err := planner.Resolve(ctx, strategy, "KR", 5, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if got := catalog.Issued(); got[1] != "chill lo-fi beat" {
			t.Errorf("expected both primaries to be issued, got %s", catalog.IssuedString())
		}
	})

	t.Run("failed queries are skipped", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			Fail("q1", nil).
			On("q2", tu.Tracks("b", 5)...)
		planner := NewQueryPlanner(catalog, nil)

		tracks, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if err != nil {
			t.Fatalf("expected request error to be skipped, got %v", err)
		}
		if len(tracks) != 5 {
			t.Errorf("expected 5 tracks, got %d", len(tracks))
		}
	})

	t.Run("zero tracks with a failed query returns the request error", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().Fail("q1", nil)
		planner := NewQueryPlanner(catalog, nil)

		_, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		var reqErr *shared.CatalogRequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("expected CatalogRequestError, got %v", err)
		}
		if reqErr.Query != "q1" {
			t.Errorf("expected failing query q1, got %q", reqErr.Query)
		}
	})

	t.Run("untyped catalog failures are treated as request errors", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().Fail("q1", errors.New("connection reset"))
		planner := NewQueryPlanner(catalog, nil)

		_, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if !errors.Is(err, shared.ErrCatalogRequest) {
			t.Errorf("expected ErrCatalogRequest, got %v", err)
		}
	})

	t.Run("auth failure aborts immediately", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			On("q1", tu.Tracks("a", 1)...).
			Fail("q2", &shared.CatalogAuthError{Status: 401, Err: errors.New("bad token")})
		planner := NewQueryPlanner(catalog, nil)

		_, err := planner.Resolve(ctx, tu.Strategy([]string{"q1", "q2", "q3"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if !errors.Is(err, shared.ErrCatalogAuth) {
			t.Fatalf("expected ErrCatalogAuth, got %v", err)
		}
		if got := catalog.Issued(); len(got) != 2 {
			t.Errorf("expected to stop after the auth failure, got %s", catalog.IssuedString())
		}
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		planner := NewQueryPlanner(tu.NewFakeCatalog().On("q1", tu.Tracks("a", 5)...), nil)
		_, err := planner.Resolve(cctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "KR", 5, false)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("market and limit are forwarded", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		planner := NewQueryPlanner(catalog, nil, WithSearchLimit(10))

		if _, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"}), "US", 5, false); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		q := catalog.Queries[0]
		if q.Market != "US" || q.Limit != 10 {
			t.Errorf("expected market US limit 10, got %+v", q)
		}
	})

	t.Run("invalid target count", func(t *testing.T) {
		planner := NewQueryPlanner(tu.NewFakeCatalog(), nil)
		if _, err := planner.Resolve(ctx, tu.Strategy([]string{"q1"}, nil, nil), "KR", 0, false); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().On("q1", tu.Tracks("a", 2)...)
		planner := NewQueryPlanner(catalog, nil)
		progress := make(chan ProgressUpdate, 32)

		strategy := tu.Strategy([]string{"q1"}, []string{"k"}, []string{"g"})
		if _, err := planner.ResolveWithProgress(ctx, strategy, "KR", 5, false, progress); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		close(progress)

		phases := map[Phase]int{}
		var last ProgressUpdate
		for u := range progress {
			phases[u.Phase]++
			last = u
		}
		if phases[Search] != 1 {
			t.Errorf("expected 1 search update, got %d", phases[Search])
		}
		if phases[Fallback] == 0 {
			t.Error("expected fallback updates")
		}
		if last.Phase != Rank || !strings.Contains(last.Message, "popularity") {
			t.Errorf("expected final rank update, got %+v", last)
		}
	})
}

func TestFallbackQueries(t *testing.T) {
	t.Run("caps each group", func(t *testing.T) {
		s := tu.Strategy(nil,
			[]string{"a", "b", "c", "d", "e", "f", "g"},
			[]string{"g1", "g2", "g3", "g4"})
		got := FallbackQueries(s)

		// 3 genres + 5 keywords + 2x3 combos + catch-all
		if len(got) != 15 {
			t.Errorf("expected 15 fallback queries, got %d: %v", len(got), got)
		}
		if got[len(got)-1] != "top hits" {
			t.Errorf("expected catch-all last, got %q", got[len(got)-1])
		}
	})

	t.Run("short lists", func(t *testing.T) {
		got := FallbackQueries(tu.Strategy(nil, []string{"soft"}, []string{"indie"}))
		want := []string{`genre:"indie"`, "soft", `soft genre:"indie"`, "top hits"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("empty strategy", func(t *testing.T) {
		got := FallbackQueries(models.Strategy{})
		if !reflect.DeepEqual(got, []string{"top hits"}) {
			t.Errorf("expected only the catch-all, got %v", got)
		}
	})
}

func TestRankPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RankPolicy
		wantErr bool
	}{
		{"", RankPopularity, false},
		{"popularity", RankPopularity, false},
		{"Discovery", RankDiscovery, false},
		{"random", RankPopularity, true},
	}

	for _, tt := range tests {
		got, err := ParseRankPolicy(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParseRankPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRankPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if RankDiscovery.String() != "discovery" || RankPopularity.String() != "popularity" {
		t.Error("unexpected policy names")
	}
}

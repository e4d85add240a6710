package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/moodtape/internal/shared"
)

const (
	MinEnergy     = 1
	MaxEnergy     = 10
	MinTrackCount = 5
	MaxTrackCount = 30

	DefaultEnergy     = 5
	DefaultTone       = "calm"
	DefaultTrackCount = 12
	DefaultMarket     = "KR"
)

// Genres lists the genre tags offered by the form and CLI help.
var Genres = []string{"k-pop", "pop", "hip-hop", "r&b", "jazz", "classical", "lo-fi", "edm", "indie"}

// Tones lists the emotional tone tags offered by the form and CLI help.
var Tones = []string{"bright", "calm", "dreamy", "focused", "upbeat", "emotional"}

// UserIntent is the free-text mood description plus the constraints that shape the playlist.
type UserIntent struct {
	Mood          string   `json:"mood" toml:"mood"`
	Activity      string   `json:"activity" toml:"activity"`
	Genres        []string `json:"genres" toml:"genres"`
	Energy        int      `json:"energy" toml:"energy"`
	Tone          string   `json:"tone" toml:"tone"`
	TrackCount    int      `json:"track_count" toml:"track_count"`
	Market        string   `json:"market" toml:"market"`
	AllowExplicit bool     `json:"allow_explicit" toml:"allow_explicit"`
}

// NewUserIntent returns an intent populated with the default constraints.
func NewUserIntent() UserIntent {
	return UserIntent{
		Genres:     []string{},
		Energy:     DefaultEnergy,
		Tone:       DefaultTone,
		TrackCount: DefaultTrackCount,
		Market:     DefaultMarket,
	}
}

// WithDefaults fills zero-valued constraint fields from [NewUserIntent].
func (u UserIntent) WithDefaults() UserIntent {
	d := NewUserIntent()
	if u.Energy == 0 {
		u.Energy = d.Energy
	}
	if strings.TrimSpace(u.Tone) == "" {
		u.Tone = d.Tone
	}
	if u.TrackCount == 0 {
		u.TrackCount = d.TrackCount
	}
	if strings.TrimSpace(u.Market) == "" {
		u.Market = d.Market
	}
	if u.Genres == nil {
		u.Genres = []string{}
	}
	return u
}

// Normalize trims free text, lowercases genre tags, drops empty genres and upper-cases the market code.
func (u UserIntent) Normalize() UserIntent {
	u.Mood = strings.TrimSpace(u.Mood)
	u.Activity = strings.TrimSpace(u.Activity)
	u.Tone = strings.TrimSpace(u.Tone)
	u.Market = strings.ToUpper(strings.TrimSpace(u.Market))

	genres := make([]string, 0, len(u.Genres))
	for _, g := range u.Genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			genres = append(genres, g)
		}
	}
	u.Genres = genres
	return u
}

// Validate checks the intent ranges. Call [UserIntent.Normalize] first.
func (u UserIntent) Validate() error {
	if u.Mood == "" && u.Activity == "" {
		return fmt.Errorf("%w: mood or activity is required", shared.ErrInvalidInput)
	}
	if u.Energy < MinEnergy || u.Energy > MaxEnergy {
		return fmt.Errorf("%w: energy must be between %d and %d, got %d", shared.ErrInvalidInput, MinEnergy, MaxEnergy, u.Energy)
	}
	if u.TrackCount < MinTrackCount || u.TrackCount > MaxTrackCount {
		return fmt.Errorf("%w: track count must be between %d and %d, got %d", shared.ErrInvalidInput, MinTrackCount, MaxTrackCount, u.TrackCount)
	}
	if !isMarketCode(u.Market) {
		return fmt.Errorf("%w: market must be a two-letter country code, got %q", shared.ErrInvalidInput, u.Market)
	}
	return nil
}

func isMarketCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

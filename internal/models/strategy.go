package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidStrategy is returned by [ParseStrategy] when the payload does not match the strategy schema.
var ErrInvalidStrategy = errors.New("invalid strategy")

// Strategy field names as they appear in the generation backend's JSON.
const (
	FieldMoodSummary   = "mood_summary"
	FieldKeywords      = "keywords"
	FieldSeedGenres    = "seed_genres"
	FieldSearchQueries = "search_queries"
	FieldPlaylistTheme = "playlist_theme"
	FieldReason        = "reason"
)

// StrategyFields lists the required fields in schema order.
var StrategyFields = []string{
	FieldMoodSummary,
	FieldKeywords,
	FieldSeedGenres,
	FieldSearchQueries,
	FieldPlaylistTheme,
	FieldReason,
}

// Strategy describes how to search the catalog for a mood.
//
// Values are built by [ParseStrategy] and treated as read-only afterwards.
type Strategy struct {
	MoodSummary   string   `json:"mood_summary"`
	Keywords      []string `json:"keywords"`
	SeedGenres    []string `json:"seed_genres"`
	SearchQueries []string `json:"search_queries"`
	PlaylistTheme string   `json:"playlist_theme"`
	Reason        string   `json:"reason"`
}

// ParseStrategy decodes a single JSON object and checks that every required field is present,
// non-null and correctly typed. Lists must be non-empty and hold non-empty strings.
//
// Seed genres are lowercased.
func ParseStrategy(raw string) (Strategy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Strategy{}, fmt.Errorf("%w: empty response", ErrInvalidStrategy)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return Strategy{}, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
	}
	if fields == nil {
		return Strategy{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidStrategy)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Strategy{}, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidStrategy)
	}

	var s Strategy
	var err error
	if s.MoodSummary, err = stringField(fields, FieldMoodSummary); err != nil {
		return Strategy{}, err
	}
	if s.Keywords, err = listField(fields, FieldKeywords); err != nil {
		return Strategy{}, err
	}
	if s.SeedGenres, err = listField(fields, FieldSeedGenres); err != nil {
		return Strategy{}, err
	}
	if s.SearchQueries, err = listField(fields, FieldSearchQueries); err != nil {
		return Strategy{}, err
	}
	if s.PlaylistTheme, err = stringField(fields, FieldPlaylistTheme); err != nil {
		return Strategy{}, err
	}
	if s.Reason, err = stringField(fields, FieldReason); err != nil {
		return Strategy{}, err
	}

	for i, g := range s.SeedGenres {
		s.SeedGenres[i] = strings.ToLower(g)
	}

	return s, nil
}

// Validate re-checks the strategy invariants on an already constructed value.
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.MoodSummary) == "" {
		return missingField(FieldMoodSummary)
	}
	if strings.TrimSpace(s.PlaylistTheme) == "" {
		return missingField(FieldPlaylistTheme)
	}
	if strings.TrimSpace(s.Reason) == "" {
		return missingField(FieldReason)
	}
	for name, list := range map[string][]string{
		FieldKeywords:      s.Keywords,
		FieldSeedGenres:    s.SeedGenres,
		FieldSearchQueries: s.SearchQueries,
	} {
		if len(list) == 0 {
			return missingField(name)
		}
		for _, v := range list {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: %s contains an empty entry", ErrInvalidStrategy, name)
			}
		}
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing field %s", ErrInvalidStrategy, name)
}

func present(fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	v, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, missingField(name)
	}
	return v, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	v, err := present(fields, name)
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidStrategy, name)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidStrategy, name)
	}
	return s, nil
}

func listField(fields map[string]json.RawMessage, name string) ([]string, error) {
	v, err := present(fields, name)
	if err != nil {
		return nil, err
	}

	var items []string
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidStrategy, name)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidStrategy, name)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("%w: %s contains an empty entry", ErrInvalidStrategy, name)
		}
		out = append(out, item)
	}
	return out, nil
}

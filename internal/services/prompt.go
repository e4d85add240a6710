package services

import (
	"fmt"
	"strings"

	"github.com/desertthunder/moodtape/internal/models"
)

const systemPrompt = `You are a music curator who turns a listener's mood into a catalog search strategy.
Respond with a single valid JSON object and nothing else: no prose, no explanations, no markdown, no code fences.`

// BuildSystemPrompt returns the system instruction sent with every generation attempt.
func BuildSystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt embeds every intent field and the strategy schema.
//
// The output depends only on the intent, so the same intent always yields the same prompt.
func BuildUserPrompt(intent models.UserIntent) string {
	var b strings.Builder

	b.WriteString("Listener input:\n")
	fmt.Fprintf(&b, "- mood: %s\n", orNone(intent.Mood))
	fmt.Fprintf(&b, "- activity: %s\n", orNone(intent.Activity))
	fmt.Fprintf(&b, "- preferred genres: %s\n", orNone(strings.Join(intent.Genres, ", ")))
	fmt.Fprintf(&b, "- energy: %d on a scale of %d to %d\n", intent.Energy, models.MinEnergy, models.MaxEnergy)
	fmt.Fprintf(&b, "- tone: %s\n", orNone(intent.Tone))
	fmt.Fprintf(&b, "- market: %s\n", intent.Market)
	fmt.Fprintf(&b, "- explicit content allowed: %t\n", intent.AllowExplicit)
	fmt.Fprintf(&b, "- playlist length: %d tracks\n", intent.TrackCount)

	b.WriteString("\nReturn a JSON object with exactly these fields:\n")
	fmt.Fprintf(&b, "- %q: string, one sentence describing the listener's mood\n", models.FieldMoodSummary)
	fmt.Fprintf(&b, "- %q: array of 5 to 10 short strings describing mood, context and sound\n", models.FieldKeywords)
	fmt.Fprintf(&b, "- %q: array of 2 to 5 lowercase hyphenated genre tags (e.g. \"lo-fi\", \"city-pop\")\n", models.FieldSeedGenres)
	fmt.Fprintf(&b, "- %q: array of 6 to 12 short catalog search strings\n", models.FieldSearchQueries)
	fmt.Fprintf(&b, "- %q: string, a short playlist title\n", models.FieldPlaylistTheme)
	fmt.Fprintf(&b, "- %q: string, one or two sentences on why this fits the mood\n", models.FieldReason)

	b.WriteString("\nRules:\n")
	b.WriteString("- Search queries must differ in meaning, not only in wording.\n")
	b.WriteString("- Mix mood and context keywords, genre terms and tempo or energy descriptors across the queries.\n")
	b.WriteString("- Diversify genres: include adjacent genres instead of repeating a single one.\n")
	b.WriteString("- Keep each search query under six words.\n")
	if !intent.AllowExplicit {
		b.WriteString("- Explicit content is not allowed: phrase one or two queries toward clean or non-explicit versions without repeating the word in every query.\n")
	}
	b.WriteString("- Every field is required. Do not add other fields.\n")

	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

package shared

import (
	"encoding/json"
	"strings"
)

const redacted = "[redacted]"

// Secret holds a credential. It formats and marshals as a redacted placeholder so it is safe to log.
//
// Use [Secret.Value] to read the raw string when building a request.
type Secret string

// Value returns the raw credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the secret is non-empty after trimming whitespace.
func (s Secret) IsSet() bool { return strings.TrimSpace(string(s)) != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return `shared.Secret("` + s.String() + `")` }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Scrub replaces every occurrence of the credential in text with the redacted placeholder.
func (s Secret) Scrub(text string) string {
	if len(s) < 4 {
		return text
	}
	return strings.ReplaceAll(text, string(s), redacted)
}

// package services defines the outbound clients used to build a playlist:
// text-generation backends and the music catalog.
package services

import (
	"context"

	"github.com/desertthunder/moodtape/internal/models"
)

// Completer sends one chat-style request to a text-generation backend and returns the raw
// response text. Implementations request JSON-only output.
type Completer interface {
	// Complete performs a single request. It returns [shared.ErrInvalidCredentials] when the
	// backend rejects the configured key.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the backend name (e.g., "openai", "ollama").
	Name() string
}

// CompletionRequest carries the model and the two prompt messages for one attempt.
type CompletionRequest struct {
	Model  string
	System string
	User   string
}

// Catalog searches the music catalog for tracks.
type Catalog interface {
	// Search returns the tracks matching one query. Failures are [*shared.CatalogAuthError]
	// or [*shared.CatalogRequestError].
	Search(ctx context.Context, q models.CatalogQuery) ([]models.Track, error)
}

// Generator produces a search strategy for an intent.
type Generator interface {
	Generate(ctx context.Context, intent models.UserIntent, modelID string, maxRetries int) (models.Strategy, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(req CompletionRequest) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}
}

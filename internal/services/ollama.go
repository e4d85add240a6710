package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/moodtape/internal/shared"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

// OllamaCompleter calls a local Ollama server's chat endpoint with JSON format enforced.
type OllamaCompleter struct {
	client *jsonClient
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
	Options  ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// NewOllamaCompleter creates a completer for the server at host.
func NewOllamaCompleter(host string, client *http.Client) *OllamaCompleter {
	if strings.TrimSpace(host) == "" {
		host = defaultOllamaHost
	}
	return &OllamaCompleter{client: newJSONClient(host, client)}
}

func (o *OllamaCompleter) Name() string { return shared.BackendOllama }

// Complete sends one non-streaming chat request and returns the message content.
func (o *OllamaCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload := ollamaRequest{
		Model:    req.Model,
		Messages: messages(req),
		Stream:   false,
		Format:   "json",
		Options:  ollamaOptions{Temperature: generationTemperature},
	}

	resp, err := o.client.Post(ctx, "/api/chat", payload)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: ollama: %v", shared.ErrAPIRequest, err)
	}

	var parsed ollamaResponse
	decodeErr := json.Unmarshal(resp.Body, &parsed)

	if !resp.OK() {
		msg := resp.Snippet()
		if decodeErr == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		return "", fmt.Errorf("%w: ollama status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: ollama: failed to decode response: %v", shared.ErrAPIRequest, decodeErr)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", shared.ErrAPIRequest, parsed.Error)
	}
	return parsed.Message.Content, nil
}

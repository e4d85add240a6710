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

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	generationTemperature = 0.4
)

// OpenAICompleter calls the chat completions endpoint with JSON-object output enforced.
type OpenAICompleter struct {
	client *jsonClient
	apiKey shared.Secret
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []chatMessage  `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAICompleter creates a completer. An empty baseURL uses the public API.
func NewOpenAICompleter(apiKey shared.Secret, baseURL string, client *http.Client) (*OpenAICompleter, error) {
	if !apiKey.IsSet() {
		return nil, fmt.Errorf("%w: OpenAI API key", shared.ErrMissingCredentials)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}

	c := newJSONClient(baseURL, client)
	c.header.Set("Authorization", "Bearer "+apiKey.Value())
	return &OpenAICompleter{client: c, apiKey: apiKey}, nil
}

func (o *OpenAICompleter) Name() string { return shared.BackendOpenAI }

// Complete sends one chat completion and returns the first choice's content.
func (o *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload := openAIRequest{
		Model:          req.Model,
		Temperature:    generationTemperature,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages:       messages(req),
	}

	resp, err := o.client.Post(ctx, "/chat/completions", payload)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", shared.ErrAPIRequest, o.apiKey.Scrub(err.Error()))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: OpenAI rejected the API key", shared.ErrInvalidCredentials)
	case !resp.OK():
		return "", fmt.Errorf("%w: OpenAI status %d: %s", shared.ErrAPIRequest, resp.StatusCode, o.apiKey.Scrub(errorMessage(resp)))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to decode completion: %v", shared.ErrAPIRequest, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", shared.ErrAPIRequest)
	}
	return parsed.Choices[0].Message.Content, nil
}

func errorMessage(resp *apiResponse) string {
	var e openAIError
	if err := json.Unmarshal(resp.Body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return resp.Snippet()
}

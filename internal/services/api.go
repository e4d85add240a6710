// JSON-over-HTTP helper shared by the text-generation backends
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	maxErrorBody    = 512
	maxResponseBody = 4 << 20
)

// jsonClient posts JSON payloads to a fixed base URL.
type jsonClient struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

func newJSONClient(baseURL string, client *http.Client) *jsonClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &jsonClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		header:     http.Header{},
	}
}

// apiResponse is a raw response with status and body.
type apiResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *apiResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Snippet returns the start of the body for error messages.
func (r *apiResponse) Snippet() string {
	s := strings.TrimSpace(string(r.Body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// Post marshals payload, sends it to path and returns the raw response.
// Non-2xx statuses are not errors here; callers map them.
func (c *jsonClient) Post(ctx context.Context, path string, payload any) (*apiResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBody)
	}

	return &apiResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

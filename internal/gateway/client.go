// ABOUTME: Gateway API client for the chat completions endpoint
// ABOUTME: Sends streaming requests and surfaces non-200 responses as errors

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message roles used in chat completion requests.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for POST /v1/chat/completions.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// StatusError is returned when the gateway answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Client communicates with a gateway's chat completions API. The HTTP
// client timeout bounds the whole exchange, last streamed byte included.
type Client struct {
	baseURL string
	model   string
	token   string
	client  *http.Client
}

// NewClient creates a gateway client. token may be empty for gateways that
// run without authentication.
func NewClient(baseURL, model, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// StreamChat posts messages to the gateway and returns the response stream.
// The caller must Close the stream when done with it.
func (c *Client) StreamChat(ctx context.Context, messages []Message) (*Stream, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return newStream(resp.Body), nil
}

// Package completions provides the client for the platform's streaming
// chat-completion endpoint. The endpoint runs the full agent loop for a
// conversation (model calls, tool execution, persistence); callers only
// see the token stream and read results back from conversation storage.
package completions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollis/envoy-ai-agent/internal/httpkit"
)

// Endpoint invokes a chat completion for an agent within a conversation.
// The returned stream carries the raw response body; callers must close
// it. Cancelling ctx aborts the completion mid-stream.
type Endpoint interface {
	Invoke(ctx context.Context, conversationID, agentID, message string) (io.ReadCloser, error)
}

// Client is an HTTP client for the chat-completion endpoint.
type Client struct {
	url    string
	token  string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a completion client for the given endpoint URL.
// An empty token disables the Authorization header.
func NewClient(url, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:   url,
		token: token,
		// No overall timeout: completions stream for as long as the
		// agent loop runs. Cancellation comes from the request context.
		http: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

type invokeRequest struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	Message        string `json:"message"`
	Stream         bool   `json:"stream"`
}

// Invoke starts a streaming completion and returns the response body.
func (c *Client) Invoke(ctx context.Context, conversationID, agentID, message string) (io.ReadCloser, error) {
	payload, err := json.Marshal(invokeRequest{
		ConversationID: conversationID,
		AgentID:        agentID,
		Message:        message,
		Stream:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("invoking completion endpoint",
		"conversationID", conversationID,
		"agentID", agentID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("completion endpoint error %d: %s", resp.StatusCode, body)
	}

	return resp.Body, nil
}

// Drain consumes a completion stream to completion and discards it.
// The endpoint persists the assistant's response to conversation storage
// as a side effect; the stream itself is only consumed for pacing.
func Drain(stream io.ReadCloser) error {
	defer stream.Close()
	_, err := io.Copy(io.Discard, stream)
	return err
}

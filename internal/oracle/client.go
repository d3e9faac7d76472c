// Package oracle calls an OpenAI-compatible chat model to turn market
// snapshots into typed trade proposals. The model is untrusted: every
// response is parsed and validated before anything downstream sees it.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/store"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

// Client talks to one model endpoint on behalf of one trader.
type Client struct {
	apiURL    string
	apiKeyEnv string
	model     string
	http      *http.Client
}

var _ interfaces.Oracle = (*Client)(nil)

func NewClient(tc store.TraderConfig, timeout time.Duration) *Client {
	return &Client{
		apiURL:    strings.TrimRight(tc.APIURL, "/"),
		apiKeyEnv: tc.APIKeyEnv,
		model:     tc.Model,
		http:      &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Decide sends the full trading context to the model and parses its
// answer into typed proposals.
func (c *Client) Decide(ctx context.Context, req types.OracleRequest) (*types.OracleDecision, error) {
	ctx, span := trace.StartSpan(ctx, "oracle-api-call")
	defer span.End()

	apiKey := os.Getenv(c.apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s missing", c.apiKeyEnv)
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(req.Limits)},
			{Role: "user", Content: UserPrompt(req)},
		},
		Temperature: 0.3,
	}
	bb, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var r chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	if r.Error != nil {
		return nil, fmt.Errorf("oracle error: %s", r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return nil, errors.New("oracle returned no choices")
	}

	content := r.Choices[0].Message.Content
	// Reasoning models put the chain of thought in a separate field;
	// fold it back in so the decision log keeps the full trace.
	if rc := r.Choices[0].Message.ReasoningContent; rc != "" {
		content = rc + "\n" + content
	}

	return ParseDecision(content, req.TraderID)
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ollamaURL = "http://localhost:11434"

// OllamaClient calls a local Ollama server's chat endpoint.
type OllamaClient struct {
	opts       Options
	httpClient *http.Client
}

func NewOllama(opts Options) *OllamaClient {
	if opts.BaseURL == "" {
		opts.BaseURL = ollamaURL
	}
	return &OllamaClient{opts: opts, httpClient: opts.httpClient()}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func (c *OllamaClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := ollamaChatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: ollamaOptions{
			Temperature: c.opts.Temperature,
			NumPredict:  c.opts.maxTokens(),
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("ollama", resp.StatusCode, respBody)
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Message.Content), nil
}

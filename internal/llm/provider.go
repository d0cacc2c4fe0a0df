// Package llm talks to the language models that write grounded answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider completes one system+user exchange.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options are shared by every provider implementation.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) maxTokens() int {
	if o.MaxTokens <= 0 {
		return 2048
	}
	return o.MaxTokens
}

// New builds the named provider: "huggingface", "anthropic" or "ollama".
func New(kind string, opts Options) (Provider, error) {
	switch kind {
	case "huggingface":
		return NewHuggingFace(opts), nil
	case "anthropic":
		return NewAnthropic(opts), nil
	case "ollama":
		return NewOllama(opts), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", kind)
	}
}

// ErrEmptyResponse is returned when the model answered with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// statusError maps an unsuccessful HTTP status to an error, retryable for
// 429 and 5xx.
func statusError(api string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &RetryableError{StatusCode: status, Message: string(body)}
	}
	return fmt.Errorf("%s status %d: %s", api, status, truncate(string(body), 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

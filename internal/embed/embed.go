// Package embed turns text into vectors for indexing and retrieval.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Provider computes embeddings with one fixed model.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector length, or 0 until the first call when the
	// model's size was not configured.
	Dimensions() int
	ModelName() string
}

type Options struct {
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// KnownDimensions for models whose size need not be probed.
var KnownDimensions = map[string]int{
	"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2": 384,
	"sentence-transformers/all-MiniLM-L6-v2":                      384,
	"intfloat/multilingual-e5-small":                              384,
	"nomic-embed-text":                                            768,
	"mxbai-embed-large":                                           1024,
}

// ErrEmptyEmbedding is returned when the provider answers without a vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// New builds the named provider: "huggingface" or "ollama".
func New(kind string, opts Options) (Provider, error) {
	switch kind {
	case "huggingface":
		return NewHuggingFace(opts), nil
	case "ollama":
		return NewOllama(opts), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", kind)
	}
}

// StatusError is a non-200 answer from an embedding endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := []rune(e.Body)
	if len(body) > 200 {
		body = append(body[:200], []rune("...")...)
	}
	return fmt.Sprintf("embedding api status %d: %s", e.StatusCode, string(body))
}

// dims remembers the vector length, learned from the first response when
// not configured.
type dims struct {
	n atomic.Int64
}

func newDims(model string, configured int) *dims {
	d := &dims{}
	if configured <= 0 {
		configured = KnownDimensions[model]
	}
	d.n.Store(int64(configured))
	return d
}

func (d *dims) get() int { return int(d.n.Load()) }

func (d *dims) learn(v []float32) {
	d.n.CompareAndSwap(0, int64(len(v)))
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

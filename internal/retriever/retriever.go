// Package retriever finds the corpus chunks most similar to a question.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/index"
)

// DefaultMinChunkLength drops chunks too short to carry an answer.
const DefaultMinChunkLength = 40

// Embedder embeds a query with the model the index was built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Index is the read side of a loaded corpus index.
type Index interface {
	Manifest() index.Manifest
	Nearest(vec []float32, k int) ([]document.Hit, error)
}

type Options struct {
	// MinChunkLength is exclusive: hits need more trimmed characters.
	MinChunkLength int
	CacheTTL       time.Duration
}

type Retriever struct {
	idx      Index
	embedder Embedder
	minLen   int
	cache    *cache.Cache
	log      *slog.Logger
}

// New pairs idx with embedder. The embedder's model must be the one the
// index was built with.
func New(idx Index, embedder Embedder, opts Options, log *slog.Logger) (*Retriever, error) {
	if built := idx.Manifest().Model; built != embedder.ModelName() {
		return nil, fmt.Errorf("%w: index has %q, provider has %q", index.ErrModelMismatch, built, embedder.ModelName())
	}
	if opts.MinChunkLength < 0 {
		opts.MinChunkLength = 0
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Retriever{
		idx:      idx,
		embedder: embedder,
		minLen:   opts.MinChunkLength,
		cache:    cache.New(opts.CacheTTL, 10*time.Minute),
		log:      log,
	}, nil
}

// Search returns at most k hits ordered by similarity, minus chunks whose
// trimmed text is not longer than the minimum length. Ranks are
// renumbered from 1 after filtering. A blank query yields no hits.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]document.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	vec, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	nearest, err := r.idx.Nearest(vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	hits := make([]document.Hit, 0, len(nearest))
	for _, h := range nearest {
		if utf8.RuneCountInString(strings.TrimSpace(h.Chunk.Text)) <= r.minLen {
			continue
		}
		h.Rank = len(hits) + 1
		hits = append(hits, h)
	}

	r.log.Debug("retrieved", "k", k, "nearest", len(nearest), "kept", len(hits))
	return hits, nil
}

func (r *Retriever) queryVector(ctx context.Context, query string) ([]float32, error) {
	if v, ok := r.cache.Get(query); ok {
		return v.([]float32), nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	r.cache.SetDefault(query, vec)
	return vec, nil
}

package retriever

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/index"
)

type fakeEmbedder struct {
	model string
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) ModelName() string { return f.model }

// fakeIndex returns its hits in order, truncated to k.
type fakeIndex struct {
	model string
	hits  []document.Hit
}

func (f *fakeIndex) Manifest() index.Manifest { return index.Manifest{Model: f.model, Dimension: 2} }

func (f *fakeIndex) Nearest(_ []float32, k int) ([]document.Hit, error) {
	out := append([]document.Hit(nil), f.hits[:min(k, len(f.hits))]...)
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func long(s string) string { return s + " " + strings.Repeat("текст ", 10) }

func newHits(texts ...string) []document.Hit {
	hits := make([]document.Hit, len(texts))
	for i, t := range texts {
		hits[i] = document.Hit{Chunk: document.Chunk{Text: t, Source: "src"}, Rank: i + 1}
	}
	return hits
}

func TestNew_ModelMismatch(t *testing.T) {
	_, err := New(&fakeIndex{model: "a"}, &fakeEmbedder{model: "b"}, Options{}, discardLogger())
	assert.ErrorIs(t, err, index.ErrModelMismatch)
}

func TestSearch_KLargerThanCorpus(t *testing.T) {
	r, err := New(&fakeIndex{model: "m", hits: newHits(long("one"), long("two"))}, &fakeEmbedder{model: "m"}, Options{MinChunkLength: DefaultMinChunkLength}, discardLogger())
	require.NoError(t, err)

	hits, err := r.Search(context.Background(), "вопрос", 5)

	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_DropsShortChunksAndRenumbers(t *testing.T) {
	exactly40 := strings.Repeat("я", 40)
	idx := &fakeIndex{model: "m", hits: newHits(long("first"), "   короткий   ", "  "+exactly40+"  ", long("second"))}
	r, err := New(idx, &fakeEmbedder{model: "m"}, Options{MinChunkLength: 40}, discardLogger())
	require.NoError(t, err)

	hits, err := r.Search(context.Background(), "вопрос", 4)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.True(t, strings.HasPrefix(hits[0].Chunk.Text, "first"))
	assert.Equal(t, 1, hits[0].Rank)
	assert.True(t, strings.HasPrefix(hits[1].Chunk.Text, "second"))
	assert.Equal(t, 2, hits[1].Rank)
}

func TestSearch_FilterAfterTopK(t *testing.T) {
	// The short chunk takes a top-k slot, so only one hit survives.
	idx := &fakeIndex{model: "m", hits: newHits("short", long("kept"), long("beyond k"))}
	r, err := New(idx, &fakeEmbedder{model: "m"}, Options{MinChunkLength: 40}, discardLogger())
	require.NoError(t, err)

	hits, err := r.Search(context.Background(), "вопрос", 2)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, strings.HasPrefix(hits[0].Chunk.Text, "kept"))
}

func TestSearch_BlankQuery(t *testing.T) {
	emb := &fakeEmbedder{model: "m"}
	r, err := New(&fakeIndex{model: "m", hits: newHits(long("a"))}, emb, Options{}, discardLogger())
	require.NoError(t, err)

	hits, err := r.Search(context.Background(), "   ", 3)

	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, emb.calls)
}

func TestSearch_DeterministicAndCached(t *testing.T) {
	emb := &fakeEmbedder{model: "m"}
	r, err := New(&fakeIndex{model: "m", hits: newHits(long("a"), long("b"), long("c"))}, emb, Options{}, discardLogger())
	require.NoError(t, err)

	first, err := r.Search(context.Background(), "вопрос", 3)
	require.NoError(t, err)
	second, err := r.Search(context.Background(), " вопрос ", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.calls)
}

func TestSearch_EmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{model: "m", err: errors.New("connection refused")}
	r, err := New(&fakeIndex{model: "m"}, emb, Options{}, discardLogger())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "вопрос", 3)

	assert.ErrorContains(t, err, "embed query")
}

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/corpusqa/internal/chunker"
	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/index"
	"github.com/dgallion1/corpusqa/internal/ingest"
)

type fakeCrawler struct {
	urls  []string
	calls int
}

func (f *fakeCrawler) Crawl(_ context.Context, seeds []string, _, _ int) []string {
	f.calls++
	return f.urls
}

type fakeIngestor struct {
	docs   []document.Document
	report ingest.Report
	urls   []string
}

func (f *fakeIngestor) Ingest(_ context.Context, _ string, urls []string) ([]document.Document, ingest.Report) {
	f.urls = urls
	return f.docs, f.report
}

type constEmbedder struct{ fail error }

func (c constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, c.fail
}
func (c constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}
func (constEmbedder) Dimensions() int   { return 2 }
func (constEmbedder) ModelName() string { return "test-model" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sources(dir string, seeds ...string) Sources {
	return Sources{Seeds: seeds, MaxDepth: 2, MaxPages: 10, SourceFolder: "data1", IndexDir: dir}
}

func TestRun_BuildsIndex(t *testing.T) {
	dir := t.TempDir()
	c := &fakeCrawler{urls: []string{"https://example.org/", "https://example.org/a"}}
	in := &fakeIngestor{
		docs: []document.Document{
			{Text: strings.Repeat("Устав академии. ", 100), Source: "data1/charter.pdf", Origin: document.OriginLocalFile},
			{Text: "Контакты приёмной комиссии.", Source: "https://example.org/", Origin: document.OriginWebPage},
		},
		report: ingest.Report{LocalDocs: 1, WebDocs: 1, PageFailures: 1, Duplicates: 2},
	}
	b := NewBuilder(c, in, constEmbedder{}, sources(dir, "https://example.org/"), chunker.Config{ChunkSize: 500, ChunkOverlap: 100}, 8, discardLogger())

	report, err := b.Run(context.Background())

	require.NoError(t, err)
	snap := report.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Counts.Pages)
	assert.Equal(t, 1, snap.Counts.LocalDocs)
	assert.Equal(t, 1, snap.Counts.WebDocs)
	assert.Equal(t, 1, snap.Counts.Failures)
	assert.Equal(t, 2, snap.Counts.Duplicates)
	assert.Greater(t, snap.Counts.Chunks, 2)
	assert.Positive(t, snap.Counts.EstTokens)
	require.NotNil(t, snap.Manifest)
	assert.Equal(t, snap.Counts.Chunks, snap.Manifest.ChunkCount)
	assert.Equal(t, c.urls, in.urls, "crawled URLs are ingested")

	idx, err := index.Open(dir, "test-model")
	require.NoError(t, err)
	assert.Equal(t, snap.Counts.Chunks, idx.Len())
}

func TestRun_NoSeedsSkipsCrawl(t *testing.T) {
	c := &fakeCrawler{}
	in := &fakeIngestor{docs: []document.Document{{Text: "Локальный документ.", Source: "a.txt"}}}
	b := NewBuilder(c, in, constEmbedder{}, sources(t.TempDir()), chunker.DefaultConfig(), 32, discardLogger())

	_, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, c.calls)
	assert.Empty(t, in.urls)
}

func TestRun_EmptyCorpusLeavesIndexUntouched(t *testing.T) {
	dir := t.TempDir()
	in := &fakeIngestor{report: ingest.Report{PageFailures: 3, WebErr: ingest.ErrAllPagesFailed}}
	b := NewBuilder(&fakeCrawler{urls: []string{"u1", "u2", "u3"}}, in, constEmbedder{}, sources(dir, "u1"), chunker.DefaultConfig(), 32, discardLogger())

	report, err := b.Run(context.Background())

	assert.ErrorIs(t, err, ErrEmptyCorpus)
	snap := report.Snapshot()
	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Len(t, snap.Errors, 2)
	_, statErr := os.Stat(filepath.Join(dir, index.FileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_IndexFailureMarksFailed(t *testing.T) {
	in := &fakeIngestor{docs: []document.Document{{Text: "текст", Source: "a.txt"}}}
	b := NewBuilder(&fakeCrawler{}, in, constEmbedder{fail: errors.New("provider down")}, sources(t.TempDir()), chunker.DefaultConfig(), 32, discardLogger())

	report, err := b.Run(context.Background())

	require.Error(t, err)
	snap := report.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "indexing", snap.Phase)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "provider down")
}

func TestRun_InvalidChunkConfig(t *testing.T) {
	in := &fakeIngestor{docs: []document.Document{{Text: "текст", Source: "a.txt"}}}
	b := NewBuilder(&fakeCrawler{}, in, constEmbedder{}, sources(t.TempDir()), chunker.Config{ChunkSize: 10, ChunkOverlap: 10}, 32, discardLogger())

	_, err := b.Run(context.Background())

	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
}

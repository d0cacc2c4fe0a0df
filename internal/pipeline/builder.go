// Package pipeline runs a full corpus build: crawl, ingest, chunk, index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgallion1/corpusqa/internal/chunker"
	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/embed"
	"github.com/dgallion1/corpusqa/internal/index"
	"github.com/dgallion1/corpusqa/internal/ingest"
)

// ErrEmptyCorpus is returned when no source produced a document. The
// existing index is left untouched.
var ErrEmptyCorpus = errors.New("corpus is empty: no documents ingested")

// Crawler expands seeds into page URLs.
type Crawler interface {
	Crawl(ctx context.Context, seeds []string, maxDepth, maxPages int) []string
}

// Ingestor turns a local folder and URLs into documents.
type Ingestor interface {
	Ingest(ctx context.Context, localFolder string, urls []string) ([]document.Document, ingest.Report)
}

// Sources names what to build from and where to write.
type Sources struct {
	Seeds        []string
	MaxDepth     int
	MaxPages     int
	SourceFolder string
	IndexDir     string
}

type Builder struct {
	crawler  Crawler
	ingestor Ingestor
	embedder embed.Provider
	sources  Sources
	chunkCfg chunker.Config
	batch    int
	log      *slog.Logger
}

func NewBuilder(c Crawler, in Ingestor, emb embed.Provider, src Sources, chunkCfg chunker.Config, batchSize int, log *slog.Logger) *Builder {
	return &Builder{
		crawler:  c,
		ingestor: in,
		embedder: emb,
		sources:  src,
		chunkCfg: chunkCfg,
		batch:    batchSize,
		log:      log,
	}
}

// Run performs one build. The returned report is never nil.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	report := newReport(uuid.NewString())
	log := b.log.With("build", report.ID)

	fail := func(phase string, err error) (*Report, error) {
		report.AddError(err.Error())
		report.SetStatus(StatusFailed, phase)
		log.Error("build failed", "phase", phase, "error", err)
		return report, err
	}

	var urls []string
	if len(b.sources.Seeds) > 0 {
		report.SetStatus(StatusCrawling, "crawling seeds")
		urls = b.crawler.Crawl(ctx, b.sources.Seeds, b.sources.MaxDepth, b.sources.MaxPages)
		report.Update(func(c *Counts) { c.Pages = len(urls) })
		if err := ctx.Err(); err != nil {
			return fail("crawling", err)
		}
	}

	report.SetStatus(StatusIngesting, "reading files and pages")
	docs, ir := b.ingestor.Ingest(ctx, b.sources.SourceFolder, urls)
	report.Update(func(c *Counts) {
		c.LocalDocs = ir.LocalDocs
		c.WebDocs = ir.WebDocs
		c.Failures = ir.Failures()
		c.Skipped = ir.Skipped
		c.Duplicates = ir.Duplicates
	})
	if ir.WebErr != nil {
		report.AddError(ir.WebErr.Error())
	}
	if err := ctx.Err(); err != nil {
		return fail("ingesting", err)
	}
	if len(docs) == 0 {
		report.AddError(ErrEmptyCorpus.Error())
		report.SetStatus(StatusEmpty, "no documents")
		log.Warn("nothing to index, keeping previous index", "folder", b.sources.SourceFolder, "pages", len(urls))
		return report, ErrEmptyCorpus
	}

	report.SetStatus(StatusChunking, "splitting into chunks")
	chunks, err := chunker.Split(docs, b.chunkCfg)
	if err != nil {
		return fail("chunking", err)
	}
	tokens := 0
	for _, c := range chunks {
		tokens += chunker.EstimateTokens(c.Text)
	}
	report.Update(func(c *Counts) {
		c.Chunks = len(chunks)
		c.EstTokens = tokens
	})

	report.SetStatus(StatusIndexing, "embedding and writing index")
	m, err := index.Build(ctx, b.sources.IndexDir, chunks, b.embedder, index.BuildOptions{BatchSize: b.batch, Logger: log})
	if err != nil {
		return fail("indexing", fmt.Errorf("build index: %w", err))
	}
	report.setManifest(m)

	report.SetStatus(StatusCompleted, "done")
	snap := report.Snapshot()
	log.Info("build completed",
		"pages", snap.Counts.Pages,
		"documents", snap.Counts.LocalDocs+snap.Counts.WebDocs,
		"chunks", snap.Counts.Chunks,
		"duration_ms", snap.DurationMs,
	)
	return report, nil
}

// Package app assembles components from configuration. Both the HTTP server
// and the corpusctl CLI build on it.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/assistant"
	"github.com/dgallion1/corpusqa/internal/chunker"
	"github.com/dgallion1/corpusqa/internal/config"
	"github.com/dgallion1/corpusqa/internal/crawler"
	"github.com/dgallion1/corpusqa/internal/embed"
	"github.com/dgallion1/corpusqa/internal/index"
	"github.com/dgallion1/corpusqa/internal/ingest"
	"github.com/dgallion1/corpusqa/internal/llm"
	"github.com/dgallion1/corpusqa/internal/parser"
	"github.com/dgallion1/corpusqa/internal/pipeline"
	"github.com/dgallion1/corpusqa/internal/retriever"
)

const userAgent = "corpusqa/1.0 (+knowledge-base builder)"

// Embedder returns the configured embedding provider.
func Embedder(cfg config.Config) (embed.Provider, error) {
	return embed.New(cfg.EmbedProvider, embed.Options{
		Model:   cfg.EmbedModel,
		BaseURL: cfg.EmbedBaseURL,
		APIKey:  cfg.HFToken,
	})
}

// LLM returns the configured chat model with retries, timed into stats.
func LLM(cfg config.Config, stats *llm.Stats, log *slog.Logger) (llm.Provider, error) {
	key := cfg.HFToken
	if cfg.LLMProvider == "anthropic" {
		key = cfg.AnthropicAPIKey
	}
	p, err := llm.New(cfg.LLMProvider, llm.Options{
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      key,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	return llm.Measure(llm.WithRetry(p, log), stats), nil
}

// Fetcher returns the page fetcher shared by crawling and ingestion.
func Fetcher(cfg config.Config, log *slog.Logger) *crawler.Fetcher {
	return crawler.NewFetcher(crawler.FetcherConfig{
		Timeout:      cfg.FetchTimeout,
		MaxBytes:     cfg.FetchMaxBytes,
		UserAgent:    userAgent,
		InsecureTLS:  cfg.FetchInsecureTLS,
		Rate:         cfg.CrawlRate,
		TargetDomain: cfg.TargetDomain,
	}, log)
}

// Builder wires a corpus build over fetcher.
func Builder(cfg config.Config, fetcher *crawler.Fetcher, emb embed.Provider, log *slog.Logger) *pipeline.Builder {
	parsers := parser.New(parser.Options{
		FallbackPdftotext: cfg.PDFFallbackPdftotext,
		OCR:               parser.OCRConfig{Enabled: cfg.OCREnabled, Lang: cfg.OCRLang},
	})
	in := ingest.New(parsers, fetcher, ingest.Options{
		TransientPatterns: cfg.TransientPatterns,
		Concurrency:       cfg.FetchConcurrency,
	}, log)

	return pipeline.NewBuilder(
		crawler.New(fetcher, log),
		in,
		emb,
		pipeline.Sources{
			Seeds:        cfg.Seeds,
			MaxDepth:     cfg.CrawlMaxDepth,
			MaxPages:     cfg.CrawlMaxPages,
			SourceFolder: cfg.SourceFolder,
			IndexDir:     cfg.IndexDir,
		},
		chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		cfg.EmbedBatchSize,
		log,
	)
}

// Assistant is the question-answering stack plus what it was built from.
type Assistant struct {
	*assistant.Assistant
	Manifest index.Manifest
	Stats    *llm.Stats
}

// NewAssistant opens the index in cfg.IndexDir and builds the answering
// stack over it. The index must exist and match the embedding model.
func NewAssistant(cfg config.Config, log *slog.Logger) (*Assistant, error) {
	emb, err := Embedder(cfg)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(cfg.IndexDir, emb.ModelName())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	ret, err := retriever.New(idx, emb, retriever.Options{MinChunkLength: cfg.MinChunkLength}, log)
	if err != nil {
		return nil, err
	}

	stats := llm.NewStats(time.Hour)
	model, err := LLM(cfg, stats, log)
	if err != nil {
		return nil, err
	}
	ans := answer.New(model, answer.Options{
		SystemPrompt:    cfg.SystemPrompt,
		ErrorMessageMax: cfg.ErrorMessageMax,
	}, log)

	log.Info("assistant ready",
		"chunks", idx.Len(),
		"build_id", idx.Manifest().BuildID,
		"embed_model", emb.ModelName(),
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
	)
	return &Assistant{
		Assistant: assistant.New(ret, ans, assistant.Options{K: cfg.RetrievalK, ErrorMessageMax: cfg.ErrorMessageMax}, log),
		Manifest:  idx.Manifest(),
		Stats:     stats,
	}, nil
}

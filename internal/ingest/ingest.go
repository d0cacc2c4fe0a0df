// Package ingest turns local files and crawled web pages into documents.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/corpusqa/internal/crawler"
	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/parser"
)

// ErrAllPagesFailed is recorded in the report when URLs were given but none
// produced a document.
var ErrAllPagesFailed = errors.New("every web page failed to ingest")

// DefaultTransientPatterns match editor lock files, temp files and dotfiles.
var DefaultTransientPatterns = []string{"~$*", ".~lock.*#", "*.tmp", ".*"}

// PageFetcher retrieves one web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*crawler.Page, error)
}

type Options struct {
	TransientPatterns []string
	Concurrency       int
}

// Report counts what happened during one ingestion run.
type Report struct {
	LocalDocs    int
	WebDocs      int
	FileFailures int
	PageFailures int
	Skipped      int
	Duplicates   int
	// WebErr is ErrAllPagesFailed when no URL yielded a document.
	WebErr error
}

// Failures is the total number of files and pages that could not be read.
func (r Report) Failures() int { return r.FileFailures + r.PageFailures }

type Ingestor struct {
	parsers *parser.Registry
	fetcher PageFetcher
	opts    Options
	log     *slog.Logger
}

func New(parsers *parser.Registry, fetcher PageFetcher, opts Options, log *slog.Logger) *Ingestor {
	if opts.TransientPatterns == nil {
		opts.TransientPatterns = DefaultTransientPatterns
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Ingestor{parsers: parsers, fetcher: fetcher, opts: opts, log: log}
}

// Ingest reads every supported file in localFolder (non-recursive, sorted by
// name) followed by every URL, in input order. Failures are logged and
// counted, never fatal. Documents with identical normalised text are kept
// once.
func (in *Ingestor) Ingest(ctx context.Context, localFolder string, urls []string) ([]document.Document, Report) {
	var report Report

	local := in.ingestFolder(ctx, localFolder, &report)
	web := in.ingestPages(ctx, urls, &report)

	docs := dedup(append(local, web...), &report)
	for _, d := range docs {
		switch d.Origin {
		case document.OriginLocalFile:
			report.LocalDocs++
		case document.OriginWebPage:
			report.WebDocs++
		}
	}

	in.log.Info("ingestion finished",
		"local_docs", report.LocalDocs,
		"web_docs", report.WebDocs,
		"failures", report.Failures(),
		"skipped", report.Skipped,
		"duplicates", report.Duplicates,
	)
	return docs, report
}

func (in *Ingestor) ingestFolder(ctx context.Context, folder string, report *Report) []document.Document {
	if folder == "" {
		return nil
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			in.log.Warn("source folder not found", "folder", folder)
		} else {
			in.log.Warn("read source folder", "folder", folder, "error", err)
		}
		return nil
	}

	var docs []document.Document
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if in.isTransient(name) {
			in.log.Debug("skipping transient file", "file", name)
			report.Skipped++
			continue
		}
		if !parser.IsSupportedExtension(name) {
			in.log.Debug("skipping unsupported file", "file", name)
			report.Skipped++
			continue
		}

		full := filepath.Join(folder, name)
		log := in.log.With("file", full)
		doc, err := in.readFile(full)
		if err != nil {
			log.Error("ingest file failed", "error", err)
			report.FileFailures++
			continue
		}
		if doc == nil {
			log.Warn("no text extracted")
			report.Skipped++
			continue
		}
		log.Debug("file ingested", "runes", utf8.RuneCountInString(doc.Text))
		docs = append(docs, *doc)
	}
	return docs
}

// readFile returns nil when the file holds no text.
func (in *Ingestor) readFile(path string) (*document.Document, error) {
	p, err := in.parsers.ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := p.Parse(f, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return nil, nil
	}
	return &document.Document{
		Text:   parsed.Text,
		Source: path,
		Origin: document.OriginLocalFile,
		Title:  parsed.Title,
	}, nil
}

func (in *Ingestor) isTransient(name string) bool {
	for _, pattern := range in.opts.TransientPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (in *Ingestor) ingestPages(ctx context.Context, urls []string, report *Report) []document.Document {
	if len(urls) == 0 {
		return nil
	}
	if in.fetcher == nil {
		in.log.Warn("no page fetcher configured, skipping web pages", "urls", len(urls))
		report.PageFailures += len(urls)
		report.WebErr = ErrAllPagesFailed
		return nil
	}

	results := make([]*document.Document, len(urls))
	failed := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			log := in.log.With("url", u)
			doc, err := in.readPage(gctx, u)
			if err != nil {
				log.Warn("ingest page failed", "error", err)
				failed[i] = true
				return nil
			}
			if doc == nil {
				log.Warn("no text extracted")
				failed[i] = true
				return nil
			}
			log.Debug("page ingested", "runes", utf8.RuneCountInString(doc.Text))
			results[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	var docs []document.Document
	for i, d := range results {
		if failed[i] {
			report.PageFailures++
		}
		if d != nil {
			docs = append(docs, *d)
		}
	}
	if len(docs) == 0 {
		report.WebErr = ErrAllPagesFailed
		in.log.Error("web ingestion failed", "urls", len(urls), "error", ErrAllPagesFailed)
	}
	return docs
}

func (in *Ingestor) readPage(ctx context.Context, rawURL string) (*document.Document, error) {
	page, err := in.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var parsed *parser.Parsed
	if name, ok := documentName(rawURL, page.ContentType); ok {
		p, err := in.parsers.ForFile(name)
		if err != nil {
			return nil, err
		}
		parsed, err = p.Parse(bytes.NewReader(page.Body), name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	} else {
		parsed, err = parser.PageText(page.Body)
		if err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(parsed.Text) == "" {
		return nil, nil
	}
	return &document.Document{
		Text:   parsed.Text,
		Source: rawURL,
		Origin: document.OriginWebPage,
		Title:  parsed.Title,
	}, nil
}

// documentName reports the file name to parse a non-HTML response with, for
// seeds that point straight at a PDF or DOCX.
func documentName(rawURL, contentType string) (string, bool) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/pdf":
			return "page.pdf", true
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return "page.docx", true
		case "text/html", "application/xhtml+xml":
			return "", false
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	name := path.Base(u.Path)
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf", ".docx", ".txt", ".md":
		return name, true
	}
	return "", false
}

// dedup drops documents whose normalised text was already seen.
func dedup(docs []document.Document, report *Report) []document.Document {
	seen := make(map[string]string, len(docs))
	out := docs[:0]
	for _, d := range docs {
		h := ContentHashHex(normalise(d.Text))
		if _, dup := seen[h]; dup {
			report.Duplicates++
			continue
		}
		seen[h] = d.Source
		out = append(out, d)
	}
	return out
}

func normalise(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContentHashHex returns the hex-encoded SHA-256 of text.
func ContentHashHex(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}

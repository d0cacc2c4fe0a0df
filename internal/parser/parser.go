// Package parser extracts plain text from the file formats found in the corpus.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Parsed is the text extracted from one file or page.
type Parsed struct {
	Title string
	Text  string
}

// Parser converts raw document bytes into text.
type Parser interface {
	Parse(r io.Reader, filename string) (*Parsed, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tune the parsers that shell out to external tools.
type Options struct {
	FallbackPdftotext bool
	OCR               OCRConfig
}

// Registry hands out parsers configured with Options.
type Registry struct {
	opts Options
}

func New(opts Options) *Registry {
	return &Registry{opts: opts}
}

// ForFile returns the appropriate parser for a filename.
func (r *Registry) ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: r.opts.FallbackPdftotext, OCR: r.opts.OCR}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// baseTitle strips directory and extension from a filename.
func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// joinParagraphs joins non-blank paragraphs with a blank line.
func joinParagraphs(paras []string) string {
	var sb strings.Builder
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p)
	}
	return sb.String()
}

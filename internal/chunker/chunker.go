// Package chunker splits documents into overlapping, size-bounded chunks.
package chunker

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/dgallion1/corpusqa/internal/document"
)

// ErrInvalidConfig is returned when size and overlap cannot produce progress.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int // Maximum chunk length.
	ChunkOverlap int // Characters shared by consecutive chunks.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Split cuts every document into chunks no longer than ChunkSize. Cuts prefer
// a paragraph break, then a line break, then a sentence end, then a space;
// when none lies past the overlap the text is cut hard at ChunkSize.
// Consecutive chunks of a document share exactly ChunkOverlap characters.
// Seq restarts at 0 for each document; documents with no text yield nothing.
func Split(docs []document.Document, cfg Config) ([]document.Chunk, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var chunks []document.Chunk
	for _, d := range docs {
		for seq, text := range splitText(d.Text, cfg.ChunkSize, cfg.ChunkOverlap) {
			chunks = append(chunks, document.Chunk{
				Text:   text,
				Source: d.Source,
				Origin: d.Origin,
				Seq:    seq,
			})
		}
	}
	return chunks, nil
}

// Reassemble rebuilds a document's text from its chunks in Seq order.
func Reassemble(chunks []document.Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}

func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	start := 0
	for len(runes)-start > size {
		window := runes[start : start+size]
		cut := findCut(window, overlap)
		parts = append(parts, string(window[:cut]))
		start += cut - overlap
	}
	return append(parts, string(runes[start:]))
}

// findCut returns the end of the chunk inside window. The result is always
// greater than overlap so the next chunk starts further along.
func findCut(window []rune, overlap int) int {
	for _, sep := range []func([]rune, int) bool{paragraphBreak, lineBreak, sentenceEnd, space} {
		for i := len(window); i > overlap; i-- {
			if sep(window, i) {
				return i
			}
		}
	}
	return len(window)
}

// Each separator reports whether a chunk may end at position i, i.e. just
// after window[i-1].

func paragraphBreak(w []rune, i int) bool {
	return i >= 2 && w[i-1] == '\n' && w[i-2] == '\n'
}

func lineBreak(w []rune, i int) bool {
	return w[i-1] == '\n'
}

func sentenceEnd(w []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(w[i-1]) {
		return false
	}
	switch w[i-2] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func space(w []rune, i int) bool {
	return w[i-1] == ' '
}

package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TextParser handles UTF-8 plain text files. Runs of blank lines collapse
// into a single paragraph break.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("%s: not valid UTF-8", filename)
		}
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Parsed{
		Title: baseTitle(filename),
		Text:  joinParagraphs(paragraphs),
	}, nil
}

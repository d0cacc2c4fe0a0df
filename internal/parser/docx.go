package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Each paragraph, headings included,
// becomes one paragraph of text.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "corpusqa-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	out := &Parsed{Title: baseTitle(filename)}
	var paras []string
	titled := false
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			t := docxParagraphText(it)
			if t == "" {
				continue
			}
			if !titled && docxHeadingLevel(it) == 1 {
				out.Title = t
				titled = true
			}
			paras = append(paras, t)
		case *docx.Table:
			paras = append(paras, docxTableText(it)...)
		}
	}

	out.Text = joinParagraphs(paras)
	return out, nil
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if len(style) == len("heading1") && strings.HasPrefix(style, "heading") {
		if d := style[len(style)-1]; d >= '1' && d <= '6' {
			return int(d - '0')
		}
	}
	return 0
}

// docxTableText renders each table row as one line, cells separated by " | ".
func docxTableText(tbl *docx.Table) []string {
	var rows []string
	for _, row := range tbl.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, para := range cell.Paragraphs {
				if t := docxParagraphText(para); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if line := strings.TrimSpace(strings.Join(cells, " | ")); strings.Trim(line, "| ") != "" {
			rows = append(rows, line)
		}
	}
	return rows
}

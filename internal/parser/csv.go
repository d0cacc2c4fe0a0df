package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser renders each row as "header: value" pairs, one row per line.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	out := &Parsed{Title: baseTitle(filename)}
	if len(records) == 0 {
		return out, nil
	}

	// First row is headers.
	headers := records[0]

	// Group rows into blocks of 20 so the chunker can break between them.
	const batchSize = 20
	dataRows := records[1:]
	var blocks []string

	for i := 0; i < len(dataRows); i += batchSize {
		end := min(i+batchSize, len(dataRows))

		var text strings.Builder
		for _, row := range dataRows[i:end] {
			for j, cell := range row {
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			text.WriteString("\n")
		}
		blocks = append(blocks, text.String())
	}

	out.Text = joinParagraphs(blocks)
	return out, nil
}

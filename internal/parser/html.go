package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTMLParser handles HTML files and fetched web pages.
type HTMLParser struct{}

// pageNoise are elements that never carry page content.
var pageNoise = []string{
	"script", "style", "noscript", "nav", "header", "footer",
	"aside", "form", "iframe", "button", "svg",
}

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	parsed, err := PageText(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Title == "" {
		parsed.Title = baseTitle(filename)
	}
	return parsed, nil
}

// PageText converts an HTML page into readable text. Links keep their
// anchor text only, and navigation chrome is dropped.
func PageText(raw []byte) (*Parsed, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	sel := doc.Find("main").First()
	if sel.Length() == 0 {
		sel = doc.Find("article").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	text := strings.TrimSpace(newConverter().Convert(sel))
	text = excessiveLinesRe.ReplaceAllString(text, "\n\n")

	return &Parsed{Title: title, Text: text}, nil
}

func newConverter() *md.Converter {
	conv := md.NewConverter("", true, nil)
	conv.Remove(pageNoise...)
	conv.AddRules(
		md.Rule{
			Filter: []string{"a"},
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String(strings.TrimSpace(content))
			},
		},
		md.Rule{
			Filter: []string{"img"},
			Replacement: func(_ string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String("")
			},
		},
	)
	return conv
}

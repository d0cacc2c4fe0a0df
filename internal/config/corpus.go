package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Corpus is the on-disk manifest describing what goes into the knowledge base.
//
//	target_domain = "sdamp.ru"
//	local_folder  = "data1"
//	seeds = ["https://sdamp.ru/", "https://sdamp.ru/sveden/document/"]
type Corpus struct {
	TargetDomain string   `toml:"target_domain"`
	LocalFolder  string   `toml:"local_folder"`
	Seeds        []string `toml:"seeds"`
	SystemPrompt string   `toml:"system_prompt"`

	Crawl struct {
		MaxDepth int `toml:"max_depth"`
		MaxPages int `toml:"max_pages"`
	} `toml:"crawl"`
}

// LoadCorpus reads and decodes a corpus manifest.
func LoadCorpus(path string) (Corpus, error) {
	var c Corpus
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read corpus file: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode corpus file %s: %w", path, err)
	}
	return c, nil
}

// applyCorpus overlays manifest values. Explicit environment settings for the
// domain and folder win over the manifest.
func (c *Config) applyCorpus(corpus Corpus) {
	if c.TargetDomain == "" {
		c.TargetDomain = corpus.TargetDomain
	}
	if os.Getenv("SOURCE_FOLDER") == "" && corpus.LocalFolder != "" {
		c.SourceFolder = corpus.LocalFolder
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = strings.TrimSpace(corpus.SystemPrompt)
	}
	if os.Getenv("CRAWL_MAX_DEPTH") == "" && corpus.Crawl.MaxDepth > 0 {
		c.CrawlMaxDepth = corpus.Crawl.MaxDepth
	}
	if os.Getenv("CRAWL_MAX_PAGES") == "" && corpus.Crawl.MaxPages > 0 {
		c.CrawlMaxPages = corpus.Crawl.MaxPages
	}

	seeds := make([]string, 0, len(corpus.Seeds))
	for _, s := range corpus.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	c.Seeds = seeds
}

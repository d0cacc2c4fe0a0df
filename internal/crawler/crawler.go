// Package crawler implements a bounded breadth-first site crawl.
package crawler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LinkSource returns the outbound links of a page. Implementations must not
// fail: unreadable pages yield no links.
type LinkSource interface {
	Links(ctx context.Context, url string) []string
}

// Crawler walks a site breadth-first from a set of seeds.
type Crawler struct {
	links LinkSource
	log   *slog.Logger
}

func New(links LinkSource, log *slog.Logger) *Crawler {
	return &Crawler{links: links, log: log}
}

type frontierEntry struct {
	url   string
	depth int
}

// Crawl returns visited URLs in discovery order. Seeds start at depth 1 and
// count toward maxPages; links are only expanded from pages with
// depth < maxDepth. A URL reachable at several depths keeps the depth of
// whichever path enqueued it first. Cancelling ctx returns what was gathered.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, maxDepth, maxPages int) []string {
	if maxPages <= 0 {
		return nil
	}

	var queue []frontierEntry
	for _, s := range seeds {
		if s = strings.TrimSpace(s); s != "" {
			queue = append(queue, frontierEntry{url: s, depth: 1})
		}
	}

	c.log.Info("starting crawl", "seeds", len(queue), "max_depth", maxDepth, "max_pages", maxPages)

	visited := newVisitedSet()
	var result []string

	for len(queue) > 0 && visited.len() < maxPages {
		if ctx.Err() != nil {
			c.log.Warn("crawl cancelled", "visited", visited.len(), "error", ctx.Err())
			break
		}

		entry := queue[0]
		queue = queue[1:]

		if !visited.add(entry.url) {
			continue
		}
		result = append(result, entry.url)
		c.log.Debug("page added", "url", entry.url, "depth", entry.depth)

		if entry.depth >= maxDepth {
			continue
		}
		for _, link := range c.links.Links(ctx, entry.url) {
			if !visited.has(link) {
				queue = append(queue, frontierEntry{url: link, depth: entry.depth + 1})
			}
		}
	}

	c.log.Info("crawl finished", "pages", len(result), "pending", len(queue))
	return result
}

// visitedSet is safe for concurrent use; add is an atomic test-and-set.
type visitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{urls: make(map[string]struct{})}
}

// add marks url visited and reports whether it was new.
func (v *visitedSet) add(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[url]; ok {
		return false
	}
	v.urls[url] = struct{}{}
	return true
}

func (v *visitedSet) has(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.urls[url]
	return ok
}

func (v *visitedSet) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}

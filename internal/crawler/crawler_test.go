package crawler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// graphLinks serves links from a fixed adjacency map and records calls.
type graphLinks struct {
	mu    sync.Mutex
	graph map[string][]string
	calls []string
}

func (g *graphLinks) Links(_ context.Context, url string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, url)
	return g.graph[url]
}

func TestCrawl_SeedWithInternalLinks(t *testing.T) {
	// ExtractLinks already drops the external link; the fake mirrors that.
	links := &graphLinks{graph: map[string][]string{
		"https://example.org/": {
			"https://example.org/a",
			"https://example.org/b",
			"https://example.org/c",
		},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"https://example.org/"}, 2, 5)

	assert.Equal(t, []string{
		"https://example.org/",
		"https://example.org/a",
		"https://example.org/b",
		"https://example.org/c",
	}, got)
}

func TestCrawl_MaxDepthOneDoesNotExpand(t *testing.T) {
	links := &graphLinks{graph: map[string][]string{
		"https://example.org/": {"https://example.org/a"},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"https://example.org/", "https://example.org/x"}, 1, 5)

	assert.Equal(t, []string{"https://example.org/", "https://example.org/x"}, got)
	assert.Empty(t, links.calls, "no page at max depth should be fetched for links")
}

func TestCrawl_RespectsMaxPages(t *testing.T) {
	graph := map[string][]string{}
	var children []string
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		children = append(children, "https://example.org/"+s)
	}
	graph["https://example.org/"] = children
	c := New(&graphLinks{graph: graph}, discardLogger())

	got := c.Crawl(context.Background(), []string{"https://example.org/"}, 3, 4)

	require.Len(t, got, 4)
	assert.Equal(t, "https://example.org/", got[0], "seed counts toward max pages")
}

func TestCrawl_NoDuplicatesAcrossCycles(t *testing.T) {
	links := &graphLinks{graph: map[string][]string{
		"https://example.org/":  {"https://example.org/a", "https://example.org/b"},
		"https://example.org/a": {"https://example.org/", "https://example.org/b"},
		"https://example.org/b": {"https://example.org/a", "https://example.org/c"},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"https://example.org/", "https://example.org/"}, 5, 100)

	seen := map[string]bool{}
	for _, u := range got {
		assert.False(t, seen[u], "duplicate url %s", u)
		seen[u] = true
	}
	assert.Len(t, got, 4)
}

func TestCrawl_ReachableWithinMaxDepth(t *testing.T) {
	// Chain: seed -> 1 -> 2 -> 3 -> 4
	links := &graphLinks{graph: map[string][]string{
		"s": {"1"},
		"1": {"2"},
		"2": {"3"},
		"3": {"4"},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"s"}, 3, 100)

	assert.Equal(t, []string{"s", "1", "2"}, got)
}

func TestCrawl_FirstEnqueuedDepthWins(t *testing.T) {
	// Seed "x" sits in the frontier at depth 1 before "s1" adds a depth-2
	// copy, so the depth-1 entry is the one visited and it is expanded.
	links := &graphLinks{graph: map[string][]string{
		"s1": {"x"},
		"x":  {"y"},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"s1", "x"}, 2, 100)

	assert.Equal(t, []string{"s1", "x", "y"}, got)
}

func TestCrawl_TwoPathsVisitOnceAtFirstDepth(t *testing.T) {
	// "c" is enqueued at depth 2 by the seed and again at depth 3 by "a".
	// It is visited once, at depth 2, so its link "d" is still followed.
	links := &graphLinks{graph: map[string][]string{
		"s": {"a", "c"},
		"a": {"c"},
		"c": {"d"},
		"d": {"e"},
	}}
	c := New(links, discardLogger())

	got := c.Crawl(context.Background(), []string{"s"}, 3, 100)

	assert.Equal(t, []string{"s", "a", "c", "d"}, got)
	assert.Equal(t, []string{"s", "a", "c"}, links.calls, "c expanded once, d at max depth not expanded")
}

func TestCrawl_EmptySeedsAndBlankEntries(t *testing.T) {
	c := New(&graphLinks{}, discardLogger())

	assert.Empty(t, c.Crawl(context.Background(), nil, 2, 10))
	assert.Equal(t, []string{"https://example.org/"},
		c.Crawl(context.Background(), []string{"  ", " https://example.org/ "}, 1, 10))
}

func TestCrawl_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&graphLinks{}, discardLogger())

	assert.Empty(t, c.Crawl(ctx, []string{"https://example.org/"}, 2, 10))
}

func TestVisitedSet_ConcurrentAddIsTestAndSet(t *testing.T) {
	v := newVisitedSet()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.add("https://example.org/") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, v.len())
}

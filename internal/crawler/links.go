package crawler

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// deniedSuffixes are link targets the crawler never follows: documents and
// images are either listed as seeds or not useful as pages.
var deniedSuffixes = []string{".pdf", ".docx", ".doc", ".jpg", ".jpeg", ".png", ".gif"}

// ExtractLinks parses HTML from r and returns the absolute http(s) links that
// contain domain, excluding denied file types and bare "#" anchors.
// Fragments are dropped. The result is deduplicated and sorted.
// An empty domain restricts links to base's host.
func ExtractLinks(base *url.URL, r io.Reader, domain string) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if domain == "" {
		domain = base.Hostname()
	}

	if b := findBaseHref(doc); b != "" {
		if ref, err := base.Parse(b); err == nil {
			base = ref
		}
	}

	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attr(n, "href"); ok {
				if link, keep := resolveLink(base, href, domain); keep {
					seen[link] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links, nil
}

func resolveLink(base *url.URL, href, domain string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasSuffix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""

	path := strings.ToLower(u.Path)
	for _, suffix := range deniedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return "", false
		}
	}

	s := u.String()
	if !strings.Contains(s, domain) {
		return "", false
	}
	return s, true
}

func findBaseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		if href, ok := attr(n, "href"); ok {
			return strings.TrimSpace(href)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := findBaseHref(c); h != "" {
			return h
		}
	}
	return ""
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

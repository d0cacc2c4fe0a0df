package crawler

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the crawler to remote sites.
const DefaultUserAgent = "corpusqa-crawler/1.0 (+https://github.com/dgallion1/corpusqa)"

// FetcherConfig controls HTTP behaviour of the Fetcher.
type FetcherConfig struct {
	Timeout      time.Duration
	MaxBytes     int64
	UserAgent    string
	InsecureTLS  bool    // Skip certificate verification (sites with broken chains)
	Rate         float64 // Requests per second; <= 0 means unlimited
	TargetDomain string  // Substring a link must contain to be followed
}

// Page is a fetched HTTP response body.
type Page struct {
	URL         string // Final URL after redirects
	Body        []byte
	ContentType string
	StatusCode  int
}

// Fetcher retrieves single pages and extracts same-domain links from them.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     FetcherConfig
	log     *slog.Logger
}

func NewFetcher(cfg FetcherConfig, log *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureTLS}, //nolint:gosec // opt-in via FETCH_INSECURE_TLS
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log,
	}
}

// Fetch performs a bounded GET. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("content too large (exceeds %d bytes)", f.cfg.MaxBytes)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

// Links fetches rawURL and returns its same-domain outbound links, sorted.
// Failures are logged and produce an empty result; they never stop a crawl.
func (f *Fetcher) Links(ctx context.Context, rawURL string) []string {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		f.log.Warn("could not read links", "url", rawURL, "error", err)
		return nil
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		f.log.Warn("bad page url", "url", page.URL, "error", err)
		return nil
	}

	links, err := ExtractLinks(base, bytes.NewReader(page.Body), f.cfg.TargetDomain)
	if err != nil {
		f.log.Warn("could not parse links", "url", rawURL, "error", err)
		return nil
	}
	return links
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

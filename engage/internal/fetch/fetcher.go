// Package fetch retrieves target pages over plain HTTP with a realistic
// browser request signature. One GET per call, no retry: retry policy
// belongs to the caller's fallback chain, not here.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Result is the outcome of a page fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	FinalURL    string // after redirects; relative form actions resolve against this
	ContentType string
}

// Fetcher performs HTTP GETs with browser-like headers.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	validate func(string) error
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client. The engine shares one client (with
// a cookie jar) between fetching and static submission so cookies issued
// with the page accompany the replayed form request.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithMaxBytes caps the response body read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithValidator sets the URL validation function run before each request.
func WithValidator(fn func(string) error) Option {
	return func(f *Fetcher) { f.validate = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		maxBytes: 10 << 20,
		validate: func(string) error { return nil },
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// UserAgent returns the configured User-Agent string.
func (f *Fetcher) UserAgent() string { return f.ua }

// Fetch GETs a URL and returns the body, final URL, and status. Non-2xx
// responses return the status alongside an error so the caller can map
// the failure without re-probing.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	if err := f.validate(pageURL); err != nil {
		return nil, fmt.Errorf("fetch: blocked URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	SetBrowserHeaders(req.Header, f.ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode, FinalURL: resp.Request.URL.String()},
			fmt.Errorf("fetch: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	res := &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}

	f.logger.Debug("fetch: fetched",
		"url", pageURL, "status", resp.StatusCode, "size", len(body))

	return res, nil
}

// FetchBytes GETs an auxiliary resource (captcha images) with the same
// signature and cap, returning only the raw bytes.
func (f *Fetcher) FetchBytes(ctx context.Context, resourceURL string) ([]byte, error) {
	res, err := f.Fetch(ctx, resourceURL)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// SetBrowserHeaders applies the browser-like request signature shared by
// the fetcher and the static submission backend.
func SetBrowserHeaders(h http.Header, ua string) {
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Upgrade-Insecure-Requests", "1")
}

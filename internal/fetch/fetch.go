// Package fetch downloads web pages and reduces them to readable text.
// It backs the web_fetch tool that agents use for research tasks.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hollis/envoy-ai-agent/internal/httpkit"
)

const (
	// DefaultTimeout bounds the whole page download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the response body read (5 MB).
	DefaultMaxBytes int64 = 5 * 1024 * 1024

	// DefaultMaxChars caps the extracted text length.
	DefaultMaxChars = 50000
)

// Page is the outcome of fetching one URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Status      int    `json:"status"`
}

// Fetcher downloads pages over the shared HTTP stack.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Fetcher with default limits.
func New() *Fetcher {
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout)),
		maxBytes: DefaultMaxBytes,
	}
}

// Fetch downloads rawURL and returns its readable text. maxChars limits
// the extracted text; 0 means DefaultMaxChars. Schemeless URLs get https.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("web_fetch: url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: read response: %w", err)
	}

	page := &Page{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}

	ct := strings.ToLower(page.ContentType)
	switch {
	case strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml"):
		page.Title, page.Text = extractReadable(string(body))
	case utf8.Valid(body):
		page.Text = string(body)
	default:
		page.Text = fmt.Sprintf("Binary content (%s), %d bytes", page.ContentType, len(body))
		return page, nil
	}

	if text, cut := clipRunes(page.Text, maxChars); cut {
		page.Text = text
		page.Truncated = true
	}
	return page, nil
}

// clipRunes cuts s to at most maxChars runes without splitting a
// multi-byte character. Returns the (possibly shortened) string and
// whether anything was removed.
func clipRunes(s string, maxChars int) (string, bool) {
	if len(s) <= maxChars {
		return s, false
	}
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i], true
		}
		count++
	}
	return s, false
}

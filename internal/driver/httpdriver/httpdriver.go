// Package httpdriver implements the page-driver capability over plain
// HTTP: a page handle fetches its document on refresh and answers field,
// script, and text probes from the parsed DOM.
//
// This is the default real-mode driver. It treats "rendered" as
// server-rendered markup; a headless-browser driver can replace it behind
// the same interface without touching the pipeline.
package httpdriver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tickwatch/tickwatch"
)

const maxDocumentSize = 2 << 20 // 2MB

// connection pooling limits to prevent resource exhaustion when many
// tickers poll the same host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// maxTextNodes caps the free-text scan surface on pathological pages.
const maxTextNodes = 2000

// Driver opens HTTP-backed page handles. One driver is shared by all
// monitors; each handle owns its own document state.
type Driver struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a [Driver] with the given per-fetch timeout. The underlying
// client pools connections across handles.
func New(timeout time.Duration) *Driver {
	return &Driver{
		timeout: timeout,
		client: &http.Client{
			// per-fetch timeouts are applied via context, not globally
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Open validates the address and performs the initial fetch. A page that
// cannot be fetched fails acquisition rather than producing a handle that
// would never yield data.
func (d *Driver) Open(ctx context.Context, rawURL string) (tickwatch.PageHandle, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid resource address: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("resource address must be http or https, got %q", rawURL)
	}

	p := &Page{driver: d, url: rawURL}
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases idle connections held by the driver's pool. Handles
// remain usable; new connections are established as needed.
func (d *Driver) Close() {
	if t, ok := d.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Page is one ticker's live document. Refresh replaces the parsed DOM;
// the read methods answer from the last refreshed state. The mutex keeps
// Refresh and reads coherent, though the owning monitor loop is strictly
// sequential.
type Page struct {
	driver *Driver
	url    string

	mu  sync.Mutex
	doc *goquery.Document
}

// Refresh fetches and parses the document.
func (p *Page) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.driver.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.driver.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// ReadField returns the text of the first element matching the selector.
// For void elements such as meta tags the content attribute is used.
func (p *Page) ReadField(_ context.Context, selector string) (string, bool) {
	doc := p.document()
	if doc == nil {
		return "", false
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}

	text := strings.TrimSpace(sel.Text())
	if text == "" {
		if content, ok := sel.Attr("content"); ok {
			text = strings.TrimSpace(content)
		}
	}
	if text == "" {
		return "", false
	}
	return text, true
}

// EvaluateScript scans the document's script elements for an assignment
// to the probe and returns its raw right-hand side: a balanced JSON
// object, or the scalar up to the end of the statement.
func (p *Page) EvaluateScript(_ context.Context, probe string) (string, bool) {
	doc := p.document()
	if doc == nil {
		return "", false
	}

	var result string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := scriptValue(s.Text(), probe); ok {
			result = v
			return false
		}
		return true
	})

	return result, result != ""
}

// Text returns the page's text-bearing leaf nodes.
func (p *Page) Text(_ context.Context) []string {
	doc := p.document()
	if doc == nil {
		return nil
	}

	var nodes []string
	doc.Find("body *").Not("script, style").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			nodes = append(nodes, t)
		}
		return len(nodes) < maxTextNodes
	})
	return nodes
}

// Title returns the document title.
func (p *Page) Title(_ context.Context) string {
	doc := p.document()
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Close drops the parsed document. The driver's connection pool is shared
// and outlives individual handles.
func (p *Page) Close() error {
	p.mu.Lock()
	p.doc = nil
	p.mu.Unlock()
	return nil
}

func (p *Page) document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// scriptValue locates `probe = value` or `"probe": value` in script text
// and extracts the value: a balanced brace object, or a scalar running to
// the statement end.
func scriptValue(script, probe string) (string, bool) {
	idx := strings.Index(script, probe)
	if idx < 0 {
		return "", false
	}

	rest := script[idx+len(probe):]
	rest = strings.TrimLeft(rest, "\"' \t")
	if len(rest) == 0 || (rest[0] != '=' && rest[0] != ':') {
		return "", false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if rest == "" {
		return "", false
	}

	if rest[0] == '{' {
		return balancedBraces(rest)
	}

	end := strings.IndexAny(rest, ";\n")
	if end < 0 {
		end = len(rest)
	}
	value := strings.TrimSpace(strings.Trim(strings.TrimSpace(rest[:end]), `"'`))
	if value == "" {
		return "", false
	}
	return value, true
}

// balancedBraces returns the leading brace-balanced object literal.
// String awareness is deliberately minimal; quote data objects do not
// nest braces inside string values in practice.
func balancedBraces(s string) (string, bool) {
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

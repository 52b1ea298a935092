package tickwatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/tickwatch/tickwatch/internal/monitor"
	"github.com/tickwatch/tickwatch/quote"
)

// tickerPlaceholder is the token replaced by the ticker symbol when a
// resource address is resolved from a URL template.
const tickerPlaceholder = "{ticker}"

// pageSource is the real-extraction sampler source: it opens one page
// handle per ticker through the configured driver and samples it with the
// strategy chain. This is the only path by which real-mode samples are
// produced; synthetic generation lives in a separate source and can never
// leak in here.
type pageSource struct {
	driver    PageDriver
	extractor *Extractor
	resolve   func(ticker string) (string, error)
}

func (s *pageSource) Acquire(ctx context.Context, ticker string) (monitor.Sampler, error) {
	url, err := s.resolve(ticker)
	if err != nil {
		return nil, &AcquisitionError{Ticker: ticker, Err: err}
	}

	handle, err := s.driver.Open(ctx, url)
	if err != nil {
		return nil, &AcquisitionError{Ticker: ticker, URL: url, Err: err}
	}

	return &pageSampler{
		ticker:    ticker,
		handle:    handle,
		extractor: s.extractor,
	}, nil
}

// pageSampler pairs a page handle with the extractor for one ticker. The
// handle is owned by the monitor loop; Sample and Close are never called
// concurrently.
type pageSampler struct {
	ticker    string
	handle    PageHandle
	extractor *Extractor
}

func (s *pageSampler) Sample(ctx context.Context) (quote.Sample, error) {
	if err := s.handle.Refresh(ctx); err != nil {
		return quote.Sample{}, &ExtractionError{Ticker: s.ticker, Err: err}
	}
	return s.extractor.Extract(ctx, s.handle, s.ticker)
}

func (s *pageSampler) Close() error {
	return s.handle.Close()
}

// resolveURL builds the resolver used by the page source: explicit
// per-ticker addresses first, then the global template.
func resolveURL(template string, overrides map[string]string) func(string) (string, error) {
	return func(ticker string) (string, error) {
		if url, ok := overrides[ticker]; ok {
			return url, nil
		}
		if template == "" {
			return "", fmt.Errorf("no resource address configured for %s", ticker)
		}
		return strings.ReplaceAll(template, tickerPlaceholder, ticker), nil
	}
}

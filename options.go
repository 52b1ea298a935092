package tickwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tickwatch/tickwatch/quote"
)

// wConfig holds mutable state during Watcher construction.
type wConfig struct {
	driver         PageDriver
	extractor      *Extractor
	urlTemplate    string
	urlOverrides   map[string]string
	tickers        []string
	sampleInterval time.Duration
	batchWindow    time.Duration
	sweepInterval  time.Duration
	idleTimeout    time.Duration
	subscriberBuf  int
	port           int
	simulate       bool
	logger         *slog.Logger
}

// Option configures a [Watcher] during construction via [New].
//
// Option implements the functional options pattern; options return an
// error if validation fails. Built-in options: [WithDriver],
// [WithExtractor], [WithURLTemplate], [WithTickerURL], [WithTickers],
// [WithSampleInterval], [WithBatchWindow], [WithSweepInterval],
// [WithIdleTimeout], [WithPort], [WithSimulation], [WithLogger].
type Option func(*wConfig) error

// WithDriver sets the page driver that opens rendered sources. Required
// unless simulation mode is enabled.
func WithDriver(d PageDriver) Option {
	return func(cfg *wConfig) error {
		if d == nil {
			return errors.New("page driver cannot be nil")
		}
		cfg.driver = d
		return nil
	}
}

// WithExtractor replaces the default extraction strategy chain.
func WithExtractor(e *Extractor) Option {
	return func(cfg *wConfig) error {
		if e == nil {
			return errors.New("extractor cannot be nil")
		}
		cfg.extractor = e
		return nil
	}
}

// WithURLTemplate sets the template resolving a ticker to its canonical
// resource address. The template must contain the {ticker} placeholder.
//
// Example:
//
//	tickwatch.WithURLTemplate("https://quotes.example.com/q/{ticker}")
func WithURLTemplate(template string) Option {
	return func(cfg *wConfig) error {
		if !strings.Contains(template, tickerPlaceholder) {
			return fmt.Errorf("url template must contain %s, got %q", tickerPlaceholder, template)
		}
		cfg.urlTemplate = template
		return nil
	}
}

// WithTickerURL pins an explicit resource address for one ticker,
// overriding the template.
func WithTickerURL(ticker, url string) Option {
	return func(cfg *wConfig) error {
		t := quote.NormalizeTicker(ticker)
		if t == "" {
			return errors.New("ticker cannot be empty")
		}
		if url == "" {
			return fmt.Errorf("url for %s cannot be empty", t)
		}
		if cfg.urlOverrides == nil {
			cfg.urlOverrides = make(map[string]string)
		}
		cfg.urlOverrides[t] = url
		return nil
	}
}

// WithTickers queues tickers to be added when the watcher starts. A
// ticker whose page cannot be acquired at startup is logged and skipped;
// it does not fail Start.
func WithTickers(tickers ...string) Option {
	return func(cfg *wConfig) error {
		for _, t := range tickers {
			if quote.NormalizeTicker(t) == "" {
				return errors.New("ticker cannot be empty")
			}
		}
		cfg.tickers = append(cfg.tickers, tickers...)
		return nil
	}
}

// WithSampleInterval sets the per-ticker sampling cadence. Defaults to
// 1 second. Returns an error if the duration is not positive.
func WithSampleInterval(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return fmt.Errorf("sample interval must be positive, got %s", d)
		}
		cfg.sampleInterval = d
		return nil
	}
}

// WithBatchWindow sets the debounce delay between the first unflushed
// sample and the batch flush. Defaults to 50 milliseconds.
func WithBatchWindow(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return fmt.Errorf("batch window must be positive, got %s", d)
		}
		cfg.batchWindow = d
		return nil
	}
}

// WithSweepInterval sets how often the broadcaster checks subscribers for
// idleness. Defaults to 30 seconds.
func WithSweepInterval(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got %s", d)
		}
		cfg.sweepInterval = d
		return nil
	}
}

// WithIdleTimeout sets how long a subscriber may go without a successful
// delivery or keep-alive before the sweep evicts it. Defaults to
// 60 seconds.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return fmt.Errorf("idle timeout must be positive, got %s", d)
		}
		cfg.idleTimeout = d
		return nil
	}
}

// WithSubscriberBuffer sets the per-subscriber delivery channel depth.
// A delivery finding the buffer full counts as a failure and evicts the
// subscriber. Defaults to 16.
func WithSubscriberBuffer(n int) Option {
	return func(cfg *wConfig) error {
		if n < 1 {
			return fmt.Errorf("subscriber buffer must be at least 1, got %d", n)
		}
		cfg.subscriberBuf = n
		return nil
	}
}

// WithPort enables the HTTP transport (REST, SSE, WebSocket, /metrics) on
// the given port. Without this option the watcher runs SDK-only and no
// listener is opened.
func WithPort(port int) Option {
	return func(cfg *wConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithSimulation switches the watcher to synthetic random-walk samples
// instead of real extraction. Simulation is a separate sampler source;
// it is never mixed into the real path and exists for demos and tests
// when no real source is reachable.
func WithSimulation() Option {
	return func(cfg *wConfig) error {
		cfg.simulate = true
		return nil
	}
}

// WithLogger sets the structured logger used across the pipeline.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

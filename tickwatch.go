package tickwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tickwatch/tickwatch/internal/batch"
	"github.com/tickwatch/tickwatch/internal/broadcast"
	"github.com/tickwatch/tickwatch/internal/monitor"
	"github.com/tickwatch/tickwatch/internal/server"
	"github.com/tickwatch/tickwatch/quote"
)

const (
	defaultSampleInterval   = 1 * time.Second
	defaultBatchWindow      = 50 * time.Millisecond
	defaultSweepInterval    = 30 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultSubscriberBuffer = 16
)

// Watcher is the extraction-and-broadcast pipeline: it owns the monitor
// registry, the debounce batcher, and the subscriber broadcaster, and
// wires changed samples from per-ticker monitors through to every
// subscriber.
//
// The typical lifecycle is:
//
//	w, err := tickwatch.New(
//	    tickwatch.WithDriver(httpdriver.New(10 * time.Second)),
//	    tickwatch.WithURLTemplate("https://quotes.example.com/q/{ticker}"),
//	    tickwatch.WithTickers("BTCUSD"),
//	)
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
//
// Boundary operations (AddTicker, RemoveTicker, ListTickers, Subscribe,
// Stats) are valid once Start has been called and are safe for concurrent
// use. Nothing is persisted: the ticker set is rebuilt from AddTicker
// calls on every restart.
type Watcher struct {
	driver         PageDriver
	extractor      *Extractor
	urlTemplate    string
	urlOverrides   map[string]string
	tickers        []string
	sampleInterval time.Duration
	batchWindow    time.Duration
	port           int
	simulate       bool
	logger         *slog.Logger

	registry *monitor.Registry
	batcher  *batch.Batcher
	caster   *broadcast.Broadcaster

	started atomic.Bool
}

// New creates a [Watcher] from the given options.
//
// A page driver is required unless [WithSimulation] is enabled. Other
// options have defaults: 1 s sampling, 50 ms batch window, 30 s liveness
// sweep, 60 s idle timeout, no HTTP transport.
func New(opts ...Option) (*Watcher, error) {
	cfg := &wConfig{
		sampleInterval: defaultSampleInterval,
		batchWindow:    defaultBatchWindow,
		sweepInterval:  defaultSweepInterval,
		idleTimeout:    defaultIdleTimeout,
		subscriberBuf:  defaultSubscriberBuffer,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.driver == nil && !cfg.simulate {
		return nil, errors.New("a page driver is required unless simulation mode is enabled")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	extractor := cfg.extractor
	if extractor == nil {
		var err error
		extractor, err = NewExtractor(WithExtractorLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	overrides := make(map[string]string, len(cfg.urlOverrides))
	for t, u := range cfg.urlOverrides {
		overrides[t] = u
	}

	w := &Watcher{
		driver:         cfg.driver,
		extractor:      extractor,
		urlTemplate:    cfg.urlTemplate,
		urlOverrides:   overrides,
		tickers:        dedupeTickers(cfg.tickers),
		sampleInterval: cfg.sampleInterval,
		batchWindow:    cfg.batchWindow,
		port:           cfg.port,
		simulate:       cfg.simulate,
		logger:         logger,
	}

	w.batcher = batch.New(cfg.batchWindow)
	w.caster = broadcast.New(cfg.subscriberBuf, cfg.sweepInterval, cfg.idleTimeout, logger)
	w.registry = monitor.NewRegistry(monitor.Config{
		Source:   w.source(),
		Interval: cfg.sampleInterval,
		Forward:  w.batcher.Push,
		Logger:   logger,
	})

	return w, nil
}

// source selects the sampler source for the configured mode. The real
// and synthetic paths never share code below this point.
func (w *Watcher) source() monitor.Source {
	if w.simulate {
		return syntheticSource{}
	}
	return &pageSource{
		driver:    w.driver,
		extractor: w.extractor,
		resolve:   resolveURL(w.urlTemplate, w.urlOverrides),
	}
}

// Start runs the pipeline until the context is cancelled.
//
// Start launches the batcher, the broadcaster sweep, and one monitor per
// configured initial ticker, then serves the HTTP transport if a port was
// configured. An initial ticker whose page cannot be acquired is logged
// and skipped. Returns nil on graceful shutdown; returns an error only
// if the HTTP listener fails to bind.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already started")
	}

	mode := "real"
	if w.simulate {
		mode = "simulation"
	}
	w.logger.Info("tickwatch starting",
		"mode", mode,
		"initial_tickers", len(w.tickers),
		"sample_interval", w.sampleInterval.String(),
		"batch_window", w.batchWindow.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	w.registry.Start(ctx)
	w.batcher.Start(ctx)
	w.caster.Start(ctx)

	// pump flushed batches into the fan-out; exits when the batcher
	// closes its channel on shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for b := range w.batcher.Batches() {
			w.caster.Publish(b)
		}
	}()

	for _, t := range w.tickers {
		if err := w.AddTicker(ctx, t); err != nil {
			w.logger.Warn("initial ticker rejected", "ticker", t, "error", err)
		}
	}

	if w.port > 0 {
		srv := server.New(w, w.port, w.logger)
		if err := srv.Start(ctx); err != nil {
			w.registry.Shutdown()
			wg.Wait()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		w.logger.Info("transport listening", "port", w.port)
	}

	<-ctx.Done()
	w.registry.Shutdown()
	wg.Wait()
	w.logger.Info("tickwatch stopped")
	return nil
}

// AddTicker registers a ticker and starts monitoring it. Adding an
// already-active ticker is an accepted no-op. Returns an
// [*AcquisitionError] if the ticker's page cannot be opened; the ticker
// is then absent from [Watcher.ListTickers].
func (w *Watcher) AddTicker(ctx context.Context, ticker string) error {
	if !w.started.Load() {
		return ErrNotStarted
	}
	return w.registry.Add(ctx, ticker)
}

// RemoveTicker stops monitoring a ticker and releases its page handle.
// Removing an absent ticker is a no-op. When RemoveTicker returns the
// ticker is gone from [Watcher.ListTickers] and no further samples for it
// will be forwarded.
func (w *Watcher) RemoveTicker(ticker string) {
	w.registry.Remove(ticker)
}

// ListTickers returns a snapshot of active tickers in ascending
// lexicographic order.
func (w *Watcher) ListTickers() []string {
	return w.registry.List()
}

// Subscribe registers a batch subscriber and returns its id and delivery
// channel. The channel closes when the subscriber is unsubscribed,
// evicted for failed deliveries or idleness, or the watcher shuts down.
func (w *Watcher) Subscribe() (string, <-chan quote.Batch) {
	return w.caster.Subscribe()
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (w *Watcher) Unsubscribe(id string) {
	w.caster.Unsubscribe(id)
}

// Touch records a keep-alive for a subscriber, deferring idle eviction.
func (w *Watcher) Touch(id string) {
	w.caster.Touch(id)
}

// Stats returns a snapshot of the pipeline gauges.
func (w *Watcher) Stats() quote.Stats {
	return quote.Stats{
		ActiveTickers: w.registry.Count(),
		Subscribers:   w.caster.Count(),
		PendingBatch:  w.batcher.PendingSize(),
	}
}

// Port returns the configured HTTP transport port, or 0 when the watcher
// runs SDK-only.
func (w *Watcher) Port() int {
	return w.port
}

// SampleInterval returns the configured per-ticker sampling cadence.
func (w *Watcher) SampleInterval() time.Duration {
	return w.sampleInterval
}

// BatchWindow returns the configured debounce window.
func (w *Watcher) BatchWindow() time.Duration {
	return w.batchWindow
}

// InitialTickers returns a copy of the tickers queued for addition at
// start, in configured order, normalized and deduplicated.
func (w *Watcher) InitialTickers() []string {
	cp := make([]string, len(w.tickers))
	copy(cp, w.tickers)
	return cp
}

// Simulated reports whether the watcher generates synthetic samples
// instead of extracting real ones.
func (w *Watcher) Simulated() bool {
	return w.simulate
}

// dedupeTickers normalizes and deduplicates while preserving order.
func dedupeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := quote.NormalizeTicker(t)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Package monitor implements the per-ticker sampling lifecycle and the
// registry that owns the set of active monitors.
//
// Each monitor runs an independent loop; a slow or hung page handle for
// one ticker never delays another. The registry is the only point of
// shared mutable state, guarded by a mutex that is never held across
// page-handle acquisition or any other suspension point.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tickwatch/tickwatch/internal/metrics"
	"github.com/tickwatch/tickwatch/quote"
)

// ErrNotStarted is returned by Add when the registry has not been started.
var ErrNotStarted = errors.New("monitor registry not started")

// ErrStopped is returned by Add when the registry has shut down.
var ErrStopped = errors.New("monitor registry stopped")

// Config carries the collaborators shared by every monitor the registry
// creates.
type Config struct {
	// Source acquires a sampler per ticker.
	Source Source

	// Interval is the sampling cadence applied to every monitor.
	Interval time.Duration

	// Forward receives each changed sample. It must not block; the
	// batcher's intake is non-blocking by contract.
	Forward func(quote.Sample)

	// Logger receives lifecycle and failure events.
	Logger *slog.Logger
}

// Registry owns the set of active monitors, keyed by normalized ticker.
// At most one active monitor exists per ticker at any time, including
// under concurrent Add and Remove calls.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	monitors map[string]*Monitor
	pending  map[string]struct{}
	baseCtx  context.Context
	started  bool
	stopped  bool
}

// NewRegistry creates a registry. It must be started with [Registry.Start]
// before tickers can be added.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		monitors: make(map[string]*Monitor),
		pending:  make(map[string]struct{}),
	}
}

// Start records the base context that every monitor loop derives from.
// Cancelling it stops all loops; [Registry.Shutdown] additionally waits
// for them and releases their page handles.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.baseCtx = ctx
}

// Add registers a ticker and starts its monitor.
//
// Add is idempotent: if the ticker is already active, or another Add for
// the same ticker is in flight, it returns nil without side effects.
// Page-handle acquisition happens outside the registry lock; on failure
// the error propagates to the caller and the ticker is never registered.
func (r *Registry) Add(ctx context.Context, ticker string) error {
	ticker = quote.NormalizeTicker(ticker)
	if ticker == "" {
		return errors.New("ticker must not be empty")
	}

	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if _, active := r.monitors[ticker]; active {
		r.mu.Unlock()
		return nil
	}
	if _, inflight := r.pending[ticker]; inflight {
		// a concurrent Add owns this ticker's acquisition
		r.mu.Unlock()
		return nil
	}
	r.pending[ticker] = struct{}{}
	base := r.baseCtx
	r.mu.Unlock()

	sampler, err := r.cfg.Source.Acquire(ctx, ticker)

	r.mu.Lock()
	delete(r.pending, ticker)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if r.stopped || base.Err() != nil {
		r.mu.Unlock()
		_ = sampler.Close()
		return ErrStopped
	}

	m := newMonitor(ticker, r.cfg.Interval, sampler, r.cfg.Forward, r.cfg.Logger)
	mctx, cancel := context.WithCancel(base)
	m.cancel = cancel
	r.monitors[ticker] = m
	metrics.ActiveMonitors.Set(float64(len(r.monitors)))
	r.mu.Unlock()

	go m.run(mctx)

	r.cfg.Logger.Info("monitor started", "ticker", ticker)
	return nil
}

// Remove stops a ticker's monitor and drops it from the set. Removing an
// absent ticker is a no-op. The ticker is gone from List before the
// sampling loop is waited on, and Remove returns only after the loop has
// exited and the page handle is released.
func (r *Registry) Remove(ticker string) {
	ticker = quote.NormalizeTicker(ticker)

	r.mu.Lock()
	m, ok := r.monitors[ticker]
	if ok {
		delete(r.monitors, ticker)
		metrics.ActiveMonitors.Set(float64(len(r.monitors)))
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	m.stop()
	r.cfg.Logger.Info("monitor stopped", "ticker", ticker)
}

// List returns a snapshot of active tickers in ascending lexicographic
// order.
func (r *Registry) List() []string {
	r.mu.Lock()
	tickers := make([]string, 0, len(r.monitors))
	for t := range r.monitors {
		tickers = append(tickers, t)
	}
	r.mu.Unlock()

	sort.Strings(tickers)
	return tickers
}

// Count returns the number of active monitors.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// Failures returns the consecutive extraction failure count for a ticker,
// or false if the ticker is not active.
func (r *Registry) Failures(ticker string) (int64, bool) {
	r.mu.Lock()
	m, ok := r.monitors[quote.NormalizeTicker(ticker)]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}
	return m.Failures(), true
}

// Shutdown stops every monitor and waits for their loops to exit. The
// registry accepts no further Add calls afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	stopping := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		stopping = append(stopping, m)
	}
	r.monitors = make(map[string]*Monitor)
	metrics.ActiveMonitors.Set(0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range stopping {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.stop()
		}(m)
	}
	wg.Wait()
}

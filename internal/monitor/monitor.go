package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tickwatch/tickwatch/internal/metrics"
	"github.com/tickwatch/tickwatch/quote"
)

// Sampler produces one observation per call for a single ticker.
//
// Sample blocks until a value is resolved, the underlying page source
// fails for this cycle, or the context is cancelled. Close releases the
// page handle behind the sampler and must be called exactly once, after
// the last Sample call has returned.
type Sampler interface {
	Sample(ctx context.Context) (quote.Sample, error)
	Close() error
}

// Source acquires a Sampler for a ticker. Acquisition typically opens a
// page handle for the ticker's resource address; a failure here is fatal
// to the add call that triggered it, not to the system.
type Source interface {
	Acquire(ctx context.Context, ticker string) (Sampler, error)
}

// Monitor lifecycle states.
const (
	stateStarting int32 = iota
	stateSampling
	stateStopped
)

// Monitor owns one ticker's sampling loop.
//
// The loop runs in its own goroutine, samples on a fixed cadence, and
// forwards a sample downstream only when the (value, change%) pair differs
// from the last recorded one. Extraction failures are logged and counted;
// they never stop the loop. Only removal does.
//
// The last-pair record is touched exclusively by the loop goroutine, so
// it needs no lock.
type Monitor struct {
	ticker   string
	interval time.Duration
	sampler  Sampler
	forward  func(quote.Sample)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	last    quote.Sample
	hasLast bool

	state    atomic.Int32
	failures atomic.Int64 // consecutive extraction failures, observable via metrics
}

func newMonitor(ticker string, interval time.Duration, sampler Sampler, forward func(quote.Sample), logger *slog.Logger) *Monitor {
	return &Monitor{
		ticker:   ticker,
		interval: interval,
		sampler:  sampler,
		forward:  forward,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// run is the sampling loop. It samples immediately, then on every tick,
// until the context is cancelled. The sampler is closed on the way out.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer func() {
		m.state.Store(stateStopped)
		if err := m.sampler.Close(); err != nil {
			m.logger.Warn("failed to release page handle", "ticker", m.ticker, "error", err)
		}
	}()

	m.state.Store(stateSampling)
	m.observe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(ctx)
		}
	}
}

// observe performs one sampling cycle: extract, compare against the last
// recorded pair, forward on change.
func (m *Monitor) observe(ctx context.Context) {
	s, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// cancelled mid-extraction during removal or shutdown
			return
		}
		n := m.failures.Add(1)
		metrics.ExtractionFailures.WithLabelValues(m.ticker).Inc()
		m.logger.Debug("extraction failed",
			"ticker", m.ticker,
			"consecutive_failures", n,
			"error", err,
		)
		return
	}
	m.failures.Store(0)

	if m.hasLast && s.SamePair(m.last) {
		metrics.SamplesSuppressed.Inc()
		return
	}

	m.last = s
	m.hasLast = true
	metrics.SamplesForwarded.Inc()
	m.forward(s)
}

// stop cancels the loop and waits for it to exit. The in-flight extraction
// call, if any, observes the cancelled context and returns; the page
// handle is released before stop returns.
func (m *Monitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// Failures returns the number of consecutive extraction failures since
// the last successful sample.
func (m *Monitor) Failures() int64 {
	return m.failures.Load()
}

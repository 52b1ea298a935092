// Package batch implements the debounce batcher sitting between the
// monitors and the broadcaster.
//
// Many monitor loops push samples concurrently; a single consumer
// goroutine accumulates the latest sample per ticker and flushes the
// whole mapping a fixed delay after the first unflushed sample arrived.
// If nothing arrives, nothing is flushed: empty batches do not exist.
package batch

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tickwatch/tickwatch/internal/metrics"
	"github.com/tickwatch/tickwatch/quote"
)

const (
	// intakeBuffer bounds how many samples can sit between the monitor
	// loops and the consumer before pushes start dropping.
	intakeBuffer = 256

	// outBuffer decouples flushing from the broadcaster's publish path.
	outBuffer = 16
)

// Batcher deduplicates samples per ticker within a debounce window and
// emits them as ordered batches.
//
// Push is safe for concurrent use by any number of producers and never
// blocks. Batches are consumed from the channel returned by
// [Batcher.Batches], which is closed when the context passed to
// [Batcher.Start] is cancelled.
type Batcher struct {
	window time.Duration

	in  chan quote.Sample
	out chan quote.Batch

	pendingSize atomic.Int64
	startOnce   sync.Once
}

// New creates a batcher with the given debounce window.
func New(window time.Duration) *Batcher {
	return &Batcher{
		window: window,
		in:     make(chan quote.Sample, intakeBuffer),
		out:    make(chan quote.Batch, outBuffer),
	}
}

// Push hands a sample to the batcher. A later sample for the same ticker
// within one window overwrites the earlier one. Push never blocks: if the
// intake is full the sample is dropped and counted, so a stalled consumer
// cannot back-pressure a monitor loop.
func (b *Batcher) Push(s quote.Sample) {
	select {
	case b.in <- s:
	default:
		metrics.SamplesDropped.Inc()
	}
}

// Batches returns the channel of flushed batches. Each batch holds the
// latest sample per distinct ticker, sorted by ticker. The channel is
// closed on shutdown.
func (b *Batcher) Batches() <-chan quote.Batch {
	return b.out
}

// PendingSize returns the number of samples waiting in the current
// debounce window.
func (b *Batcher) PendingSize() int {
	return int(b.pendingSize.Load())
}

// Start launches the consumer goroutine. It runs until ctx is cancelled.
// Start is idempotent; subsequent calls are no-ops.
func (b *Batcher) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.consume(ctx)
	})
}

// consume drains the intake into a per-ticker mapping. The debounce timer
// is armed when the first sample of a window arrives and disarmed by the
// flush; samples landing while the timer runs do not extend the window.
func (b *Batcher) consume(ctx context.Context) {
	defer close(b.out)

	pending := make(map[string]quote.Sample)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}

		batch := make(quote.Batch, 0, len(pending))
		for _, s := range pending {
			batch = append(batch, s)
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].Ticker < batch[j].Ticker })

		clear(pending)
		b.pendingSize.Store(0)

		select {
		case b.out <- batch:
			metrics.BatchesPublished.Inc()
			metrics.BatchSize.Observe(float64(len(batch)))
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case s := <-b.in:
			pending[s.Ticker] = s
			b.pendingSize.Store(int64(len(pending)))
			if fire == nil {
				timer = time.NewTimer(b.window)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			flush()
		}
	}
}

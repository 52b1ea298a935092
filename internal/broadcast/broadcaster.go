// Package broadcast implements batch fan-out to a churning set of
// subscribers with per-subscriber liveness tracking.
//
// Delivery is attempted independently per subscriber: a full or abandoned
// subscriber is evicted without affecting delivery to the others, and
// publish never waits on a slow consumer. A background sweep evicts
// subscribers that have seen no successful delivery or keep-alive within
// the idle timeout, so abandoned connections the transport failed to
// report cannot grow the set without bound.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tickwatch/tickwatch/internal/metrics"
	"github.com/tickwatch/tickwatch/quote"
)

// Eviction reasons, used in logs and metrics labels.
const (
	reasonSlow = "delivery_failed"
	reasonIdle = "idle"
)

type subscriber struct {
	id           string
	ch           chan quote.Batch
	lastActivity atomic.Int64 // unix nanos of the last successful delivery or keep-alive
}

func (s *subscriber) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// Broadcaster owns the subscriber set and delivers flushed batches to it.
//
// Subscribers receive batches on a buffered channel. A delivery that finds
// the buffer full counts as a delivery failure and marks the subscriber
// for eviction; its channel is closed so the transport handler serving it
// learns it was cut off.
type Broadcaster struct {
	buffer      int
	sweepEvery  time.Duration
	idleTimeout time.Duration
	logger      *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// New creates a broadcaster. buffer is the per-subscriber channel depth;
// sweepEvery and idleTimeout control the liveness sweep.
func New(buffer int, sweepEvery, idleTimeout time.Duration, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		buffer:      buffer,
		sweepEvery:  sweepEvery,
		idleTimeout: idleTimeout,
		logger:      logger,
		subs:        make(map[string]*subscriber),
	}
}

// Start launches the liveness sweep. It runs until ctx is cancelled, at
// which point every remaining subscriber channel is closed.
func (b *Broadcaster) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.closeAll()
				return
			case <-ticker.C:
				b.sweep(time.Now())
			}
		}
	}()
}

// Subscribe registers a new subscriber and returns its id together with
// the channel batches arrive on. The channel is closed on unsubscribe,
// eviction, or shutdown.
func (b *Broadcaster) Subscribe() (string, <-chan quote.Batch) {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan quote.Batch, b.buffer),
	}
	sub.touch(time.Now())

	b.mu.Lock()
	b.subs[sub.id] = sub
	metrics.Subscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	b.logger.Debug("subscriber registered", "subscriber_id", sub.id)
	return sub.id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Removing an
// absent id is a no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.remove(id, "")
}

// Touch records a keep-alive for a subscriber, deferring idle eviction.
// Unknown ids are ignored.
func (b *Broadcaster) Touch(id string) {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if ok {
		sub.touch(time.Now())
	}
}

// Publish delivers a batch to every registered subscriber. Each delivery
// is independent and non-blocking; subscribers whose buffers are full are
// evicted after the fan-out completes. Publish returns without waiting on
// any consumer.
//
// Sends happen under the read lock while channel closes happen under the
// write lock, so a delivery can never race a close.
func (b *Broadcaster) Publish(batch quote.Batch) {
	now := time.Now()

	b.mu.RLock()
	var failed []string
	for _, sub := range b.subs {
		select {
		case sub.ch <- batch:
			sub.touch(now)
			metrics.Deliveries.WithLabelValues("ok").Inc()
		default:
			failed = append(failed, sub.id)
			metrics.Deliveries.WithLabelValues("dropped").Inc()
		}
	}
	b.mu.RUnlock()

	for _, id := range failed {
		b.remove(id, reasonSlow)
	}
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// sweep evicts subscribers whose last activity is older than the idle
// timeout.
func (b *Broadcaster) sweep(now time.Time) {
	cutoff := now.Add(-b.idleTimeout).UnixNano()

	b.mu.RLock()
	var idle []string
	for id, sub := range b.subs {
		if sub.lastActivity.Load() < cutoff {
			idle = append(idle, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range idle {
		b.remove(id, reasonIdle)
	}
}

// remove deletes a subscriber and closes its channel. reason is empty for
// an explicit unsubscribe.
func (b *Broadcaster) remove(id, reason string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.ch)
		metrics.Subscribers.Set(float64(len(b.subs)))
	}
	b.mu.Unlock()

	if !ok || reason == "" {
		return
	}
	metrics.SubscribersEvicted.WithLabelValues(reason).Inc()
	b.logger.Warn("subscriber evicted", "subscriber_id", id, "reason", reason)
}

// closeAll drops every subscriber on shutdown.
func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	metrics.Subscribers.Set(0)
}

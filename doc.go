// Package tickwatch tracks a dynamic set of financial instrument tickers,
// continuously observes a rendered data source for each, and delivers
// low-latency, deduplicated price updates to many concurrent subscribers.
//
// tickwatch is designed as an SDK-first library: the pipeline is
// configured programmatically with functional options and driven by a
// caller-owned context. A standalone binary with YAML configuration is
// provided under cmd/tickwatch.
//
// # Quick Start
//
// Create a watcher and run it with graceful shutdown:
//
//	w, _ := tickwatch.New(
//	    tickwatch.WithDriver(httpdriver.New(10 * time.Second)),
//	    tickwatch.WithURLTemplate("https://quotes.example.com/q/{ticker}"),
//	    tickwatch.WithTickers("BTCUSD", "ETHUSD"),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	go w.Start(ctx) // blocks until context is cancelled
//
//	id, batches := w.Subscribe()
//	defer w.Unsubscribe(id)
//	for batch := range batches {
//	    // one sample per distinct ticker per debounce window
//	}
//
// # Pipeline
//
// Data flows through three stages, each owning its own concurrency:
//
//   - One monitor per ticker samples its page handle on a fixed cadence
//     and forwards a sample only when the (value, change%) pair changed.
//   - A single batcher deduplicates samples per ticker within a debounce
//     window and flushes them as one ordered batch.
//   - The broadcaster fans each batch out to every subscriber, isolating
//     failures per subscriber and evicting the unresponsive.
//
// # Extraction Strategies
//
// Values are pulled from pages by an ordered chain of strategies with
// graceful degradation: structured selector lookup, script data-object
// lookup, a bounded free-text scan, and a document-title match. See
// [Extractor] and [Strategy]. A page yielding no value produces a typed
// [ExtractionError], never a zero price.
//
// # Architecture
//
// The supporting packages:
//
//   - quote: shared value types and numeric normalization
//   - internal/monitor: per-ticker sampling lifecycle and registry
//   - internal/batch: debounce batching with per-ticker deduplication
//   - internal/broadcast: subscriber fan-out and liveness
//   - internal/driver/httpdriver: goquery-backed page driver
//   - internal/server: REST, SSE, WebSocket, and Prometheus transport
//
// The internal packages are not part of the public API and may change
// without notice.
package tickwatch

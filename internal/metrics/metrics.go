// Package metrics defines the Prometheus collectors for the tickwatch
// pipeline. Collectors are registered with the default registry via
// promauto and exposed through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_active_monitors",
		Help: "Number of tickers with a running monitor",
	})

	SamplesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_samples_extracted_total",
		Help: "Total number of samples resolved, labelled by winning strategy",
	}, []string{"strategy"})

	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_extraction_failures_total",
		Help: "Total number of extraction cycles where no strategy resolved a value",
	}, []string{"ticker"})

	SamplesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_samples_forwarded_total",
		Help: "Total number of changed samples forwarded to the batcher",
	})

	SamplesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_samples_suppressed_total",
		Help: "Total number of samples suppressed because the (value, change) pair was unchanged",
	})

	SamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_samples_dropped_total",
		Help: "Total number of samples dropped because the batcher intake was full",
	})

	BatchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_batches_published_total",
		Help: "Total number of batches flushed to the broadcaster",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tickwatch_batch_size",
		Help:    "Distribution of distinct tickers per flushed batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_subscribers",
		Help: "Number of registered batch subscribers",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_deliveries_total",
		Help: "Total number of per-subscriber batch delivery attempts, labelled by result",
	}, []string{"result"})

	SubscribersEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_subscribers_evicted_total",
		Help: "Total number of subscribers evicted, labelled by reason",
	}, []string{"reason"})
)

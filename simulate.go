package tickwatch

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tickwatch/tickwatch/internal/monitor"
	"github.com/tickwatch/tickwatch/quote"
)

// syntheticSource generates random-walk quotes for demo and test use.
//
// Simulation is an explicit mode selected with [WithSimulation]; it is a
// separate sampler source, structurally incapable of being mixed into the
// real extraction path. A watcher in real mode whose pages yield nothing
// emits nothing.
type syntheticSource struct{}

func (syntheticSource) Acquire(_ context.Context, ticker string) (monitor.Sampler, error) {
	// seed from the ticker so a symbol starts at the same price across runs
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	seed := int64(h.Sum64())

	rng := rand.New(rand.NewSource(seed))
	// starting price in [10, 10010)
	start := decimal.NewFromFloat(10 + rng.Float64()*10000).Round(2)

	return &syntheticSampler{
		ticker: ticker,
		rng:    rng,
		price:  start,
	}, nil
}

// syntheticSampler walks the price by up to ±0.5% per cycle. It is used
// by a single monitor loop; the mutex only guards against a Close racing
// a final Sample during shutdown.
type syntheticSampler struct {
	ticker string

	mu    sync.Mutex
	rng   *rand.Rand
	price decimal.Decimal
}

func (s *syntheticSampler) Sample(_ context.Context) (quote.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// drift in [-0.5%, +0.5%]
	drift := (s.rng.Float64() - 0.5) / 100
	factor := decimal.NewFromFloat(1 + drift)

	s.price = quote.RoundPrice(s.price.Mul(factor))
	change := decimal.NewFromFloat(drift * 100).Round(2)

	return quote.Sample{
		Ticker:        s.ticker,
		Value:         s.price,
		ChangePercent: change,
		ObservedAt:    time.Now(),
	}, nil
}

func (s *syntheticSampler) Close() error { return nil }

// Package quote defines the value types that flow through the tickwatch
// pipeline: the Sample produced by extraction, the Batch delivered to
// subscribers, and the numeric normalization rules applied to raw page text.
//
// These types are shared by the monitor, batch, broadcast, and server
// packages. They are plain values; all synchronization lives in the
// components that pass them around.
package quote

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// one is the precision boundary: values above one unit round to cents,
// values at or below round to 8 places (sub-unit instruments).
var one = decimal.NewFromInt(1)

// Sample is one observed (value, change%) pair for a ticker at a point
// in time.
//
// A Sample is only ever constructed with a positive value; a page that
// yields no resolvable value produces a typed extraction error instead,
// never a zero-value Sample.
type Sample struct {
	// Ticker is the case-normalized instrument identifier.
	Ticker string `json:"ticker"`

	// Value is the observed price. Always positive.
	Value decimal.Decimal `json:"value"`

	// ChangePercent is the observed percent change. Zero when the page
	// exposes no change data; absence of change data is not a failure.
	ChangePercent decimal.Decimal `json:"change_percent"`

	// ObservedAt is when the extraction that produced this sample ran.
	ObservedAt time.Time `json:"observed_at"`
}

// SamePair reports whether two samples carry the same (value, change%)
// pair. The monitor uses this for change-only forwarding; observation
// timestamps are deliberately ignored.
func (s Sample) SamePair(o Sample) bool {
	return s.Value.Equal(o.Value) && s.ChangePercent.Equal(o.ChangePercent)
}

// Batch is the set of latest samples flushed together within one debounce
// window, ordered by ticker. At most one sample per ticker.
type Batch []Sample

// Stats is a point-in-time snapshot of pipeline gauges, exposed through
// the Metrics boundary operation and the /api/stats endpoint.
type Stats struct {
	// ActiveTickers is the number of tickers with a running monitor.
	ActiveTickers int `json:"active_tickers"`

	// Subscribers is the number of registered batch subscribers.
	Subscribers int `json:"subscribers"`

	// PendingBatch is the number of samples waiting in the current
	// debounce window.
	PendingBatch int `json:"pending_batch"`
}

// NormalizeTicker returns the canonical form of a ticker: trimmed and
// upper-cased. All registry keys use this form.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// priceCleaner strips grouping separators and common currency markers
// before decimal parsing.
var priceCleaner = strings.NewReplacer(
	",", "",
	" ", "",
	" ", "", // non-breaking space, used as a grouping separator by some locales
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
	"₿", "",
)

// ParsePrice parses a currency-like string into a positive, rounded price.
//
// Grouping separators and currency symbols are stripped, the remainder is
// parsed as a decimal, and [RoundPrice] precision rules are applied.
// Returns false for empty input, unparseable input, and non-positive
// values: a price of zero is never valid data.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(priceCleaner.Replace(raw))
	if s == "" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}

	return RoundPrice(d), true
}

// RoundPrice applies price precision rules: 2 decimal places for values
// above one unit, 8 decimal places otherwise (supports sub-unit
// instruments).
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(one) {
		return d.Round(2)
	}
	return d.Round(8)
}

// percentCleaner strips the decoration around change tokens such as
// "(+1.25%)" or "−0.40 %".
var percentCleaner = strings.NewReplacer(
	"%", "",
	"(", "",
	")", "",
	"+", "",
	" ", "",
	"−", "-", // unicode minus, seen on rendered finance pages
)

// ParsePercent parses a percent-change token into a decimal rounded to
// 2 places. Unlike prices, change values may be negative or zero.
func ParsePercent(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(percentCleaner.Replace(raw))
	if s == "" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}

	return d.Round(2), true
}

package tickwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tickwatch/tickwatch/internal/metrics"
	"github.com/tickwatch/tickwatch/quote"
)

// Strategy attempts to resolve a positive price from a page.
//
// Strategy follows functional composition: each strategy is a pure probe
// that either yields a value or falls through, and the [Extractor] runs an
// ordered list of them, short-circuiting on the first success. A strategy
// never reports zero as a value.
//
// # Panic Safety
//
// Strategies run within a panic recovery boundary. A panicking strategy is
// treated as fallen-through; the stack trace is logged with a correlation
// ID so one misbehaving custom strategy cannot take the pipeline down.
type Strategy func(ctx context.Context, page PageHandle) (decimal.Decimal, bool)

// ChangeStrategy attempts to resolve a percent-change value from a page.
// Unlike price strategies, a fallen-through change chain is not a failure:
// the change defaults to zero.
type ChangeStrategy func(ctx context.Context, page PageHandle) (decimal.Decimal, bool)

// Default field markers tried by [SelectorStrategy]. These cover the
// common shapes of rendered quote pages: explicit data-field markers,
// test ids, microdata, and conventional class names.
var defaultPriceSelectors = []string{
	`[data-field="last-price"]`,
	`[data-testid="qsp-price"]`,
	`[data-price]`,
	`meta[itemprop="price"]`,
	`.last-price`,
	`.price`,
	`#price`,
}

// Default change-percent markers tried before the free-text change scan.
var defaultChangeSelectors = []string{
	`[data-field="change-percent"]`,
	`[data-testid="qsp-price-change-percent"]`,
	`.change-percent`,
	`.price-change`,
}

// Default script-context objects probed by [ScriptObjectStrategy].
var defaultScriptProbes = []string{
	"__QUOTE_DATA__",
	"__INITIAL_STATE__",
	"quoteData",
}

// Keys recognised inside a script-context data object, in priority order.
var (
	scriptPriceKeys  = []string{"price", "last", "lastPrice", "regularMarketPrice", "value", "c"}
	scriptChangeKeys = []string{"changePercent", "change_percent", "regularMarketChangePercent", "dp"}
)

// currencyPattern matches currency-like numerics with optional grouping
// separators, e.g. "45,250.75" or "0.00312".
var currencyPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// changePattern matches percent-change tokens like "+1.25%" or "(−0.40%)".
var changePattern = regexp.MustCompile(`[+\-\x{2212}]?\d+(?:\.\d+)?\s*%`)

// SelectorStrategy returns a [Strategy] that reads the given selectors in
// order and yields the first parseable positive value.
func SelectorStrategy(selectors ...string) Strategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, sel := range selectors {
			raw, ok := page.ReadField(ctx, sel)
			if !ok {
				continue
			}
			if v, ok := quote.ParsePrice(raw); ok {
				return v, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// ScriptObjectStrategy returns a [Strategy] that probes known script
// globals for a data object and reads its price field. Probes resolving
// to a bare number are accepted directly; probes resolving to a JSON
// object are searched for the conventional price keys.
func ScriptObjectStrategy(probes ...string) Strategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, probe := range probes {
			raw, ok := page.EvaluateScript(ctx, probe)
			if !ok {
				continue
			}
			if v, ok := quote.ParsePrice(raw); ok {
				return v, true
			}
			if v, ok := priceFromObject(raw, scriptPriceKeys); ok {
				return v, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// TextScanStrategy returns a [Strategy] that scans all text-bearing nodes
// for a currency-like numeric within [min, max]. The magnitude bounds keep
// the scan from latching onto years, volumes, or timestamps.
func TextScanStrategy(min, max decimal.Decimal) Strategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, node := range page.Text(ctx) {
			for _, match := range currencyPattern.FindAllString(node, -1) {
				v, ok := quote.ParsePrice(match)
				if !ok {
					continue
				}
				if v.GreaterThanOrEqual(min) && v.LessThanOrEqual(max) {
					return v, true
				}
			}
		}
		return decimal.Decimal{}, false
	}
}

// TitleStrategy returns a [Strategy] that matches a numeric within
// [min, max] in the document title. Last resort: many quote pages carry
// the live price in the tab title.
func TitleStrategy(min, max decimal.Decimal) Strategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		title := page.Title(ctx)
		if title == "" {
			return decimal.Decimal{}, false
		}
		for _, match := range currencyPattern.FindAllString(title, -1) {
			v, ok := quote.ParsePrice(match)
			if !ok {
				continue
			}
			if v.GreaterThanOrEqual(min) && v.LessThanOrEqual(max) {
				return v, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// SelectorChangeStrategy returns a [ChangeStrategy] reading change-percent
// field markers in order.
func SelectorChangeStrategy(selectors ...string) ChangeStrategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, sel := range selectors {
			raw, ok := page.ReadField(ctx, sel)
			if !ok {
				continue
			}
			if v, ok := quote.ParsePercent(raw); ok {
				return v, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// ScriptChangeStrategy returns a [ChangeStrategy] reading the change field
// of known script-context data objects.
func ScriptChangeStrategy(probes ...string) ChangeStrategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, probe := range probes {
			raw, ok := page.EvaluateScript(ctx, probe)
			if !ok {
				continue
			}
			if v, ok := changeFromObject(raw, scriptChangeKeys); ok {
				return v, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// TextScanChangeStrategy returns a [ChangeStrategy] that looks for a
// percent token in the text-bearing nodes.
func TextScanChangeStrategy() ChangeStrategy {
	return func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		for _, node := range page.Text(ctx) {
			if match := changePattern.FindString(node); match != "" {
				if v, ok := quote.ParsePercent(match); ok {
					return v, true
				}
			}
		}
		return decimal.Decimal{}, false
	}
}

// namedStrategy pairs a strategy with the label used in logs and metrics.
type namedStrategy struct {
	name string
	fn   Strategy
}

// Extractor resolves (value, change%) pairs from page handles by running
// an ordered strategy chain with graceful degradation.
//
// The default chain tries, in order: structured selector lookup, script
// data-object lookup, free-text scan within magnitude bounds, and a
// document-title match. Change-percent extraction runs independently and
// defaults to zero when unresolved. If every price strategy falls through
// the extractor returns an [ExtractionError]; it never fabricates a value.
//
// Create with [NewExtractor]; customize the chain with [ExtractorOption]
// values such as [WithPriceSelectors], [WithScriptProbes],
// [WithValueBounds], and [WithStrategy].
type Extractor struct {
	strategies []namedStrategy
	changes    []ChangeStrategy
	logger     *slog.Logger
}

// NewExtractor creates an [Extractor] with the default strategy chain and
// applies the given options. Returns an error if any option is invalid.
func NewExtractor(opts ...ExtractorOption) (*Extractor, error) {
	cfg := &extractorConfig{
		priceSelectors:  defaultPriceSelectors,
		changeSelectors: defaultChangeSelectors,
		scriptProbes:    defaultScriptProbes,
		minValue:        decimal.RequireFromString("0.01"),
		maxValue:        decimal.RequireFromString("1000000"),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	strategies := []namedStrategy{
		{"selector", SelectorStrategy(cfg.priceSelectors...)},
		{"script", ScriptObjectStrategy(cfg.scriptProbes...)},
		{"scan", TextScanStrategy(cfg.minValue, cfg.maxValue)},
		{"title", TitleStrategy(cfg.minValue, cfg.maxValue)},
	}
	strategies = append(strategies, cfg.extra...)

	return &Extractor{
		strategies: strategies,
		changes: []ChangeStrategy{
			SelectorChangeStrategy(cfg.changeSelectors...),
			ScriptChangeStrategy(cfg.scriptProbes...),
			TextScanChangeStrategy(),
		},
		logger: logger,
	}, nil
}

// Extract runs the strategy chain against a page and returns a sample for
// the ticker, or an [ExtractionError] if no strategy resolved a value.
func (e *Extractor) Extract(ctx context.Context, page PageHandle, ticker string) (quote.Sample, error) {
	for _, s := range e.strategies {
		value, ok := e.attempt(ctx, s, page)
		if !ok {
			continue
		}

		change := decimal.Decimal{}
		for _, cs := range e.changes {
			if v, ok := e.attemptChange(ctx, cs, page); ok {
				change = v
				break
			}
		}

		metrics.SamplesExtracted.WithLabelValues(s.name).Inc()
		return quote.Sample{
			Ticker:        ticker,
			Value:         value,
			ChangePercent: change,
			ObservedAt:    time.Now(),
		}, nil
	}

	return quote.Sample{}, &ExtractionError{Ticker: ticker, Err: ErrNoValue}
}

// attempt invokes a price strategy with panic recovery. A panic is logged
// with a correlation ID and treated as a fall-through.
func (e *Extractor) attempt(ctx context.Context, s namedStrategy, page PageHandle) (value decimal.Decimal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			e.logger.Error("extraction strategy panic",
				"correlation_id", correlationID,
				"strategy", s.name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			value, ok = decimal.Decimal{}, false
		}
	}()
	return s.fn(ctx, page)
}

// attemptChange invokes a change strategy with the same recovery boundary.
func (e *Extractor) attemptChange(ctx context.Context, cs ChangeStrategy, page PageHandle) (value decimal.Decimal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			e.logger.Error("change strategy panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			value, ok = decimal.Decimal{}, false
		}
	}()
	return cs(ctx, page)
}

// priceFromObject parses raw as a JSON object and returns the first
// positive price under the given keys.
func priceFromObject(raw string, keys []string) (decimal.Decimal, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return decimal.Decimal{}, false
	}

	for _, key := range keys {
		field, ok := obj[key]
		if !ok {
			continue
		}
		if v, ok := quote.ParsePrice(jsonScalar(field)); ok {
			return v, true
		}
	}
	return decimal.Decimal{}, false
}

// changeFromObject is the change-percent counterpart of priceFromObject.
func changeFromObject(raw string, keys []string) (decimal.Decimal, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return decimal.Decimal{}, false
	}

	for _, key := range keys {
		field, ok := obj[key]
		if !ok {
			continue
		}
		if v, ok := quote.ParsePercent(jsonScalar(field)); ok {
			return v, true
		}
	}
	return decimal.Decimal{}, false
}

// jsonScalar renders a raw JSON field as its plain scalar text, stripping
// quotes from strings so "42.5" and 42.5 parse the same way.
func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

package tickwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
)

// fakePage is an in-memory PageHandle for extraction tests.
type fakePage struct {
	fields  map[string]string
	scripts map[string]string
	text    []string
	title   string
}

func (p *fakePage) Refresh(ctx context.Context) error { return nil }

func (p *fakePage) ReadField(ctx context.Context, selector string) (string, bool) {
	v, ok := p.fields[selector]
	return v, ok
}

func (p *fakePage) EvaluateScript(ctx context.Context, probe string) (string, bool) {
	v, ok := p.scripts[probe]
	return v, ok
}

func (p *fakePage) Text(ctx context.Context) []string { return p.text }

func (p *fakePage) Title(ctx context.Context) string { return p.title }

func (p *fakePage) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExtractor(t *testing.T, opts ...ExtractorOption) *Extractor {
	t.Helper()
	e, err := NewExtractor(append(opts, WithExtractorLogger(testLogger()))...)
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	return e
}

func wantValue(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Value = %s, want %s", got, want)
	}
}

func TestExtract_SelectorWinsOverScan(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{
		fields: map[string]string{`[data-field="last-price"]`: "$45,250.75"},
		text:   []string{"Volume 1,234,567", "99.99"},
	}

	s, err := e.Extract(context.Background(), page, "BTCUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if s.Ticker != "BTCUSD" {
		t.Errorf("Ticker = %q, want %q", s.Ticker, "BTCUSD")
	}
	wantValue(t, s.Value, "45250.75")
	if s.ObservedAt.IsZero() {
		t.Error("ObservedAt is zero, want set")
	}
}

func TestExtract_SelectorOrder(t *testing.T) {
	e := newTestExtractor(t)
	// both selectors present; the earlier one wins
	page := &fakePage{fields: map[string]string{
		`[data-field="last-price"]`: "100.00",
		`.price`:                    "200.00",
	}}

	s, err := e.Extract(context.Background(), page, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "100")
}

func TestExtract_SelectorWithGarbageFallsThrough(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{
		fields: map[string]string{`[data-field="last-price"]`: "loading..."},
		title:  "BTCUSD 45,250.75",
	}

	s, err := e.Extract(context.Background(), page, "BTCUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "45250.75")
}

func TestExtract_ScriptObject(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{scripts: map[string]string{
		"__QUOTE_DATA__": `{"symbol":"ETHUSD","price":"2501.10","changePercent":-0.4}`,
	}}

	s, err := e.Extract(context.Background(), page, "ETHUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "2501.1")
	wantValue(t, s.ChangePercent, "-0.4")
}

func TestExtract_ScriptScalar(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{scripts: map[string]string{"quoteData": "350.25"}}

	s, err := e.Extract(context.Background(), page, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "350.25")
}

func TestExtract_TextScanFallback(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{text: []string{"Bitcoin", "45,250.75", "24h change"}}

	s, err := e.Extract(context.Background(), page, "BTCUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "45250.75")
}

func TestExtract_ScanRespectsBounds(t *testing.T) {
	e := newTestExtractor(t, WithValueBounds(
		decimal.RequireFromString("100"),
		decimal.RequireFromString("100000"),
	))
	// 12 is below the minimum; the scan must skip it and take the price
	page := &fakePage{text: []string{"Watchers: 12", "45,250.75"}}

	s, err := e.Extract(context.Background(), page, "BTCUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "45250.75")
}

func TestExtract_TitleLastResort(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{title: "BTC-USD 45,250.75 | Live Quote"}

	s, err := e.Extract(context.Background(), page, "BTCUSD")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "45250.75")
}

func TestExtract_AllStrategiesFail(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{text: []string{"nothing numeric here"}}

	_, err := e.Extract(context.Background(), page, "BTCUSD")
	if err == nil {
		t.Fatal("Extract() error = nil, want ExtractionError")
	}

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("Extract() error type = %T, want *ExtractionError", err)
	}
	if exErr.Ticker != "BTCUSD" {
		t.Errorf("Ticker = %q, want %q", exErr.Ticker, "BTCUSD")
	}
	if !errors.Is(err, ErrNoValue) {
		t.Errorf("errors.Is(err, ErrNoValue) = false, want true")
	}
}

func TestExtract_ZeroValueNeverProduced(t *testing.T) {
	e := newTestExtractor(t)
	// every field resolves to zero or negative; no sample may come out
	page := &fakePage{
		fields:  map[string]string{`.price`: "0.00"},
		scripts: map[string]string{"quoteData": `{"price":"-3"}`},
		text:    []string{"0", "0.00"},
		title:   "0.00",
	}

	_, err := e.Extract(context.Background(), page, "X")
	if err == nil {
		t.Fatal("Extract() error = nil, want ExtractionError for zero-valued page")
	}
}

func TestExtract_ChangeDefaultsToZero(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{fields: map[string]string{`.price`: "105.50"}}

	s, err := e.Extract(context.Background(), page, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !s.ChangePercent.IsZero() {
		t.Errorf("ChangePercent = %s, want 0", s.ChangePercent)
	}
}

func TestExtract_ChangeFromSelector(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{fields: map[string]string{
		`.price`:          "105.50",
		`.change-percent`: "(+1.25%)",
	}}

	s, err := e.Extract(context.Background(), page, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.ChangePercent, "1.25")
}

func TestExtract_ChangeFromTextScan(t *testing.T) {
	e := newTestExtractor(t)
	page := &fakePage{
		fields: map[string]string{`.price`: "105.50"},
		text:   []string{"24h", "−0.40%"},
	}

	s, err := e.Extract(context.Background(), page, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.ChangePercent, "-0.4")
}

func TestExtract_CustomStrategyPanicIsContained(t *testing.T) {
	panicking := func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		panic("bad custom strategy")
	}
	fixed := func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
		return decimal.RequireFromString("77.70"), true
	}

	e := newTestExtractor(t,
		WithStrategy("boom", panicking),
		WithStrategy("fixed", fixed),
	)

	// empty page: the built-in chain falls through, the panicking custom
	// strategy must not escape, and the next strategy still runs
	s, err := e.Extract(context.Background(), &fakePage{}, "X")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	wantValue(t, s.Value, "77.7")
}

func TestNewExtractor_OptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  ExtractorOption
	}{
		{"no price selectors", WithPriceSelectors()},
		{"no change selectors", WithChangeSelectors()},
		{"no script probes", WithScriptProbes()},
		{"zero minimum bound", WithValueBounds(decimal.Zero, decimal.NewFromInt(10))},
		{"inverted bounds", WithValueBounds(decimal.NewFromInt(10), decimal.NewFromInt(5))},
		{"unnamed strategy", WithStrategy("", func(ctx context.Context, page PageHandle) (decimal.Decimal, bool) {
			return decimal.Decimal{}, false
		})},
		{"nil strategy", WithStrategy("x", nil)},
		{"nil logger", WithExtractorLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor(tt.opt); err == nil {
				t.Error("NewExtractor() error = nil, want validation error")
			}
		})
	}
}

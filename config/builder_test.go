package config

import (
	"slices"
	"testing"
	"time"

	"github.com/tickwatch/tickwatch"
)

// buildWatcher parses a YAML config and applies the built options.
func buildWatcher(t *testing.T, yaml string) *tickwatch.Watcher {
	t.Helper()

	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	w, err := tickwatch.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestBuildOptions_Simulation(t *testing.T) {
	w := buildWatcher(t, `
port: 9191
sample_interval: 2s
batch_window: 75ms
mode: simulation
tickers: [btcusd, ETHUSD]
`)

	if !w.Simulated() {
		t.Error("Simulated() = false, want true")
	}
	if w.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", w.Port())
	}
	if w.SampleInterval() != 2*time.Second {
		t.Errorf("SampleInterval() = %v, want 2s", w.SampleInterval())
	}
	if w.BatchWindow() != 75*time.Millisecond {
		t.Errorf("BatchWindow() = %v, want 75ms", w.BatchWindow())
	}

	got := w.InitialTickers()
	want := []string{"BTCUSD", "ETHUSD"}
	if !slices.Equal(got, want) {
		t.Errorf("InitialTickers() = %v, want %v", got, want)
	}
}

func TestBuildOptions_WatchlistsExpand(t *testing.T) {
	w := buildWatcher(t, `
mode: simulation
watchlists:
  - name: fx
    url_template: "https://fx.example.com/pair/{ticker}"
    symbols: [EURUSD, GBPUSD]
  - name: crypto
    url_template: "https://crypto.example.com/{ticker}"
    symbols: [BTCUSD]
`)

	got := w.InitialTickers()
	want := []string{"BTCUSD", "EURUSD", "GBPUSD"}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("InitialTickers() = %v, want %v", got, want)
	}
}

func TestBuildOptions_ExtractionOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
mode: simulation
tickers: [BTCUSD]
extraction:
  min_value: "0.5"
  max_value: "100000"
  price_selectors: [".quote-price"]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	if _, err := tickwatch.New(opts...); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

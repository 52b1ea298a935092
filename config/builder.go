package config

import (
	"github.com/shopspring/decimal"

	"github.com/tickwatch/tickwatch"
)

// BuildOptions converts a validated Config into tickwatch options.
//
// Watchlists expand into per-ticker URL overrides so every symbol
// resolves through its group's template. The page driver is not
// configured here; callers supply it (or enable simulation) based on
// the configured mode.
func BuildOptions(cfg *Config) ([]tickwatch.Option, error) {
	opts := []tickwatch.Option{
		tickwatch.WithPort(cfg.Port),
		tickwatch.WithSampleInterval(cfg.SampleInterval.Duration()),
		tickwatch.WithBatchWindow(cfg.BatchWindow.Duration()),
		tickwatch.WithSweepInterval(cfg.SweepInterval.Duration()),
		tickwatch.WithIdleTimeout(cfg.IdleTimeout.Duration()),
	}

	if cfg.Mode == ModeSimulation {
		opts = append(opts, tickwatch.WithSimulation())
	}

	if cfg.URLTemplate != "" {
		opts = append(opts, tickwatch.WithURLTemplate(cfg.URLTemplate))
	}

	if len(cfg.Tickers) > 0 {
		opts = append(opts, tickwatch.WithTickers(cfg.Tickers...))
	}

	for _, wl := range cfg.Watchlists {
		for _, sym := range wl.Symbols {
			opts = append(opts, tickwatch.WithTickerURL(sym, wl.URLTemplate))
		}
		opts = append(opts, tickwatch.WithTickers(wl.Symbols...))
	}

	exOpts, err := buildExtractorOptions(&cfg.Extraction)
	if err != nil {
		return nil, err
	}
	if len(exOpts) > 0 {
		ex, err := tickwatch.NewExtractor(exOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tickwatch.WithExtractor(ex))
	}

	return opts, nil
}

func buildExtractorOptions(ex *ExtractionConfig) ([]tickwatch.ExtractorOption, error) {
	var opts []tickwatch.ExtractorOption

	if len(ex.PriceSelectors) > 0 {
		opts = append(opts, tickwatch.WithPriceSelectors(ex.PriceSelectors...))
	}
	if len(ex.ChangeSelectors) > 0 {
		opts = append(opts, tickwatch.WithChangeSelectors(ex.ChangeSelectors...))
	}
	if len(ex.ScriptProbes) > 0 {
		opts = append(opts, tickwatch.WithScriptProbes(ex.ScriptProbes...))
	}
	if ex.MinValue != "" {
		min, err := decimal.NewFromString(ex.MinValue)
		if err != nil {
			return nil, err
		}
		max, err := decimal.NewFromString(ex.MaxValue)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tickwatch.WithValueBounds(min, max))
	}

	return opts, nil
}

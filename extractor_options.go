package tickwatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// extractorConfig holds mutable state during Extractor construction.
type extractorConfig struct {
	priceSelectors  []string
	changeSelectors []string
	scriptProbes    []string
	minValue        decimal.Decimal
	maxValue        decimal.Decimal
	extra           []namedStrategy
	logger          *slog.Logger
}

// ExtractorOption configures an [Extractor] during construction via
// [NewExtractor]. Options return an error if validation fails.
type ExtractorOption func(*extractorConfig) error

// WithPriceSelectors replaces the candidate selectors tried by the
// structured-lookup strategy. Selectors are tried in the given order.
func WithPriceSelectors(selectors ...string) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if len(selectors) == 0 {
			return errors.New("at least one price selector is required")
		}
		cfg.priceSelectors = selectors
		return nil
	}
}

// WithChangeSelectors replaces the candidate selectors tried for the
// percent-change field.
func WithChangeSelectors(selectors ...string) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if len(selectors) == 0 {
			return errors.New("at least one change selector is required")
		}
		cfg.changeSelectors = selectors
		return nil
	}
}

// WithScriptProbes replaces the script-context globals probed by the
// data-object strategy.
func WithScriptProbes(probes ...string) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if len(probes) == 0 {
			return errors.New("at least one script probe is required")
		}
		cfg.scriptProbes = probes
		return nil
	}
}

// WithValueBounds sets the plausible magnitude range for the free-text
// and title strategies. Defaults to [0.01, 1000000].
//
// Returns an error unless 0 < min < max.
func WithValueBounds(min, max decimal.Decimal) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if !min.IsPositive() {
			return fmt.Errorf("minimum value bound must be positive, got %s", min)
		}
		if !max.GreaterThan(min) {
			return fmt.Errorf("maximum value bound must exceed the minimum, got [%s, %s]", min, max)
		}
		cfg.minValue = min
		cfg.maxValue = max
		return nil
	}
}

// WithStrategy appends a custom [Strategy] after the built-in chain. The
// name labels the strategy in logs and metrics.
func WithStrategy(name string, s Strategy) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if name == "" {
			return errors.New("strategy name cannot be empty")
		}
		if s == nil {
			return errors.New("strategy cannot be nil")
		}
		cfg.extra = append(cfg.extra, namedStrategy{name: name, fn: s})
		return nil
	}
}

// WithExtractorLogger sets the logger used for strategy panic reports.
// Defaults to slog.Default().
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(cfg *extractorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

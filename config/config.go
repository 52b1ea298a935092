// Package config provides YAML configuration parsing for tickwatch.
//
// This package enables running tickwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	sample_interval: 1s
//	batch_window: 50ms
//	mode: real
//	url_template: "https://quotes.example.com/q/{ticker}"
//
//	tickers: [BTCUSD, ETHUSD]
//
//	watchlists:
//	  - name: fx-majors
//	    url_template: "https://fx.example.com/pair/{ticker}"
//	    symbols: [EURUSD, GBPUSD]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Modes accepted in the mode field.
const (
	ModeReal       = "real"
	ModeSimulation = "simulation"
)

// minSampleInterval prevents accidental DoS of quote pages with overly
// aggressive sampling.
const minSampleInterval = 100 * time.Millisecond

// tickerPlaceholder must appear in every URL template.
const tickerPlaceholder = "{ticker}"

// Config is the root configuration structure for tickwatch.
//
// It maps directly to the YAML configuration file structure. Use [Load]
// or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP transport port. Defaults to 8080.
	Port int `yaml:"port"`

	// SampleInterval is the per-ticker sampling cadence.
	// Accepts duration strings like "1s", "500ms". Defaults to 1s.
	SampleInterval Duration `yaml:"sample_interval"`

	// BatchWindow is the debounce delay between the first pending sample
	// and the batch flush. Defaults to 50ms.
	BatchWindow Duration `yaml:"batch_window"`

	// SweepInterval is how often idle subscribers are checked.
	// Defaults to 30s.
	SweepInterval Duration `yaml:"sweep_interval"`

	// IdleTimeout is how long a subscriber may go without a delivery or
	// keep-alive before eviction. Defaults to 60s.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// Mode selects real extraction or synthetic simulation.
	// One of "real" (default) or "simulation".
	Mode string `yaml:"mode"`

	// URLTemplate resolves a ticker to its resource address. Must
	// contain the {ticker} placeholder. Supports environment variable
	// substitution: ${VAR} or ${VAR:-default}. Required in real mode
	// unless every ticker comes from a watchlist.
	URLTemplate string `yaml:"url_template"`

	// RequestTimeout is the page fetch timeout. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Tickers are added at startup, resolved through URLTemplate.
	Tickers []string `yaml:"tickers"`

	// Watchlists are named groups of symbols sharing a URL template.
	Watchlists []WatchlistConfig `yaml:"watchlists"`

	// Extraction overrides the default strategy chain parameters.
	Extraction ExtractionConfig `yaml:"extraction"`
}

// WatchlistConfig is a named group of symbols sharing a URL template.
// Each symbol expands to one ticker whose resource address is the
// template with {ticker} substituted.
type WatchlistConfig struct {
	// Name identifies the watchlist in validation errors.
	Name string `yaml:"name"`

	// URLTemplate resolves this group's symbols. Must contain {ticker}.
	// Supports environment variable substitution.
	URLTemplate string `yaml:"url_template"`

	// Symbols are the tickers in this group.
	Symbols []string `yaml:"symbols"`
}

// ExtractionConfig tunes the extraction strategy chain. Empty fields keep
// the built-in defaults.
type ExtractionConfig struct {
	// PriceSelectors replace the candidate selectors for the structured
	// lookup strategy.
	PriceSelectors []string `yaml:"price_selectors"`

	// ChangeSelectors replace the candidate change-percent selectors.
	ChangeSelectors []string `yaml:"change_selectors"`

	// ScriptProbes replace the script-context globals probed for data
	// objects.
	ScriptProbes []string `yaml:"script_probes"`

	// MinValue and MaxValue bound the free-text and title scans,
	// e.g. "0.01" and "1000000".
	MinValue string `yaml:"min_value"`
	MaxValue string `yaml:"max_value"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = Duration(1 * time.Second)
	}
	if cfg.BatchWindow == 0 {
		cfg.BatchWindow = Duration(50 * time.Millisecond)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = Duration(30 * time.Second)
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = Duration(60 * time.Second)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(10 * time.Second)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReal
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the
// config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.SampleInterval.Duration() < minSampleInterval {
		return fmt.Errorf("sample_interval must be at least %s, got %s", minSampleInterval, c.SampleInterval.Duration())
	}
	if c.BatchWindow.Duration() <= 0 {
		return fmt.Errorf("batch_window must be positive, got %s", c.BatchWindow.Duration())
	}
	if c.BatchWindow.Duration() > c.SampleInterval.Duration() {
		return fmt.Errorf("batch_window (%s) must not exceed sample_interval (%s)",
			c.BatchWindow.Duration(), c.SampleInterval.Duration())
	}
	if c.SweepInterval.Duration() <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval.Duration())
	}
	if c.IdleTimeout.Duration() <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", c.IdleTimeout.Duration())
	}

	if c.Mode != ModeReal && c.Mode != ModeSimulation {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeReal, ModeSimulation, c.Mode)
	}

	if c.URLTemplate != "" {
		expanded, err := expandEnvVars(c.URLTemplate)
		if err != nil {
			return fmt.Errorf("url_template: %w", err)
		}
		c.URLTemplate = expanded
		if err := validateTemplate(c.URLTemplate, "url_template"); err != nil {
			return err
		}
	}

	for i, t := range c.Tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("tickers[%d]: ticker must not be empty", i)
		}
	}

	if c.Mode == ModeReal && len(c.Tickers) > 0 && c.URLTemplate == "" {
		return errors.New("url_template is required in real mode when tickers are configured")
	}

	for i := range c.Watchlists {
		wl := &c.Watchlists[i]

		if wl.Name == "" {
			return fmt.Errorf("watchlists[%d]: name is required", i)
		}
		if wl.URLTemplate == "" {
			return fmt.Errorf("watchlists[%d] (%s): url_template is required", i, wl.Name)
		}

		expanded, err := expandEnvVars(wl.URLTemplate)
		if err != nil {
			return fmt.Errorf("watchlists[%d] (%s): url_template: %w", i, wl.Name, err)
		}
		wl.URLTemplate = expanded
		if err := validateTemplate(wl.URLTemplate, fmt.Sprintf("watchlists[%d] (%s)", i, wl.Name)); err != nil {
			return err
		}

		if len(wl.Symbols) == 0 {
			return fmt.Errorf("watchlists[%d] (%s): at least one symbol is required", i, wl.Name)
		}
		seen := make(map[string]struct{}, len(wl.Symbols))
		for _, sym := range wl.Symbols {
			if strings.TrimSpace(sym) == "" {
				return fmt.Errorf("watchlists[%d] (%s): symbol must not be empty", i, wl.Name)
			}
			key := strings.ToUpper(strings.TrimSpace(sym))
			if _, dup := seen[key]; dup {
				return fmt.Errorf("watchlists[%d] (%s): duplicate symbol %q", i, wl.Name, sym)
			}
			seen[key] = struct{}{}
		}
	}

	if err := c.validateExtraction(); err != nil {
		return err
	}

	if c.Mode == ModeReal && len(c.Tickers) == 0 && len(c.Watchlists) == 0 {
		return errors.New("at least one ticker or watchlist must be defined in real mode")
	}

	return nil
}

// validateTemplate checks that a URL template carries the placeholder and
// parses as an http(s) URL once substituted.
func validateTemplate(template, context string) error {
	if !strings.Contains(template, tickerPlaceholder) {
		return fmt.Errorf("%s: must contain %s, got %q", context, tickerPlaceholder, template)
	}

	probe := strings.ReplaceAll(template, tickerPlaceholder, "PROBE")
	parsed, err := url.Parse(probe)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", context, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", context, parsed.Scheme)
	}
	return nil
}

// validateExtraction checks the optional strategy overrides.
func (c *Config) validateExtraction() error {
	ex := &c.Extraction

	if (ex.MinValue == "") != (ex.MaxValue == "") {
		return errors.New("extraction: min_value and max_value must be set together")
	}
	if ex.MinValue == "" {
		return nil
	}

	min, err := decimal.NewFromString(ex.MinValue)
	if err != nil {
		return fmt.Errorf("extraction: invalid min_value %q: %w", ex.MinValue, err)
	}
	max, err := decimal.NewFromString(ex.MaxValue)
	if err != nil {
		return fmt.Errorf("extraction: invalid max_value %q: %w", ex.MaxValue, err)
	}
	if !min.IsPositive() {
		return fmt.Errorf("extraction: min_value must be positive, got %s", ex.MinValue)
	}
	if !max.GreaterThan(min) {
		return fmt.Errorf("extraction: max_value must exceed min_value, got [%s, %s]", ex.MinValue, ex.MaxValue)
	}
	return nil
}

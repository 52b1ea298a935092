package quote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"btcusd", "BTCUSD"},
		{"  EthUsd ", "ETHUSD"},
		{"BTCUSD", "BTCUSD"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTicker(tt.in); got != tt.want {
			t.Errorf("NormalizeTicker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", "105.5", "105.5", true},
		{"grouping separators", "45,250.75", "45250.75", true},
		{"dollar sign", "$1,234.56", "1234.56", true},
		{"euro sign", "€ 99.90", "99.9", true},
		{"rounds above one unit", "12.3456", "12.35", true},
		{"sub-unit keeps precision", "0.00012345", "0.00012345", true},
		{"sub-unit rounds to 8 places", "0.123456789", "0.12345679", true},
		{"zero rejected", "0", "", false},
		{"negative rejected", "-5.25", "", false},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"garbage", "loading...", "", false},
		{"symbol only", "$", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", "1.25", "1.25", true},
		{"percent sign", "1.25%", "1.25", true},
		{"decorated positive", "(+1.25%)", "1.25", true},
		{"ascii negative", "-0.40%", "-0.4", true},
		{"unicode minus", "−0.40 %", "-0.4", true},
		{"zero allowed", "0.00%", "0", true},
		{"rounds", "1.256%", "1.26", true},
		{"empty", "", "", false},
		{"garbage", "n/a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePercent(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParsePercent(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParsePercent(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestSamePair(t *testing.T) {
	base := Sample{
		Ticker:        "BTCUSD",
		Value:         decimal.RequireFromString("45250.75"),
		ChangePercent: decimal.RequireFromString("1.25"),
		ObservedAt:    time.Now(),
	}

	same := base
	same.ObservedAt = base.ObservedAt.Add(time.Second)
	if !base.SamePair(same) {
		t.Error("SamePair() = false for identical pair with different timestamps, want true")
	}

	diffValue := base
	diffValue.Value = decimal.RequireFromString("45250.76")
	if base.SamePair(diffValue) {
		t.Error("SamePair() = true for different values, want false")
	}

	diffChange := base
	diffChange.ChangePercent = decimal.RequireFromString("1.26")
	if base.SamePair(diffChange) {
		t.Error("SamePair() = true for different change percents, want false")
	}

	// same numeric value with different exponents still matches
	scaled := base
	scaled.Value = decimal.RequireFromString("45250.750")
	if !base.SamePair(scaled) {
		t.Error("SamePair() = false for equal values at different scales, want true")
	}
}

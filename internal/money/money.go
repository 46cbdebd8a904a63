// Package money converts between USD amounts and USDC micro-units.
//
// All arithmetic is done on int64 micro-units (1 USDC = 1,000,000 units) so
// that comparisons and storage never touch floating point. Floats only appear
// at the API edges where callers hand us human-entered prices.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Decimals is the USDC token decimal count on Solana.
	Decimals = 6

	// Scale is the number of micro-units in one whole USDC.
	Scale = 1_000_000
)

// UsdToMicro converts a USD amount to USDC micro-units, truncating toward
// zero. Values within one part in 10^6 of an integer micro-unit count are
// snapped to it first, so prices like 0.29 (which is 289999.999... in binary
// float) land on the intended 290000.
func UsdToMicro(usd float64) (int64, error) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return 0, fmt.Errorf("invalid USD amount: %v", usd)
	}
	if usd < 0 {
		return 0, fmt.Errorf("negative USD amount: %v", usd)
	}
	if usd > math.MaxInt64/Scale {
		return 0, fmt.Errorf("USD amount overflows micro-units: %v", usd)
	}

	scaled := usd * Scale
	nearest := math.Round(scaled)
	if math.Abs(scaled-nearest) < 1e-6*math.Max(1, math.Abs(scaled)) {
		return int64(nearest), nil
	}
	return int64(math.Floor(scaled)), nil
}

// MicroToUsd converts USDC micro-units back to a float USD amount for
// display and challenge generation.
func MicroToUsd(micro int64) float64 {
	return float64(micro) / Scale
}

// ParseUsd parses a human-entered USD string ("$1,234.56", "0.29") into
// micro-units using the same truncation rules as UsdToMicro.
func ParseUsd(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("empty USD amount %q", s)
	}

	usd, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse USD amount %q: %w", s, err)
	}
	return UsdToMicro(usd)
}

// Sufficient reports whether paid covers required. Overpayment is accepted.
func Sufficient(paid, required int64) bool {
	return paid >= required
}

// FormatMicro renders micro-units as a USD string for logs, e.g. 1250000
// becomes "1.25".
func FormatMicro(micro int64) string {
	neg := micro < 0
	if neg {
		micro = -micro
	}
	whole := micro / Scale
	frac := micro % Scale
	out := fmt.Sprintf("%d.%06d", whole, frac)
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if neg {
		out = "-" + out
	}
	return out
}

package money

import (
	"math"
	"testing"
)

func TestUsdToMicro(t *testing.T) {
	tests := []struct {
		name    string
		usd     float64
		want    int64
		wantErr bool
	}{
		{name: "one dollar", usd: 1.0, want: 1_000_000},
		{name: "cents", usd: 0.29, want: 290_000},
		{name: "tenth of a cent", usd: 0.001, want: 1_000},
		{name: "single micro unit", usd: 0.000001, want: 1},
		{name: "sub micro truncates", usd: 0.0000019, want: 1},
		{name: "zero", usd: 0, want: 0},
		{name: "large", usd: 123456.789, want: 123_456_789_000},
		{name: "negative", usd: -1, wantErr: true},
		{name: "nan", usd: math.NaN(), wantErr: true},
		{name: "positive inf", usd: math.Inf(1), wantErr: true},
		{name: "overflow", usd: 1e19, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UsdToMicro(tt.usd)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("UsdToMicro(%v) = %d, want error", tt.usd, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("UsdToMicro(%v) error: %v", tt.usd, err)
			}
			if got != tt.want {
				t.Errorf("UsdToMicro(%v) = %d, want %d", tt.usd, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// Whole micro-unit amounts must survive a float round trip exactly.
	for _, micro := range []int64{0, 1, 999, 290_000, 1_000_000, 123_456_789_000} {
		usd := MicroToUsd(micro)
		back, err := UsdToMicro(usd)
		if err != nil {
			t.Fatalf("UsdToMicro(MicroToUsd(%d)) error: %v", micro, err)
		}
		if back != micro {
			t.Errorf("round trip %d -> %v -> %d", micro, usd, back)
		}
	}
}

func TestParseUsd(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "plain", in: "1.25", want: 1_250_000},
		{name: "dollar sign", in: "$0.29", want: 290_000},
		{name: "commas", in: "$1,234.56", want: 1_234_560_000},
		{name: "whitespace", in: "  2.00 ", want: 2_000_000},
		{name: "empty", in: "", wantErr: true},
		{name: "bare dollar sign", in: "$", wantErr: true},
		{name: "garbage", in: "abc", wantErr: true},
		{name: "negative", in: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUsd(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseUsd(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUsd(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseUsd(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSufficient(t *testing.T) {
	if !Sufficient(290_000, 290_000) {
		t.Error("exact amount should be sufficient")
	}
	if !Sufficient(300_000, 290_000) {
		t.Error("overpayment should be sufficient")
	}
	if Sufficient(289_999, 290_000) {
		t.Error("underpayment should not be sufficient")
	}
}

func TestFormatMicro(t *testing.T) {
	tests := []struct {
		micro int64
		want  string
	}{
		{1_250_000, "1.25"},
		{290_000, "0.29"},
		{1, "0.000001"},
		{0, "0"},
		{2_000_000, "2"},
		{-1_500_000, "-1.5"},
	}
	for _, tt := range tests {
		if got := FormatMicro(tt.micro); got != tt.want {
			t.Errorf("FormatMicro(%d) = %q, want %q", tt.micro, got, tt.want)
		}
	}
}

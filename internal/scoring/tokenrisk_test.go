package scoring

import (
	"testing"

	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

func strongToken() models.TokenRiskInput {
	return models.TokenRiskInput{
		TVL:             d("50000000"),
		MarketCap:       d("900000000"),
		ContractAgeDays: d("1000"),
		DailyVolume30d:  d("5000000"),
		HolderCount:     50000,
	}
}

func TestTokenRiskCalculate(t *testing.T) {
	calc := NewTokenRiskCalculator()

	tests := []struct {
		name  string
		input models.TokenRiskInput
		want  string
	}{
		{"blue chip", strongToken(), "1"},
		{"all zero", models.TokenRiskInput{}, "0.1"},
		{
			name: "mid tier",
			input: models.TokenRiskInput{
				TVL:             d("150000"),  // 0.60
				MarketCap:       d("2000000"), // 0.40
				ContractAgeDays: d("200"),     // 0.50
				DailyVolume30d:  d("20000"),   // 0.50
				HolderCount:     600,          // 0.50
			},
			// raw = 0.21 + 0.125 + 0.08 + 0.05 + 0.05 = 0.515
			want: "0.5635",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Calculate(tt.input)
			if !got.RiskFactor.Equal(d(tt.want)) {
				t.Errorf("RiskFactor = %s, want %s", got.RiskFactor, tt.want)
			}
			if got.Breakdown.ExploitOverride {
				t.Error("ExploitOverride should be false")
			}
		})
	}
}

func TestTokenRiskExploitOverride(t *testing.T) {
	calc := NewTokenRiskCalculator()
	input := strongToken()
	input.HasExploitHistory = true

	got := calc.Calculate(input)
	if !got.RiskFactor.Equal(d("0.1")) {
		t.Errorf("RiskFactor = %s, want 0.1", got.RiskFactor)
	}
	if !got.Breakdown.ExploitOverride {
		t.Error("ExploitOverride should be true")
	}
	for name, v := range map[string]decimal.Decimal{
		"tvl":          got.Breakdown.TVLScore,
		"market cap":   got.Breakdown.MarketCapScore,
		"contract age": got.Breakdown.ContractAgeScore,
		"volume":       got.Breakdown.DailyVolumeScore,
		"holders":      got.Breakdown.HolderCountScore,
	} {
		if !v.IsZero() {
			t.Errorf("%s score = %s, want 0", name, v)
		}
	}
}

func TestTokenRiskTierBoundaries(t *testing.T) {
	calc := NewTokenRiskCalculator()

	tests := []struct {
		name string
		tvl  string
		want string
	}{
		{"exactly 10M", "10000000", "1.00"},
		{"just below 10M", "9999999", "0.80"},
		{"just below 10M fractional", "9999999.99", "0.80"},
		{"exactly 1k", "1000", "0.20"},
		{"below 1k", "999.99", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Calculate(models.TokenRiskInput{TVL: d(tt.tvl)})
			if !got.Breakdown.TVLScore.Equal(d(tt.want)) {
				t.Errorf("TVLScore = %s, want %s", got.Breakdown.TVLScore, tt.want)
			}
		})
	}
}

func TestTokenRiskFactorBounds(t *testing.T) {
	calc := NewTokenRiskCalculator()
	lo, hi := d("0.1"), d("1.0")

	values := []string{"0", "500", "1000", "99999", "1000000", "100000000", "1000000000"}
	for _, tvl := range values {
		for _, holders := range []int64{0, 199, 200, 10000, 1000000} {
			input := models.TokenRiskInput{
				TVL:             d(tvl),
				MarketCap:       d(tvl),
				ContractAgeDays: d("100"),
				DailyVolume30d:  d(tvl),
				HolderCount:     holders,
			}
			f := calc.Calculate(input).RiskFactor
			if f.LessThan(lo) || f.GreaterThan(hi) {
				t.Errorf("RiskFactor(tvl=%s, holders=%d) = %s out of [0.1, 1.0]", tvl, holders, f)
			}
		}
	}
}

func TestAdjustROI(t *testing.T) {
	calc := NewTokenRiskCalculator()

	exploited := strongToken()
	exploited.HasExploitHistory = true

	tests := []struct {
		name  string
		raw   string
		input models.TokenRiskInput
		want  string
	}{
		{"no penalty", "0.5", strongToken(), "0.5"},
		{"exploit penalty", "0.5", exploited, "0.05"},
		{"loss is also scaled", "-0.4", models.TokenRiskInput{}, "-0.04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.AdjustROI(d(tt.raw), tt.input)
			if !got.Equal(d(tt.want)) {
				t.Errorf("AdjustROI = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTokenRiskIdempotent(t *testing.T) {
	calc := NewTokenRiskCalculator()
	a := calc.Calculate(strongToken())
	b := calc.Calculate(strongToken())
	if !a.RiskFactor.Equal(b.RiskFactor) || a.Breakdown.TVLScore.String() != b.Breakdown.TVLScore.String() {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

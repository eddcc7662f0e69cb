package scoring

import (
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

// RiskBreakdown exposes the per-criterion sub-scores in [0, 1] for auditing.
type RiskBreakdown struct {
	TVLScore         decimal.Decimal `json:"tvl_score"`
	MarketCapScore   decimal.Decimal `json:"market_cap_score"`
	ContractAgeScore decimal.Decimal `json:"contract_age_score"`
	DailyVolumeScore decimal.Decimal `json:"daily_volume_score"`
	HolderCountScore decimal.Decimal `json:"holder_count_score"`
	ExploitOverride  bool            `json:"exploit_override"`
}

// RiskResult is the output of TokenRiskCalculator.
// RiskFactor is in [0.1, 1.0]: 1.0 means no penalty, 0.1 the maximum penalty.
type RiskResult struct {
	RiskFactor decimal.Decimal `json:"risk_factor"`
	Breakdown  RiskBreakdown   `json:"breakdown"`
}

// TokenRiskCalculator converts token fundamentals into a bounded risk multiplier.
type TokenRiskCalculator struct {
	rules RiskRules
}

// NewTokenRiskCalculator creates a calculator using DefaultRiskRules.
func NewTokenRiskCalculator() *TokenRiskCalculator {
	return NewTokenRiskCalculatorWithRules(DefaultRiskRules())
}

// NewTokenRiskCalculatorWithRules creates a calculator with custom rules.
func NewTokenRiskCalculatorWithRules(rules RiskRules) *TokenRiskCalculator {
	return &TokenRiskCalculator{rules: rules}
}

// Calculate rates a single token. A confirmed exploit forces the minimum factor
// regardless of every other metric.
func (c *TokenRiskCalculator) Calculate(input models.TokenRiskInput) RiskResult {
	if input.HasExploitHistory {
		return RiskResult{
			RiskFactor: c.rules.FactorMin,
			Breakdown: RiskBreakdown{
				TVLScore:         decimal.Zero,
				MarketCapScore:   decimal.Zero,
				ContractAgeScore: decimal.Zero,
				DailyVolumeScore: decimal.Zero,
				HolderCountScore: decimal.Zero,
				ExploitOverride:  true,
			},
		}
	}

	b := RiskBreakdown{
		TVLScore:         scoreTier(input.TVL, c.rules.TVLTiers),
		MarketCapScore:   scoreTier(input.MarketCap, c.rules.MarketCapTiers),
		ContractAgeScore: scoreTier(input.ContractAgeDays, c.rules.ContractAgeTiers),
		DailyVolumeScore: scoreTier(input.DailyVolume30d, c.rules.DailyVolumeTiers),
		HolderCountScore: scoreTier(decimal.NewFromInt(input.HolderCount), c.rules.HolderCountTiers),
	}

	raw := c.rules.WeightTVL.Mul(b.TVLScore).
		Add(c.rules.WeightContractAge.Mul(b.ContractAgeScore)).
		Add(c.rules.WeightMarketCap.Mul(b.MarketCapScore)).
		Add(c.rules.WeightHolderCount.Mul(b.HolderCountScore)).
		Add(c.rules.WeightDailyVolume.Mul(b.DailyVolumeScore))

	// Linear map [0,1] -> [min, max] keeps a gradient between bad tokens;
	// only an exploit jumps straight to the floor.
	scale := c.rules.FactorMax.Sub(c.rules.FactorMin)
	factor := clampDecimal(raw.Mul(scale).Add(c.rules.FactorMin), c.rules.FactorMin, c.rules.FactorMax)

	return RiskResult{RiskFactor: factor, Breakdown: b}
}

// AdjustROI discounts a realized ROI by the token's risk factor.
func (c *TokenRiskCalculator) AdjustROI(rawROI decimal.Decimal, input models.TokenRiskInput) decimal.Decimal {
	return rawROI.Mul(c.Calculate(input).RiskFactor)
}

// scoreTier returns the score of the first tier whose lower bound (inclusive) is met.
func scoreTier(value decimal.Decimal, table []Tier) decimal.Decimal {
	for _, t := range table {
		if value.GreaterThanOrEqual(t.Min) {
			return t.Score
		}
	}
	return decimal.Zero
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Max(lo, decimal.Min(hi, v))
}

// Package scoring turns token fundamentals and wallet trade history into the two
// reputation numbers the rest of whalescope depends on:
//
//	riskFactor = clamp(0.9 × (0.35·tvl + 0.25·age + 0.20·mcap + 0.10·holders + 0.10·volume) + 0.1, 0.1, 1.0)
//	whaleScore = 100 × (0.30·winRate + 0.25·sharpeNorm + 0.25·roiNorm + 0.20·consistency)
//
// Both calculators are pure: every threshold lives in an immutable rules record
// built once (DefaultRiskRules, DefaultScoreRules) and the current time is an
// explicit argument of the ...At entry points.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier maps every value >= Min to Score. Tier tables are ordered from the highest
// Min downwards; values below the last tier score zero.
type Tier struct {
	Min   decimal.Decimal
	Score decimal.Decimal
}

// RiskRules holds the step tables and weights of the token risk model.
type RiskRules struct {
	TVLTiers         []Tier
	MarketCapTiers   []Tier
	ContractAgeTiers []Tier
	DailyVolumeTiers []Tier
	HolderCountTiers []Tier

	WeightTVL         decimal.Decimal
	WeightContractAge decimal.Decimal
	WeightMarketCap   decimal.Decimal
	WeightHolderCount decimal.Decimal
	WeightDailyVolume decimal.Decimal

	FactorMin decimal.Decimal // also the exploit override
	FactorMax decimal.Decimal
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tiers(pairs ...string) []Tier {
	out := make([]Tier, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Tier{Min: d(pairs[i]), Score: d(pairs[i+1])})
	}
	return out
}

// DefaultRiskRules returns the production token risk model.
func DefaultRiskRules() RiskRules {
	return RiskRules{
		TVLTiers: tiers(
			"10000000", "1.00",
			"1000000", "0.80",
			"100000", "0.60",
			"10000", "0.40",
			"1000", "0.20",
		),
		MarketCapTiers: tiers(
			"500000000", "1.00",
			"50000000", "0.80",
			"10000000", "0.60",
			"1000000", "0.40",
			"100000", "0.20",
		),
		ContractAgeTiers: tiers(
			"730", "1.00",
			"365", "0.75",
			"180", "0.50",
			"30", "0.25",
		),
		DailyVolumeTiers: tiers(
			"1000000", "1.00",
			"100000", "0.75",
			"10000", "0.50",
			"1000", "0.25",
		),
		HolderCountTiers: tiers(
			"10000", "1.00",
			"1000", "0.75",
			"500", "0.50",
			"200", "0.25",
		),
		WeightTVL:         d("0.35"),
		WeightContractAge: d("0.25"),
		WeightMarketCap:   d("0.20"),
		WeightHolderCount: d("0.10"),
		WeightDailyVolume: d("0.10"),
		FactorMin:         d("0.1"),
		FactorMax:         d("1.0"),
	}
}

// ScoreRules holds the qualification rules and windows of the Whale Score.
type ScoreRules struct {
	MinOperations       int           // below this the wallet stays under observation
	MinRecentOperations int           // below this there is no 90-day score
	MinHistoryMonths    float64       // below this the wallet is a newcomer
	MinWinRate          float64       // below this the wallet is high-risk/high-reward
	DecayHalfLife       time.Duration // recency half-life of the all-time score
	RecentWindow        time.Duration
	MonthLength         time.Duration
	ConsistencyBucket   time.Duration
	MinBuckets          int     // fewer buckets than this yields NeutralConsistency
	NeutralConsistency  float64 // insufficient evidence
	PerfectSharpe       float64 // zero deviation, non-negative mean
	FloorSharpe         float64 // zero deviation, negative mean

	WeightWinRate     float64
	WeightSharpe      float64
	WeightROI         float64
	WeightConsistency float64
}

const day = 24 * time.Hour

// DefaultScoreRules returns the production Whale Score rules.
func DefaultScoreRules() ScoreRules {
	return ScoreRules{
		MinOperations:       30,
		MinRecentOperations: 5,
		MinHistoryMonths:    3,
		MinWinRate:          0.40,
		DecayHalfLife:       365 * day,
		RecentWindow:        90 * day,
		MonthLength:         30 * day,
		ConsistencyBucket:   30 * day,
		MinBuckets:          3,
		NeutralConsistency:  0.5,
		PerfectSharpe:       4.0,
		FloorSharpe:         -2.0,
		WeightWinRate:       0.30,
		WeightSharpe:        0.25,
		WeightROI:           0.25,
		WeightConsistency:   0.20,
	}
}

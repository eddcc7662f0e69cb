package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// TokenRiskInput holds the fundamentals used to rate how risky a token is.
type TokenRiskInput struct {
	TVL               decimal.Decimal `json:"tvl"`        // pool liquidity in USD
	MarketCap         decimal.Decimal `json:"market_cap"` // USD
	ContractAgeDays   decimal.Decimal `json:"contract_age_days"`
	DailyVolume30d    decimal.Decimal `json:"daily_volume_30d"` // 30-day average, USD
	HolderCount       int64           `json:"holder_count"`
	HasExploitHistory bool            `json:"has_exploit_history"` // confirmed rug pull or exploit
}

// Validate checks that all token fundamentals are non-negative
func (t *TokenRiskInput) Validate() error {
	if t.TVL.IsNegative() {
		return errors.New("tvl must not be negative")
	}
	if t.MarketCap.IsNegative() {
		return errors.New("market cap must not be negative")
	}
	if t.ContractAgeDays.IsNegative() {
		return errors.New("contract age must not be negative")
	}
	if t.DailyVolume30d.IsNegative() {
		return errors.New("daily volume must not be negative")
	}
	if t.HolderCount < 0 {
		return errors.New("holder count must not be negative")
	}
	return nil
}

package detector

import (
	"context"
	"sort"
	"time"

	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

// AccumulationRules configures silent accumulation detection.
type AccumulationRules struct {
	Window            time.Duration   // trailing window of BUYs considered
	MinSpacing        time.Duration   // minimum gap between admitted buys
	MaxVolumeShare    decimal.Decimal // max size of one buy relative to daily volume
	MinPurchases      int
	CompletePurchases int
	CompleteTotalUSD  decimal.Decimal
}

// DefaultAccumulationRules returns the production rules.
func DefaultAccumulationRules() AccumulationRules {
	return AccumulationRules{
		Window:            7 * 24 * time.Hour,
		MinSpacing:        2 * time.Hour,
		MaxVolumeShare:    decimal.RequireFromString("0.03"),
		MinPurchases:      3,
		CompletePurchases: 5,
		CompleteTotalUSD:  decimal.NewFromInt(50000),
	}
}

// AccumulatingToken is a token a wallet is building a position in through a
// series of small, spaced out buys.
type AccumulatingToken struct {
	TokenAddress  string          `json:"token_address"`
	TokenSymbol   string          `json:"token_symbol,omitempty"`
	PurchaseCount int             `json:"purchase_count"`
	TotalUSD      decimal.Decimal `json:"total_usd"`
	IsComplete    bool            `json:"is_complete"`
}

// AccumulationDetector detects wallets splitting a large position into many
// small buys to avoid moving the price.
type AccumulationDetector struct {
	rules    AccumulationRules
	notifier AlertNotifier
}

// NewAccumulationDetector creates a detector with default rules. A nil notifier drops alerts.
func NewAccumulationDetector(notifier AlertNotifier) *AccumulationDetector {
	return NewAccumulationDetectorWithRules(DefaultAccumulationRules(), notifier)
}

// NewAccumulationDetectorWithRules creates a detector with custom rules.
func NewAccumulationDetectorWithRules(rules AccumulationRules, notifier AlertNotifier) *AccumulationDetector {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AccumulationDetector{rules: rules, notifier: notifier}
}

// Detect runs DetectAt relative to the current time.
func (d *AccumulationDetector) Detect(ctx context.Context, walletID string, trades []models.Trade, dailyVolumes map[string]decimal.Decimal) []AccumulatingToken {
	return d.DetectAt(ctx, walletID, trades, dailyVolumes, time.Now())
}

// DetectAt finds accumulation patterns in one wallet's trades. dailyVolumes maps
// token address to USD daily volume; tokens missing from it are never rejected
// on size. One alert is sent per returned token, in first-seen token order.
func (d *AccumulationDetector) DetectAt(ctx context.Context, walletID string, trades []models.Trade, dailyVolumes map[string]decimal.Decimal, now time.Time) []AccumulatingToken {
	cutoff := now.Add(-d.rules.Window)
	buys := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsFinalized && t.IsBuy() && !t.Timestamp.Before(cutoff) {
			buys = append(buys, t)
		}
	}

	byToken := groupBy(buys, func(t models.Trade) string { return t.TokenAddress })

	var results []AccumulatingToken
	for _, address := range byToken.order {
		chain := d.buildChain(byToken.groups[address], dailyVolumes, address)
		if len(chain) < d.rules.MinPurchases {
			continue
		}

		total := decimal.Zero
		for _, t := range chain {
			total = total.Add(t.AmountUSD)
		}

		result := AccumulatingToken{
			TokenAddress:  address,
			TokenSymbol:   chain[0].TokenSymbol,
			PurchaseCount: len(chain),
			TotalUSD:      total,
			IsComplete:    len(chain) >= d.rules.CompletePurchases && total.GreaterThanOrEqual(d.rules.CompleteTotalUSD),
		}
		results = append(results, result)

		token := chain[0].DisplayToken()
		if err := d.notifier.NotifyAccumulation(ctx, walletID, token, result.PurchaseCount); err != nil {
			logger.Warn("Accumulation alert for wallet %s on %s failed: %v", walletID, token, err)
		}
	}

	return results
}

// buildChain greedily admits buys in time order. A buy is admitted when it is
// small relative to the token's daily volume and at least MinSpacing after the
// last admitted buy; rejected buys do not reset the spacing clock.
func (d *AccumulationDetector) buildChain(group []models.Trade, dailyVolumes map[string]decimal.Decimal, address string) []models.Trade {
	sorted := make([]models.Trade, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	volume, known := dailyVolumes[address]
	maxPerBuy := volume.Mul(d.rules.MaxVolumeShare)

	var chain []models.Trade
	for _, t := range sorted {
		if known && t.AmountUSD.GreaterThan(maxPerBuy) {
			continue
		}
		if len(chain) > 0 && t.Timestamp.Sub(chain[len(chain)-1].Timestamp) < d.rules.MinSpacing {
			continue
		}
		chain = append(chain, t)
	}
	return chain
}

package detector

import (
	"context"
	"time"

	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

// ConfidenceLevel grades a confluence signal by the average score of its wallets.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceModerate ConfidenceLevel = "MODERATE"
)

// ConfluenceRules configures cross-wallet convergence detection.
type ConfluenceRules struct {
	Window       time.Duration
	MinWallets   int
	HighAbove    decimal.Decimal // strictly greater than
	ModerateFrom decimal.Decimal // inclusive
	SignalTTL    time.Duration
}

// DefaultConfluenceRules returns the production rules.
func DefaultConfluenceRules() ConfluenceRules {
	return ConfluenceRules{
		Window:       4 * time.Hour,
		MinWallets:   3,
		HighAbove:    decimal.NewFromInt(85),
		ModerateFrom: decimal.NewFromInt(60),
		SignalTTL:    24 * time.Hour,
	}
}

// ConfluenceSignal reports several scored wallets buying the same token.
type ConfluenceSignal struct {
	TokenAddress    string                 `json:"token_address"`
	TokenSymbol     string                 `json:"token_symbol,omitempty"`
	ConfidenceLevel ConfidenceLevel        `json:"confidence_level"`
	WalletCount     int                    `json:"wallet_count"`
	AvgScore        decimal.Decimal        `json:"avg_score"`
	Wallets         []models.WalletSummary `json:"wallets"`
	DetectedAt      time.Time              `json:"detected_at"`
	ExpiresAt       time.Time              `json:"expires_at"`
}

// Expired reports whether the signal is no longer actionable at t.
func (s *ConfluenceSignal) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// ConfluenceDetector detects skilled wallets converging on the same token.
type ConfluenceDetector struct {
	rules    ConfluenceRules
	notifier AlertNotifier
}

// NewConfluenceDetector creates a detector with default rules. A nil notifier drops alerts.
func NewConfluenceDetector(notifier AlertNotifier) *ConfluenceDetector {
	return NewConfluenceDetectorWithRules(DefaultConfluenceRules(), notifier)
}

// NewConfluenceDetectorWithRules creates a detector with custom rules.
func NewConfluenceDetectorWithRules(rules ConfluenceRules, notifier AlertNotifier) *ConfluenceDetector {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ConfluenceDetector{rules: rules, notifier: notifier}
}

// Detect runs DetectAt relative to the current time.
func (d *ConfluenceDetector) Detect(ctx context.Context, trades []models.WalletTrade) []ConfluenceSignal {
	return d.DetectAt(ctx, trades, time.Now())
}

// DetectAt finds tokens bought by enough distinct scored wallets inside the
// trailing window. Wallets without a score are ignored and each wallet counts
// once per token no matter how often it bought.
func (d *ConfluenceDetector) DetectAt(ctx context.Context, trades []models.WalletTrade, now time.Time) []ConfluenceSignal {
	cutoff := now.Add(-d.rules.Window)
	pool := make([]models.WalletTrade, 0, len(trades))
	for _, t := range trades {
		if t.IsFinalized && t.IsBuy() && !t.Timestamp.Before(cutoff) && t.Wallet.HasScore() {
			pool = append(pool, t)
		}
	}

	byToken := groupBy(pool, func(t models.WalletTrade) string { return t.TokenAddress })

	var signals []ConfluenceSignal
	for _, address := range byToken.order {
		group := byToken.groups[address]

		seen := make(map[string]bool)
		var wallets []models.WalletSummary
		for _, t := range group {
			if seen[t.Wallet.ID] {
				continue
			}
			seen[t.Wallet.ID] = true
			wallets = append(wallets, t.Wallet)
		}
		if len(wallets) < d.rules.MinWallets {
			continue
		}

		sum := decimal.Zero
		for _, w := range wallets {
			sum = sum.Add(w.CurrentScore.Decimal)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(wallets))))

		var level ConfidenceLevel
		switch {
		case avg.GreaterThan(d.rules.HighAbove):
			level = ConfidenceHigh
		case avg.GreaterThanOrEqual(d.rules.ModerateFrom):
			level = ConfidenceModerate
		default:
			continue
		}

		symbol := ""
		for _, t := range group {
			if t.TokenSymbol != "" {
				symbol = t.TokenSymbol
				break
			}
		}

		signals = append(signals, ConfluenceSignal{
			TokenAddress:    address,
			TokenSymbol:     symbol,
			ConfidenceLevel: level,
			WalletCount:     len(wallets),
			AvgScore:        avg,
			Wallets:         wallets,
			DetectedAt:      now,
			ExpiresAt:       now.Add(d.rules.SignalTTL),
		})

		token := symbol
		if token == "" {
			token = address
		}
		if err := d.notifier.NotifyConfluence(ctx, token, wallets, level); err != nil {
			logger.Warn("Confluence alert for %s failed: %v", token, err)
		}
	}

	return signals
}

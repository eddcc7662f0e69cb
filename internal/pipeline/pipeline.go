// Package pipeline wires storage to the analytics packages. It ingests trades,
// applies token risk to realized returns, runs the detectors over the windows
// they expect and refreshes Whale Scores. The analytics packages never touch
// storage themselves; this package does the fetching and persisting around them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/whalescope/internal/clustering"
	"github.com/rewired-gh/whalescope/internal/detector"
	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/rewired-gh/whalescope/internal/scoring"
	"github.com/rewired-gh/whalescope/internal/storage"
	"github.com/shopspring/decimal"
)

// JobError represents a per-wallet failure inside a batch job
type JobError struct {
	WalletID string
	Err      error
}

func (e JobError) Error() string {
	return fmt.Sprintf("job error for wallet %s: %v", e.WalletID, e.Err)
}

func (e JobError) Unwrap() error {
	return e.Err
}

// IngestResult holds the signals raised by a single ingested trade.
type IngestResult struct {
	Accumulations []detector.AccumulatingToken
	Confluences   []detector.ConfluenceSignal
}

// WalletAccumulation groups accumulation results by wallet.
type WalletAccumulation struct {
	WalletID string
	Tokens   []detector.AccumulatingToken
}

// Pipeline orchestrates storage and the analytics components.
type Pipeline struct {
	store        *storage.Storage
	risk         *scoring.TokenRiskCalculator
	scorer       *scoring.WhaleScoreCalculator
	accumulation *detector.AccumulationDetector
	confluence   *detector.ConfluenceDetector
	clustering   *clustering.Service

	accumulationWindow time.Duration
	confluenceWindow   time.Duration
	now                func() time.Time
}

// New creates a Pipeline with production rules. Alerts go to notifier; nil drops them.
func New(store *storage.Storage, notifier detector.AlertNotifier) *Pipeline {
	accRules := detector.DefaultAccumulationRules()
	confRules := detector.DefaultConfluenceRules()
	return &Pipeline{
		store:              store,
		risk:               scoring.NewTokenRiskCalculator(),
		scorer:             scoring.NewWhaleScoreCalculator(),
		accumulation:       detector.NewAccumulationDetectorWithRules(accRules, notifier),
		confluence:         detector.NewConfluenceDetectorWithRules(confRules, notifier),
		clustering:         clustering.NewService(),
		accumulationWindow: accRules.Window,
		confluenceWindow:   confRules.Window,
		now:                time.Now,
	}
}

// IngestTrade persists a trade and runs the detectors it can trigger.
//
// For a SELL with a valid rawROI the stored ROI is rawROI scaled by the token's
// risk factor, or rawROI itself when the token's fundamentals are unknown.
// A finalized BUY runs accumulation detection on the wallet's recent trades of
// that token and confluence detection on the token's recent cross-wallet buys.
func (p *Pipeline) IngestTrade(ctx context.Context, trade models.Trade, rawROI decimal.NullDecimal) (*IngestResult, error) {
	return p.ingestAt(ctx, trade, rawROI, p.now())
}

// ingestAt is IngestTrade with the detector windows measured back from now.
func (p *Pipeline) ingestAt(ctx context.Context, trade models.Trade, rawROI decimal.NullDecimal, now time.Time) (*IngestResult, error) {
	if trade.IsSell() && rawROI.Valid {
		adjusted := rawROI.Decimal
		if fundamentals, ok := p.store.TokenFundamentals(trade.TokenAddress); ok {
			adjusted = p.risk.AdjustROI(rawROI.Decimal, fundamentals)
		}
		trade.ROIAdjusted = decimal.NewNullDecimal(adjusted)
	}

	if err := p.store.AddTrade(&trade); err != nil {
		return nil, fmt.Errorf("failed to store trade %s: %w", trade.ID, err)
	}

	result := &IngestResult{}
	if !trade.IsBuy() || !trade.IsFinalized {
		return result, nil
	}

	recent, err := p.store.TradesInWindow(trade.WalletID, p.accumulationWindow, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet trades: %w", err)
	}
	var sameToken []models.Trade
	for _, t := range recent {
		if t.TokenAddress == trade.TokenAddress {
			sameToken = append(sameToken, t)
		}
	}
	result.Accumulations = p.accumulation.DetectAt(ctx, trade.WalletID, sameToken, p.store.TokenVolumes(), now)

	tokenTrades, err := p.store.TokenTradesInWindow(trade.TokenAddress, p.confluenceWindow, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load token trades: %w", err)
	}
	result.Confluences = p.confluence.DetectAt(ctx, tokenTrades, now)

	if len(result.Accumulations) > 0 || len(result.Confluences) > 0 {
		logger.Info("Trade %s raised %d accumulation and %d confluence signals",
			trade.ID, len(result.Accumulations), len(result.Confluences))
	}
	return result, nil
}

// RecalculateScores recomputes the Whale Score of every wallet that is not
// disqualified and stores it. It returns the number of wallets updated.
func (p *Pipeline) RecalculateScores(ctx context.Context) (int, []JobError, error) {
	wallets, err := p.store.ListWallets()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	now := p.now()
	updated := 0
	var jobErrors []JobError
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return updated, jobErrors, err
		}
		if w.Status == models.WalletDisqualified {
			continue
		}

		trades, err := p.store.FinalizedTrades(w.ID)
		if err != nil {
			jobErrors = append(jobErrors, JobError{WalletID: w.ID, Err: err})
			continue
		}

		result := p.scorer.CalculateAt(trades, now)
		if err := p.store.UpdateWalletScore(w.ID, result, now); err != nil {
			jobErrors = append(jobErrors, JobError{WalletID: w.ID, Err: err})
			continue
		}
		updated++
		logger.Debug("Wallet %s: status=%s category=%s ops=%d score=%v",
			w.ID, result.Status, result.Category, result.TotalOperations, result.EffectiveScore())
	}

	for _, jobErr := range jobErrors {
		logger.Warn("Failed to recalculate score for wallet %s: %v", jobErr.WalletID, jobErr.Err)
	}
	return updated, jobErrors, nil
}

// DetectAccumulation runs accumulation detection over every non-disqualified wallet.
func (p *Pipeline) DetectAccumulation(ctx context.Context) ([]WalletAccumulation, []JobError, error) {
	wallets, err := p.store.ListWallets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	now := p.now()
	volumes := p.store.TokenVolumes()
	var results []WalletAccumulation
	var jobErrors []JobError
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return results, jobErrors, err
		}
		if w.Status == models.WalletDisqualified {
			continue
		}

		trades, err := p.store.TradesInWindow(w.ID, p.accumulationWindow, now)
		if err != nil {
			jobErrors = append(jobErrors, JobError{WalletID: w.ID, Err: err})
			continue
		}
		if tokens := p.accumulation.DetectAt(ctx, w.ID, trades, volumes, now); len(tokens) > 0 {
			results = append(results, WalletAccumulation{WalletID: w.ID, Tokens: tokens})
		}
	}

	for _, jobErr := range jobErrors {
		logger.Warn("Failed to detect accumulation for wallet %s: %v", jobErr.WalletID, jobErr.Err)
	}
	return results, jobErrors, nil
}

// DetectConfluence runs confluence detection over all recent trades.
func (p *Pipeline) DetectConfluence(ctx context.Context) ([]detector.ConfluenceSignal, error) {
	now := p.now()
	trades, err := p.store.WalletTradesInWindow(p.confluenceWindow, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent trades: %w", err)
	}
	return p.confluence.DetectAt(ctx, trades, now), nil
}

// AnalyzePair compares two stored wallets for common ownership.
func (p *Pipeline) AnalyzePair(walletA, walletB string) (clustering.Verdict, error) {
	a, err := p.activity(walletA)
	if err != nil {
		return clustering.Verdict{}, err
	}
	b, err := p.activity(walletB)
	if err != nil {
		return clustering.Verdict{}, err
	}

	funding, err := p.store.FundingEventsBetween(a.Wallet.Address, b.Wallet.Address)
	if err != nil {
		return clustering.Verdict{}, fmt.Errorf("failed to load funding events: %w", err)
	}
	return p.clustering.Analyze(a, b, funding), nil
}

func (p *Pipeline) activity(walletID string) (clustering.WalletActivity, error) {
	w, err := p.store.GetWallet(walletID)
	if err != nil {
		return clustering.WalletActivity{}, err
	}
	trades, err := p.store.FinalizedTrades(walletID)
	if err != nil {
		return clustering.WalletActivity{}, err
	}
	return clustering.WalletActivity{Wallet: *w, Trades: trades}, nil
}
